package segment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Data is a sealed segment loaded into memory. Once loaded it is immutable
// and safe for concurrent readers.
type Data struct {
	Dir      string
	Header   Header
	DocMeta  []DocMeta
	Postings []Posting
}

// Name returns the segment's directory basename.
func (d *Data) Name() string {
	return filepath.Base(d.Dir)
}

// Load reads index_native.bin from a segment directory: header, then
// n_docs doc-metadata records, then n_post9 postings, all field-by-field.
// There is no partial success and no repair; any short read or format
// violation fails the whole load.
func Load(segDir string) (*Data, error) {
	path := filepath.Join(segDir, BinName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}

	out := &Data{Dir: segDir, Header: h}

	out.DocMeta = make([]DocMeta, h.NDocs)
	var dbuf [DocMetaSize]byte
	for i := uint32(0); i < h.NDocs; i++ {
		if _, err := io.ReadFull(r, dbuf[:]); err != nil {
			return nil, fmt.Errorf("segment %s: reading doc metadata %d/%d: %w", path, i, h.NDocs, err)
		}
		out.DocMeta[i] = GetDocMeta(dbuf[:])
	}

	out.Postings = make([]Posting, h.NPost9)
	var pbuf [PostingSize]byte
	for i := uint64(0); i < h.NPost9; i++ {
		if _, err := io.ReadFull(r, pbuf[:]); err != nil {
			return nil, fmt.Errorf("segment %s: reading posting %d/%d: %w", path, i, h.NPost9, err)
		}
		out.Postings[i] = GetPosting(pbuf[:])
	}

	return out, nil
}
