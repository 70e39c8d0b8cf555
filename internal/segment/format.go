// Package segment defines the on-disk segment format, its reader, and the
// offline validator.
//
// A sealed segment is a directory with three files:
//
//	index_native.bin         header + doc metadata + sorted postings
//	index_native_docids.json doc-info records in local-doc-id order
//	index_native_meta.json   build summary
//
// All binary integers are little-endian and are read and written
// field-by-field; the format never depends on struct layout or padding.
package segment

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// Magic identifies index_native.bin.
	Magic = "PLAG"
	// FormatVersion is the only version this code reads or writes.
	FormatVersion uint32 = 2

	// HeaderSize is the on-disk header length in bytes.
	HeaderSize = 28
	// DocMetaSize is the on-disk doc-metadata record length.
	DocMetaSize = 20
	// PostingSize is the on-disk posting record length.
	PostingSize = 16

	// BinName, DocIDsName and MetaName are the fixed file names inside a
	// segment directory.
	BinName    = "index_native.bin"
	DocIDsName = "index_native_docids.json"
	MetaName   = "index_native_meta.json"
)

// Header is the 28-byte segment header.
type Header struct {
	Version uint32
	NDocs   uint32
	NPost9  uint64
	NPost13 uint64 // reserved, always 0
}

// DocMeta is the per-document metadata record.
type DocMeta struct {
	TokLen    uint32
	SimHashHi uint64
	SimHashLo uint64
}

// Posting is one occurrence of a shingle hash in a document. Postings of a
// sealed segment are sorted by (H, DID, Pos) ascending.
type Posting struct {
	H   uint64
	DID uint32
	Pos uint32
}

// Less reports whether p orders before q in (H, DID, Pos) order.
func (p Posting) Less(q Posting) bool {
	if p.H != q.H {
		return p.H < q.H
	}
	if p.DID != q.DID {
		return p.DID < q.DID
	}
	return p.Pos < q.Pos
}

// WriteHeader writes the header field-by-field.
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.NDocs)
	binary.LittleEndian.PutUint64(buf[12:20], h.NPost9)
	binary.LittleEndian.PutUint64(buf[20:28], h.NPost13)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing segment header: %w", err)
	}
	return nil
}

// ReadHeader reads and checks the header. It fails on a bad magic or an
// unsupported version.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("reading segment header: %w", err)
	}
	if string(buf[0:4]) != Magic {
		return Header{}, fmt.Errorf("invalid segment magic %q", buf[0:4])
	}
	h := Header{
		Version: binary.LittleEndian.Uint32(buf[4:8]),
		NDocs:   binary.LittleEndian.Uint32(buf[8:12]),
		NPost9:  binary.LittleEndian.Uint64(buf[12:20]),
		NPost13: binary.LittleEndian.Uint64(buf[20:28]),
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("unsupported segment version %d", h.Version)
	}
	return h, nil
}

// PutDocMeta encodes one doc-metadata record into buf, which must hold
// DocMetaSize bytes.
func PutDocMeta(buf []byte, dm DocMeta) {
	binary.LittleEndian.PutUint32(buf[0:4], dm.TokLen)
	binary.LittleEndian.PutUint64(buf[4:12], dm.SimHashHi)
	binary.LittleEndian.PutUint64(buf[12:20], dm.SimHashLo)
}

// GetDocMeta decodes one doc-metadata record from buf.
func GetDocMeta(buf []byte) DocMeta {
	return DocMeta{
		TokLen:    binary.LittleEndian.Uint32(buf[0:4]),
		SimHashHi: binary.LittleEndian.Uint64(buf[4:12]),
		SimHashLo: binary.LittleEndian.Uint64(buf[12:20]),
	}
}

// PutPosting encodes one posting into buf, which must hold PostingSize
// bytes.
func PutPosting(buf []byte, p Posting) {
	binary.LittleEndian.PutUint64(buf[0:8], p.H)
	binary.LittleEndian.PutUint32(buf[8:12], p.DID)
	binary.LittleEndian.PutUint32(buf[12:16], p.Pos)
}

// GetPosting decodes one posting from buf.
func GetPosting(buf []byte) Posting {
	return Posting{
		H:   binary.LittleEndian.Uint64(buf[0:8]),
		DID: binary.LittleEndian.Uint32(buf[8:12]),
		Pos: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// UTCNowCompact formats the current UTC time as YYYYMMDD_HHMMSS, the
// timestamp form used in segment names, meta files, and the manifest.
func UTCNowCompact() string {
	return time.Now().UTC().Format("20060102_150405")
}

// AtomicReplace renames tmp onto final. If the rename fails because the
// target name is taken, the target is removed and the rename retried.
func AtomicReplace(tmp, final string) error {
	if err := os.Rename(tmp, final); err == nil {
		return nil
	}
	if err := os.Remove(final); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", final, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("replacing %s: %w", final, err)
	}
	return nil
}
