package builder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ProgrammerXX1/plagio/internal/segment"
	"github.com/ProgrammerXX1/plagio/internal/text"
)

// corpusLine is one newline-delimited JSON document from the input stream.
type corpusLine struct {
	DocID            string `json:"doc_id"`
	Text             string `json:"text"`
	TextIsNormalized *bool  `json:"text_is_normalized"`
	Normalized       *bool  `json:"normalized"` // legacy alias
	ExternalID       string `json:"external_id"`
	OrganizationID   string `json:"organization_id"`
	SourcePath       string `json:"source_path"`
	SourceName       string `json:"source_name"`
}

// isNormalized resolves the normalization flag: the new field wins over the
// legacy alias; when both are absent the default depends on strict mode.
func (c *corpusLine) isNormalized(strict bool) bool {
	if c.TextIsNormalized != nil {
		return *c.TextIsNormalized
	}
	if c.Normalized != nil {
		return *c.Normalized
	}
	return !strict
}

// docResult is the per-document message workers hand to the ordered
// writer.
type docResult struct {
	did  uint32
	meta segment.DocMeta
	info segment.DocInfo
}

// previewBytes is the UTF-8-safe cap on the stored normalized-text
// preview.
const previewBytes = 240

// skip reasons tracked in BuildStats and the skipped-docs counter.
const (
	skipParse    = "parse"
	skipTooShort = "too_short"
	skipTooLong  = "too_long"
	skipCapped   = "capped"
)

// pipeline holds the shared state of one build run: the two bounded
// queues, the stop flag, the CAS-capped doc-id counter, and the skip
// counters.
type pipeline struct {
	opts    Options
	strict  bool
	segName string

	lineCh   chan string
	resultCh chan docResult

	stop       atomic.Bool
	didCounter atomic.Uint32

	skipped   atomic.Uint64
	skipStats sync.Map // reason -> *atomic.Uint64

	errMu    sync.Mutex
	firstErr error
}

func newPipeline(opts Options, strict bool, segName string, inflight int) *pipeline {
	return &pipeline{
		opts:     opts,
		strict:   strict,
		segName:  segName,
		lineCh:   make(chan string, inflight),
		resultCh: make(chan docResult, inflight),
	}
}

// fail records the first terminal error and raises the stop flag so every
// stage drains and finishes.
func (p *pipeline) fail(err error) {
	p.errMu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
	}
	p.errMu.Unlock()
	p.stop.Store(true)
}

func (p *pipeline) err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.firstErr
}

func (p *pipeline) skip(reason string) {
	p.skipped.Add(1)
	v, _ := p.skipStats.LoadOrStore(reason, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
}

// acquireDID issues the next local doc id with a compare-exchange loop so
// max_docs_in_segment is never over-issued. A failed acquire raises the
// stop flag and returns false.
func (p *pipeline) acquireDID() (uint32, bool) {
	for {
		cur := p.didCounter.Load()
		if p.opts.MaxDocsInSegment > 0 && cur >= uint32(p.opts.MaxDocsInSegment) {
			p.stop.Store(true)
			return 0, false
		}
		if p.didCounter.CompareAndSwap(cur, cur+1) {
			return cur, true
		}
	}
}

// readLines streams the corpus file into the line queue, skipping blank
// lines and lines over the size bound without buffering them whole. It
// closes the queue when the input ends or the stop flag is raised.
func (p *pipeline) readLines(r io.Reader) {
	defer close(p.lineCh)

	br := bufio.NewReaderSize(r, 1<<20)
	limit := p.opts.maxLineBytes()

	var buf []byte
	over := false
	for {
		if p.stop.Load() {
			return
		}
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			if !over {
				if len(buf)+len(chunk) > limit {
					over = true
					buf = buf[:0]
				} else {
					buf = append(buf, chunk...)
				}
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			p.fail(fmt.Errorf("reading corpus: %w", err))
			return
		}

		// end of one line (or of input)
		if over {
			p.skip(skipTooLong)
		} else if line := trimLine(buf); len(line) > 0 {
			p.lineCh <- string(line)
		}
		buf = buf[:0]
		over = false

		if err == io.EOF {
			return
		}
	}
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// worker drains the line queue, turning each document into postings in its
// own raw file plus a docResult for the ordered writer. On a terminal
// error the worker keeps draining the queue so the reader never blocks on
// a full channel.
func (p *pipeline) worker(postingsOut *os.File, postingCount *uint64) {
	w := bufio.NewWriterSize(postingsOut, 1<<20)
	var (
		spans  []text.TokenSpan
		hashes []uint64
		rec    [segment.PostingSize]byte
	)

	for line := range p.lineCh {
		if p.stop.Load() {
			continue
		}

		var doc corpusLine
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			p.skip(skipParse)
			continue
		}
		if doc.DocID == "" || doc.Text == "" {
			p.skip(skipParse)
			continue
		}

		normalized := doc.isNormalized(p.strict)
		raw := doc.Text
		if max := p.opts.MaxTextBytesPerDoc; max > 0 && len(raw) > max {
			if normalized {
				raw = text.TruncateUTF8(raw, max)
			} else {
				raw = raw[:max]
			}
		}

		norm := raw
		if !normalized {
			norm = text.Normalize(raw)
		}

		spans = text.TokenizeSpans(norm, spans)
		if max := p.opts.MaxTokensPerDoc; max > 0 && len(spans) > max {
			spans = spans[:max]
		}
		if len(spans) < text.KShingle {
			p.skip(skipTooShort)
			continue
		}

		hashes = text.HashTokens(norm, spans, hashes)
		hi, lo := text.SimHash128(hashes)

		did, ok := p.acquireDID()
		if !ok {
			p.skip(skipCapped)
			continue
		}

		cnt := len(spans) - text.KShingle + 1
		stride := p.opts.stride()
		maxSh := cnt
		if p.opts.MaxShinglesPerDoc > 0 && p.opts.MaxShinglesPerDoc < maxSh {
			maxSh = p.opts.MaxShinglesPerDoc
		}

		produced := 0
		writeErr := false
		for pos := 0; pos < cnt && produced < maxSh; pos += stride {
			h := text.HashShingle(hashes, pos, text.KShingle)
			segment.PutPosting(rec[:], segment.Posting{H: h, DID: did, Pos: uint32(pos)})
			if _, err := w.Write(rec[:]); err != nil {
				p.fail(fmt.Errorf("writing raw postings: %w", err))
				writeErr = true
				break
			}
			produced++
		}
		if writeErr {
			continue
		}
		*postingCount += uint64(produced)

		p.resultCh <- docResult{
			did: did,
			meta: segment.DocMeta{
				TokLen:    uint32(len(spans)),
				SimHashHi: hi,
				SimHashLo: lo,
			},
			info: segment.DocInfo{
				DocID:          doc.DocID,
				OrganizationID: doc.OrganizationID,
				ExternalID:     doc.ExternalID,
				SourcePath:     doc.SourcePath,
				SourceName:     doc.SourceName,
				MetaPath:       p.segName + "/",
				PreviewText:    text.TruncateUTF8(norm, previewBytes),
			},
		}
	}

	if err := w.Flush(); err != nil {
		p.fail(fmt.Errorf("flushing raw postings: %w", err))
	}
}

// runWriter is the single ordered writer: it buffers out-of-order
// docResults keyed by did and emits doc metadata and doc-info strictly in
// ascending did order, streaming the doc-info JSON array as it goes.
func (p *pipeline) runWriter(metaOut io.Writer, infoOut io.Writer) (uint32, error) {
	pending := make(map[uint32]docResult)
	next := uint32(0)

	var rec [segment.DocMetaSize]byte
	if _, err := io.WriteString(infoOut, "["); err != nil {
		return next, fmt.Errorf("writing doc info: %w", err)
	}

	emit := func(r docResult) error {
		segment.PutDocMeta(rec[:], r.meta)
		if _, err := metaOut.Write(rec[:]); err != nil {
			return fmt.Errorf("writing doc metadata: %w", err)
		}
		data, err := json.Marshal(r.info)
		if err != nil {
			return fmt.Errorf("encoding doc info: %w", err)
		}
		if r.did > 0 {
			if _, err := io.WriteString(infoOut, ","); err != nil {
				return fmt.Errorf("writing doc info: %w", err)
			}
		}
		if _, err := infoOut.Write(data); err != nil {
			return fmt.Errorf("writing doc info: %w", err)
		}
		return nil
	}

	var werr error
	for r := range p.resultCh {
		if werr != nil {
			continue // drain so workers never block on a dead writer
		}
		pending[r.did] = r
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := emit(cur); err != nil {
				werr = err
				p.fail(err)
				break
			}
			next++
		}
	}
	if werr != nil {
		return next, werr
	}

	if len(pending) != 0 {
		return next, fmt.Errorf("doc id sequence has %d gaps after drain", len(pending))
	}
	if _, err := io.WriteString(infoOut, "]"); err != nil {
		return next, fmt.Errorf("writing doc info: %w", err)
	}
	return next, nil
}
