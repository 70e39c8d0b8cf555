package builder

import (
	"runtime"

	"github.com/ProgrammerXX1/plagio/pkg/config"
)

// Options controls one segment build. Zero values fall back to the
// defaults below.
type Options struct {
	// SegmentName overrides the auto-generated seg_<utc-compact> name.
	SegmentName string

	// StrictTextIsNormalized makes a missing normalization flag mean "not
	// normalized". The PLAGIO_STRICT_TEXT_IS_NORMALIZED environment switch
	// can also enable it.
	StrictTextIsNormalized bool

	// MaxTextBytesPerDoc truncates text input; at a UTF-8-safe boundary
	// when the text arrives pre-normalized, raw byte cut otherwise.
	MaxTextBytesPerDoc int

	// MaxTokensPerDoc truncates the token stream.
	MaxTokensPerDoc int

	// MaxShinglesPerDoc caps postings emitted per document.
	MaxShinglesPerDoc int

	// MaxDocsInSegment stops the build after the first N committed
	// documents. 0 means unlimited.
	MaxDocsInSegment int

	// ShingleStride is the step between shingle positions.
	ShingleStride int

	// MaxThreads bounds the worker pool, clipped by GOMAXPROCS.
	MaxThreads int

	// InflightDocs bounds each pipeline queue. Defaults to
	// max(32, 4*threads).
	InflightDocs int

	// RAMLimitBytes is the external-sort working-set envelope per bucket.
	RAMLimitBytes int64
}

const (
	defaultMaxThreads    = 16
	defaultRAMLimitBytes = 256 << 20
)

// FromConfig maps the YAML builder section onto Options.
func FromConfig(cfg config.BuilderConfig) Options {
	return Options{
		StrictTextIsNormalized: cfg.StrictTextIsNormalized,
		MaxTextBytesPerDoc:     cfg.MaxTextBytesPerDoc,
		MaxTokensPerDoc:        cfg.MaxTokensPerDoc,
		MaxShinglesPerDoc:      cfg.MaxShinglesPerDoc,
		MaxDocsInSegment:       cfg.MaxDocsInSegment,
		ShingleStride:          cfg.ShingleStride,
		MaxThreads:             cfg.MaxThreads,
		InflightDocs:           cfg.InflightDocs,
		RAMLimitBytes:          cfg.RAMLimitBytes,
	}
}

// threads resolves the worker count.
func (o Options) threads() int {
	max := o.MaxThreads
	if max <= 0 {
		max = defaultMaxThreads
	}
	if hw := runtime.GOMAXPROCS(0); hw < max {
		max = hw
	}
	if max < 1 {
		max = 1
	}
	return max
}

// inflight resolves the queue bound for a given worker count.
func (o Options) inflight(threads int) int {
	if o.InflightDocs > 0 {
		return o.InflightDocs
	}
	n := 4 * threads
	if n < 32 {
		n = 32
	}
	return n
}

// stride resolves the shingle step.
func (o Options) stride() int {
	if o.ShingleStride > 0 {
		return o.ShingleStride
	}
	return 1
}

// ramLimit resolves the external-sort envelope.
func (o Options) ramLimit() int64 {
	if o.RAMLimitBytes > 0 {
		return o.RAMLimitBytes
	}
	return defaultRAMLimitBytes
}

// maxLineBytes bounds a queued corpus line: max_text_bytes_per_doc plus
// 1 MiB of JSON envelope slack, clipped to at least 2 MiB. Longer lines
// are skipped before queueing.
func (o Options) maxLineBytes() int {
	limit := 2 << 20
	if o.MaxTextBytesPerDoc > 0 {
		if n := o.MaxTextBytesPerDoc + 1<<20; n > limit {
			limit = n
		}
	}
	return limit
}

// BuildStats summarizes one completed build.
type BuildStats struct {
	SegmentName            string
	SegDir                 string
	Docs                   uint32
	Post9                  uint64
	Skipped                uint64
	Threads                int
	StrictTextIsNormalized bool
	BuiltAtUTC             string
}
