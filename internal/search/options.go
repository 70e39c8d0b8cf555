// Package search implements the two-stage, span-aware similarity search
// over sealed segments and the manifest-driven multi-segment union.
package search

import "github.com/ProgrammerXX1/plagio/pkg/config"

// Options controls one search request.
type Options struct {
	// TopK bounds the returned hit list.
	TopK int

	// CandidatesTopN bounds how many stage-A candidates enter span
	// reconstruction.
	CandidatesTopN int

	// MinHits is the stage-A candidate floor.
	MinHits int

	// MaxPostingsPerHash is the stop-hash threshold: a query hash whose
	// posting range is longer contributes nothing.
	MaxPostingsPerHash int

	// SpanMinLen drops spans covering fewer query shingles.
	SpanMinLen int

	// SpanGap is the tolerated hole inside a span, in shingle positions.
	SpanGap int

	// MaxSpansPerDoc bounds the spans reported per hit.
	MaxSpansPerDoc int

	// Alpha in [0,1] weighs query coverage against document coverage.
	Alpha float64
}

// Defaults returns the documented option defaults.
func Defaults() Options {
	return Options{
		TopK:               20,
		CandidatesTopN:     200,
		MinHits:            2,
		MaxPostingsPerHash: 50000,
		SpanMinLen:         6,
		SpanGap:            0,
		MaxSpansPerDoc:     10,
		Alpha:              0.60,
	}
}

// FromConfig maps the YAML search section onto Options, falling back to
// Defaults for unset fields.
func FromConfig(cfg config.SearchConfig) Options {
	o := Defaults()
	if cfg.TopK > 0 {
		o.TopK = cfg.TopK
	}
	if cfg.CandidatesTopN > 0 {
		o.CandidatesTopN = cfg.CandidatesTopN
	}
	if cfg.MinHits > 0 {
		o.MinHits = cfg.MinHits
	}
	if cfg.MaxPostingsPerHash > 0 {
		o.MaxPostingsPerHash = cfg.MaxPostingsPerHash
	}
	if cfg.SpanMinLen > 0 {
		o.SpanMinLen = cfg.SpanMinLen
	}
	if cfg.SpanGap > 0 {
		o.SpanGap = cfg.SpanGap
	}
	if cfg.MaxSpansPerDoc > 0 {
		o.MaxSpansPerDoc = cfg.MaxSpansPerDoc
	}
	if cfg.Alpha > 0 {
		o.Alpha = cfg.Alpha
	}
	return o
}
