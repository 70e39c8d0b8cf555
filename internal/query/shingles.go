// Package query turns query text into the unique shingle-hash set consumed
// by the per-segment search.
package query

import (
	"sort"

	"github.com/ProgrammerXX1/plagio/internal/text"
)

// HashPositions pairs one unique shingle hash with every query position it
// occurs at, ascending.
type HashPositions struct {
	H    uint64
	QPos []uint32
}

// Shingles is the deduplicated query fingerprint. Items are ordered by
// hash for determinism; TotalShingles counts every occurrence including
// repeats. An empty Items slice is a valid sentinel that short-circuits
// search.
type Shingles struct {
	Items         []HashPositions
	TotalShingles uint32
}

// Build normalizes the query (unless the caller declares it normalized),
// tokenizes it, and computes every k-shingle hash. Queries shorter than k
// tokens produce the empty sentinel.
func Build(queryText string, textIsNormalized bool) Shingles {
	norm := queryText
	if !textIsNormalized {
		norm = text.Normalize(queryText)
	}

	spans := text.TokenizeSpans(norm, nil)
	var q Shingles
	if len(spans) < text.KShingle {
		return q
	}

	hashes := text.HashTokens(norm, spans, nil)
	cnt := len(spans) - text.KShingle + 1

	byHash := make(map[uint64][]uint32, cnt)
	for pos := 0; pos < cnt; pos++ {
		h := text.HashShingle(hashes, pos, text.KShingle)
		byHash[h] = append(byHash[h], uint32(pos))
	}

	q.TotalShingles = uint32(cnt)
	q.Items = make([]HashPositions, 0, len(byHash))
	for h, positions := range byHash {
		q.Items = append(q.Items, HashPositions{H: h, QPos: positions})
	}
	sort.Slice(q.Items, func(i, j int) bool { return q.Items[i].H < q.Items[j].H })
	return q
}
