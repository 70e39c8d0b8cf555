package search

import (
	"sort"

	"github.com/ProgrammerXX1/plagio/internal/query"
	"github.com/ProgrammerXX1/plagio/internal/segment"
	"github.com/ProgrammerXX1/plagio/internal/text"
)

// hashRange is the [lo, hi) postings slice matching one query hash. A
// range longer than the stop-hash threshold is dropped entirely: it
// contributes no hits and no span points.
type hashRange struct {
	item int
	lo   int
	hi   int
}

// InSegment runs the two-stage search over one loaded segment.
//
// Stage A counts, per document, the postings of the unique query hashes
// (one increment per posting, so a hash at several positions of a
// document counts once per position), prunes to hits >= MinHits, and
// partial-selects the top CandidatesTopN by hit count. Stage B walks the
// same ranges again, expands every query position of each matched hash
// into (qpos, dpos) points, and reconstructs collinear spans per
// candidate.
func InSegment(seg *segment.Data, infos []segment.DocInfo, q query.Shingles, opt Options) []Hit {
	if seg.Header.NDocs == 0 || len(seg.Postings) == 0 || len(q.Items) == 0 || len(infos) == 0 {
		return nil
	}

	// Guard against a doc-info array shorter than the header count.
	nSafe := seg.Header.NDocs
	if n := uint32(len(infos)); n < nSafe {
		nSafe = n
	}

	ranges := make([]hashRange, 0, len(q.Items))
	hits := make([]uint32, nSafe)
	for idx, item := range q.Items {
		lo, hi := equalRange(seg.Postings, item.H)
		if hi-lo > opt.MaxPostingsPerHash {
			continue // stop-hash
		}
		ranges = append(ranges, hashRange{item: idx, lo: lo, hi: hi})
		for i := lo; i < hi; i++ {
			if did := seg.Postings[i].DID; did < nSafe {
				hits[did]++
			}
		}
	}

	candidates := make([]uint32, 0, 256)
	for did := uint32(0); did < nSafe; did++ {
		if hits[did] >= uint32(opt.MinHits) {
			candidates = append(candidates, did)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > opt.CandidatesTopN {
		selectTopByHits(candidates, hits, opt.CandidatesTopN)
		candidates = candidates[:opt.CandidatesTopN]
	}

	// Stage B: one pass over the surviving ranges gathers the span points
	// of every candidate.
	candIndex := make(map[uint32]int, len(candidates))
	for i, did := range candidates {
		candIndex[did] = i
	}
	points := make([][]point, len(candidates))
	for _, r := range ranges {
		qpos := q.Items[r.item].QPos
		for i := r.lo; i < r.hi; i++ {
			p := seg.Postings[i]
			ci, ok := candIndex[p.DID]
			if !ok {
				continue
			}
			for _, qp := range qpos {
				points[ci] = append(points[ci], point{q: qp, d: p.Pos})
			}
		}
	}

	segName := seg.Name()
	out := make([]Hit, 0, len(candidates))
	for ci, did := range candidates {
		spans, matched := buildSpans(points[ci], opt)

		var dTotal uint32
		if tokLen := seg.DocMeta[did].TokLen; tokLen >= text.KShingle {
			dTotal = tokLen - text.KShingle + 1
		}
		covQ := clamp01(ratio(matched, q.TotalShingles))
		covD := clamp01(ratio(matched, dTotal))
		score := clamp01(opt.Alpha*covQ + (1-opt.Alpha)*covD)

		info := infos[did]
		out = append(out, Hit{
			DocID:          info.DocID,
			OrganizationID: info.OrganizationID,
			ExternalID:     info.ExternalID,
			SourceName:     info.SourceName,
			PreviewText:    info.PreviewText,
			SegmentName:    segName,
			Score:          score * 100,
			CoverageQuery:  covQ,
			CoverageDoc:    covD,
			Hits:           hits[did],
			MatchedCount:   matched,
			Spans:          spans,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Hits > out[j].Hits
	})
	if len(out) > opt.TopK {
		out = out[:opt.TopK]
	}
	return out
}

// point is one (query position, document position) match.
type point struct {
	q uint32
	d uint32
}

// buildSpans groups points by delta = dpos - qpos, merges each group
// greedily into gap-bounded runs, and returns the spans passing SpanMinLen
// (longest first, earliest q_start on ties, at most MaxSpansPerDoc) plus
// the total covered query length. The returned matched count is taken
// before the per-doc span cap: the cap bounds reported evidence, not the
// score.
func buildSpans(pts []point, opt Options) ([]Span, uint32) {
	if len(pts) == 0 {
		return nil, 0
	}

	byDelta := make(map[int64][]point)
	for _, p := range pts {
		delta := int64(p.d) - int64(p.q)
		byDelta[delta] = append(byDelta[delta], p)
	}

	var spans []Span
	var matched uint32
	gap := uint32(opt.SpanGap)
	for _, group := range byDelta {
		sort.Slice(group, func(i, j int) bool {
			if group[i].q != group[j].q {
				return group[i].q < group[j].q
			}
			return group[i].d < group[j].d
		})

		cur := Span{QStart: group[0].q, QEnd: group[0].q, DStart: group[0].d, DEnd: group[0].d}
		flush := func() {
			cur.LenShingles = cur.QEnd - cur.QStart + 1
			if cur.LenShingles >= uint32(opt.SpanMinLen) {
				matched += cur.LenShingles
				spans = append(spans, cur)
			}
		}
		for _, p := range group[1:] {
			if p.q <= cur.QEnd+1+gap && p.d <= cur.DEnd+1+gap {
				if p.q > cur.QEnd {
					cur.QEnd = p.q
				}
				if p.d > cur.DEnd {
					cur.DEnd = p.d
				}
				continue
			}
			flush()
			cur = Span{QStart: p.q, QEnd: p.q, DStart: p.d, DEnd: p.d}
		}
		flush()
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].LenShingles != spans[j].LenShingles {
			return spans[i].LenShingles > spans[j].LenShingles
		}
		return spans[i].QStart < spans[j].QStart
	})
	if len(spans) > opt.MaxSpansPerDoc {
		spans = spans[:opt.MaxSpansPerDoc]
	}
	return spans, matched
}

// equalRange returns the [lo, hi) bounds of postings with hash h.
func equalRange(postings []segment.Posting, h uint64) (int, int) {
	lo := sort.Search(len(postings), func(i int) bool { return postings[i].H >= h })
	hi := lo
	for hi < len(postings) && postings[hi].H == h {
		hi++
	}
	return lo, hi
}

// selectTopByHits partially orders dids so the first n entries are the n
// highest hit counts (quickselect; no full sort).
func selectTopByHits(dids []uint32, hits []uint32, n int) {
	lo, hi := 0, len(dids)-1
	for lo < hi {
		p := partitionByHits(dids, hits, lo, hi)
		switch {
		case p == n-1:
			return
		case p < n-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partitionByHits places one pivot at its final descending-order position
// and returns that position.
func partitionByHits(dids []uint32, hits []uint32, lo, hi int) int {
	mid := lo + (hi-lo)/2
	dids[mid], dids[hi] = dids[hi], dids[mid]
	pivot := hits[dids[hi]]
	i := lo
	for j := lo; j < hi; j++ {
		if hits[dids[j]] > pivot {
			dids[i], dids[j] = dids[j], dids[i]
			i++
		}
	}
	dids[i], dids[hi] = dids[hi], dids[i]
	return i
}

func ratio(num uint32, den uint32) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
