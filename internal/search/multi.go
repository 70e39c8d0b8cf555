package search

import (
	"container/heap"
	"log/slog"
	"path/filepath"

	"github.com/ProgrammerXX1/plagio/internal/manifest"
	"github.com/ProgrammerXX1/plagio/internal/query"
	"github.com/ProgrammerXX1/plagio/internal/segment"
)

// Root searches every segment listed in the index root's manifest and
// returns the best hit per document, globally ranked.
func Root(root, queryText string, queryIsNormalized bool, opt Options) Result {
	return RootFiltered(root, queryText, queryIsNormalized, opt, nil)
}

// RootFiltered is Root with an optional exclusion predicate applied before
// ranking; the service uses it for tombstoned documents. Broken segments
// are skipped, not fatal, and do not count as scanned.
func RootFiltered(root, queryText string, queryIsNormalized bool, opt Options, exclude func(docID string) bool) Result {
	res := Result{Query: queryText, Matches: []Hit{}}
	logger := slog.Default().With("component", "multi-search")

	m := manifest.Load(root)
	q := query.Build(queryText, queryIsNormalized)
	if len(q.Items) == 0 {
		return res
	}

	best := make(map[string]Hit, 1024)
	for _, e := range m.Segments {
		segDir := filepath.Join(root, e.SegmentName)

		data, err := segment.Load(segDir)
		if err != nil {
			logger.Warn("skipping broken segment", "segment", e.SegmentName, "error", err)
			continue
		}
		infos, err := segment.LoadDocInfo(segDir)
		if err != nil {
			logger.Warn("skipping broken segment", "segment", e.SegmentName, "error", err)
			continue
		}
		res.SegmentsScanned++

		for _, h := range InSegment(data, infos, q, opt) {
			if exclude != nil && exclude(h.DocID) {
				continue
			}
			if prev, ok := best[h.DocID]; !ok || h.Score > prev.Score {
				best[h.DocID] = h
			}
		}
	}

	res.Matches = topK(best, opt.TopK)
	return res
}

// topK ranks the per-document union with a bounded min-heap, the same way
// shard results are merged: push every hit, pop the weakest once the heap
// exceeds k.
func topK(best map[string]Hit, k int) []Hit {
	if k <= 0 {
		k = 10
	}
	h := &hitHeap{}
	heap.Init(h)
	for _, hit := range best {
		heap.Push(h, hit)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}

type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Hits < h[j].Hits
}

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x interface{}) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
