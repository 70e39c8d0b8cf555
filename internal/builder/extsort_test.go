package builder

import (
	"bufio"
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ProgrammerXX1/plagio/internal/segment"
)

func randomPostings(r *rand.Rand, n int) []segment.Posting {
	out := make([]segment.Posting, n)
	for i := range out {
		out[i] = segment.Posting{
			H:   r.Uint64(),
			DID: uint32(r.Intn(64)),
			Pos: uint32(r.Intn(1024)),
		}
	}
	return out
}

func sortedCopy(postings []segment.Posting) []segment.Posting {
	out := append([]segment.Posting(nil), postings...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func TestRadixSortPostings(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, 3, 100, 4096} {
		got := randomPostings(r, n)
		want := sortedCopy(got)
		radixSortPostings(got)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("n=%d: index %d = %+v, want %+v", n, i, got[i], want[i])
			}
		}
	}
}

func TestRadixSortStableOnDuplicates(t *testing.T) {
	postings := []segment.Posting{
		{H: 5, DID: 1, Pos: 9},
		{H: 5, DID: 1, Pos: 1},
		{H: 5, DID: 0, Pos: 4},
		{H: 5, DID: 1, Pos: 1},
	}
	radixSortPostings(postings)
	want := []segment.Posting{
		{H: 5, DID: 0, Pos: 4},
		{H: 5, DID: 1, Pos: 1},
		{H: 5, DID: 1, Pos: 1},
		{H: 5, DID: 1, Pos: 9},
	}
	for i := range want {
		if postings[i] != want[i] {
			t.Errorf("index %d = %+v, want %+v", i, postings[i], want[i])
		}
	}
}

func writeRawFile(t *testing.T, path string, postings []segment.Posting) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := bufio.NewWriter(f)
	var rec [segment.PostingSize]byte
	for _, p := range postings {
		segment.PutPosting(rec[:], p)
		w.Write(rec[:])
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func runExternalSort(t *testing.T, postings []segment.Posting, ramLimit int64) []segment.Posting {
	t.Helper()
	dir := t.TempDir()
	scratch := filepath.Join(dir, "scratch")
	if err := os.MkdirAll(scratch, 0755); err != nil {
		t.Fatal(err)
	}

	// Split the input across two worker files, as the pipeline would.
	half := len(postings) / 2
	f1 := filepath.Join(dir, "w0.raw")
	f2 := filepath.Join(dir, "w1.raw")
	writeRawFile(t, f1, postings[:half])
	writeRawFile(t, f2, postings[half:])

	var out bytes.Buffer
	if err := externalSort([]string{f1, f2}, scratch, ramLimit, &out); err != nil {
		t.Fatalf("externalSort: %v", err)
	}

	raw := out.Bytes()
	if len(raw)%segment.PostingSize != 0 {
		t.Fatalf("output size %d not a multiple of the record size", len(raw))
	}
	got := make([]segment.Posting, len(raw)/segment.PostingSize)
	for i := range got {
		got[i] = segment.GetPosting(raw[i*segment.PostingSize:])
	}
	return got
}

func TestExternalSortInMemoryBuckets(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	postings := randomPostings(r, 5000)
	got := runExternalSort(t, postings, 64<<20)
	want := sortedCopy(postings)
	if len(got) != len(want) {
		t.Fatalf("got %d postings, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExternalSortRunMergePath(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	postings := randomPostings(r, 5000)

	// A tiny envelope forces every bucket through sorted runs + merge.
	small := runExternalSort(t, postings, 8*2*segment.PostingSize)
	big := runExternalSort(t, postings, 64<<20)

	if len(small) != len(big) {
		t.Fatalf("run-merge produced %d postings, in-memory %d", len(small), len(big))
	}
	for i := range big {
		if small[i] != big[i] {
			t.Fatalf("run-merge and in-memory outputs differ at %d: %+v != %+v", i, small[i], big[i])
		}
	}
}

func TestExternalSortEmpty(t *testing.T) {
	got := runExternalSort(t, nil, 1<<20)
	if len(got) != 0 {
		t.Errorf("expected no postings, got %d", len(got))
	}
}
