package search

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootUnionBestPerDoc(t *testing.T) {
	const phrase = "a b c d e f g h i"
	root := t.TempDir()

	// The same doc id appears in both segments; the second copy embeds the
	// phrase in a longer document and scores lower.
	buildSegmentInto(t, root, "seg_one", map[string]string{
		"shared": phrase,
		"only1":  "p q r s t u v w x",
	})
	buildSegmentInto(t, root, "seg_two", map[string]string{
		"shared": phrase + " z0 z1 z2 z3 z4 z5 z6 z7 z8",
		"only2":  phrase + " tail0",
	})

	res := Root(root, phrase, true, testOptions())
	if res.SegmentsScanned != 2 {
		t.Errorf("segments scanned = %d, want 2", res.SegmentsScanned)
	}

	byDoc := map[string]Hit{}
	for _, h := range res.Matches {
		if prev, dup := byDoc[h.DocID]; dup {
			t.Fatalf("doc %s appears twice: %+v / %+v", h.DocID, prev, h)
		}
		byDoc[h.DocID] = h
	}

	shared, ok := byDoc["shared"]
	if !ok {
		t.Fatal("shared doc missing from union")
	}
	if shared.Score != 100.0 || shared.SegmentName != "seg_one" {
		t.Errorf("union kept %+v, want the exact copy from seg_one", shared)
	}
	if _, ok := byDoc["only2"]; !ok {
		t.Error("only2 missing from union")
	}

	for i := 1; i < len(res.Matches); i++ {
		if res.Matches[i].Score > res.Matches[i-1].Score {
			t.Fatal("matches not sorted by score descending")
		}
	}
}

func TestRootTopK(t *testing.T) {
	const phrase = "a b c d e f g h i"
	root := t.TempDir()
	docs := map[string]string{}
	for i := 0; i < 9; i++ {
		docs[string(rune('a'+i))] = phrase
	}
	buildSegmentInto(t, root, "seg", docs)

	opt := testOptions()
	opt.TopK = 3
	res := Root(root, phrase, true, opt)
	if len(res.Matches) != 3 {
		t.Errorf("got %d matches, want topk=3", len(res.Matches))
	}
}

func TestRootSkipsBrokenSegment(t *testing.T) {
	const phrase = "a b c d e f g h i"
	root := t.TempDir()
	buildSegmentInto(t, root, "seg_good", map[string]string{"d1": phrase})
	buildSegmentInto(t, root, "seg_bad", map[string]string{"d2": phrase})

	// Corrupt the second segment after sealing.
	if err := os.Remove(filepath.Join(root, "seg_bad", "index_native.bin")); err != nil {
		t.Fatal(err)
	}

	res := Root(root, phrase, true, testOptions())
	if res.SegmentsScanned != 1 {
		t.Errorf("segments scanned = %d, want 1 (broken skipped)", res.SegmentsScanned)
	}
	if len(res.Matches) != 1 || res.Matches[0].DocID != "d1" {
		t.Errorf("matches = %+v, want only d1", res.Matches)
	}
}

func TestRootMissingManifest(t *testing.T) {
	res := Root(t.TempDir(), "a b c d e f g h i", true, testOptions())
	if res.SegmentsScanned != 0 || len(res.Matches) != 0 {
		t.Errorf("empty root should return nothing, got %+v", res)
	}
}

func TestRootShortQuery(t *testing.T) {
	root := t.TempDir()
	buildSegmentInto(t, root, "seg", map[string]string{"d": "a b c d e f g h i"})
	res := Root(root, "too short", true, testOptions())
	if len(res.Matches) != 0 {
		t.Errorf("short query must return nothing, got %+v", res.Matches)
	}
}

func TestRootFilteredExcludes(t *testing.T) {
	const phrase = "a b c d e f g h i"
	root := t.TempDir()
	buildSegmentInto(t, root, "seg", map[string]string{"keep": phrase, "gone": phrase})

	res := RootFiltered(root, phrase, true, testOptions(), func(docID string) bool {
		return docID == "gone"
	})
	if len(res.Matches) != 1 || res.Matches[0].DocID != "keep" {
		t.Errorf("matches = %+v, want only keep", res.Matches)
	}
}
