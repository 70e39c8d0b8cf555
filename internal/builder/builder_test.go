package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProgrammerXX1/plagio/internal/manifest"
	"github.com/ProgrammerXX1/plagio/internal/segment"
	"github.com/ProgrammerXX1/plagio/internal/text"
	apperrors "github.com/ProgrammerXX1/plagio/pkg/errors"
)

func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func docLine(t *testing.T, docID, textVal string, extra map[string]any) string {
	t.Helper()
	m := map[string]any{"doc_id": docID, "text": textVal, "text_is_normalized": true}
	for k, v := range extra {
		m[k] = v
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func mustBuild(t *testing.T, corpus string, opts Options) (BuildStats, string) {
	t.Helper()
	root := t.TempDir()
	st, err := New(opts, nil).Build(context.Background(), corpus, root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return st, root
}

func tokens(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("t%d", i)
	}
	return strings.Join(parts, " ")
}

func TestBuildBasic(t *testing.T) {
	corpus := writeCorpus(t,
		docLine(t, "d1", "a b c d e f g h i", map[string]any{"organization_id": "org1", "source_name": "one.txt"}),
		docLine(t, "d2", tokens(12), nil),
	)
	st, root := mustBuild(t, corpus, Options{SegmentName: "seg_test", MaxThreads: 1})

	if st.Docs != 2 {
		t.Errorf("docs = %d, want 2", st.Docs)
	}
	// d1: 1 shingle; d2: 12-9+1 = 4 shingles.
	if st.Post9 != 5 {
		t.Errorf("postings = %d, want 5", st.Post9)
	}

	segDir := filepath.Join(root, "seg_test")
	if vr := segment.Validate(segDir); !vr.OK {
		t.Fatalf("validator rejected fresh segment: %v", vr.Errors)
	}

	data, err := segment.Load(segDir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(data.Postings); i++ {
		if data.Postings[i].Less(data.Postings[i-1]) {
			t.Fatal("postings not globally sorted")
		}
	}

	infos, err := segment.LoadDocInfo(segDir)
	if err != nil {
		t.Fatal(err)
	}
	if infos[0].DocID != "d1" || infos[1].DocID != "d2" {
		t.Errorf("doc info order: %+v", infos)
	}
	if infos[0].OrganizationID != "org1" || infos[0].SourceName != "one.txt" {
		t.Errorf("provenance not carried: %+v", infos[0])
	}
	if infos[0].MetaPath != "seg_test/" {
		t.Errorf("meta path = %q", infos[0].MetaPath)
	}
	if infos[0].PreviewText != "a b c d e f g h i" {
		t.Errorf("preview = %q", infos[0].PreviewText)
	}

	m := manifest.Load(root)
	if len(m.Segments) != 1 || m.Segments[0].SegmentName != "seg_test" {
		t.Errorf("manifest = %+v", m)
	}
	if m.Segments[0].Stats.Docs != 2 || m.Segments[0].Stats.K9 != 5 {
		t.Errorf("manifest stats = %+v", m.Segments[0].Stats)
	}

	var meta segment.Meta
	raw, err := os.ReadFile(filepath.Join(segDir, segment.MetaName))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.SegmentName != "seg_test" || meta.Stats.Docs != 2 || meta.Stats.K9 != 5 || meta.Stats.K13 != 0 {
		t.Errorf("meta = %+v", meta)
	}

	entries, err := os.ReadDir(segDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") || e.Name() == scratchDirName {
			t.Errorf("build residue left behind: %s", e.Name())
		}
	}
}

func TestBuildPostingsMatchTextPipeline(t *testing.T) {
	doc := tokens(11)
	corpus := writeCorpus(t, docLine(t, "d1", doc, nil))
	_, root := mustBuild(t, corpus, Options{SegmentName: "seg_hashes", MaxThreads: 1})

	data, err := segment.Load(filepath.Join(root, "seg_hashes"))
	if err != nil {
		t.Fatal(err)
	}

	spans := text.TokenizeSpans(doc, nil)
	hashes := text.HashTokens(doc, spans, nil)
	want := map[uint64]bool{}
	for pos := 0; pos <= len(spans)-text.KShingle; pos++ {
		want[text.HashShingle(hashes, pos, text.KShingle)] = true
	}
	if len(data.Postings) != len(want) {
		t.Fatalf("got %d postings, want %d", len(data.Postings), len(want))
	}
	for _, p := range data.Postings {
		if !want[p.H] {
			t.Errorf("unexpected shingle hash %#x", p.H)
		}
	}

	if data.DocMeta[0].TokLen != 11 {
		t.Errorf("tok_len = %d, want 11", data.DocMeta[0].TokLen)
	}
	hi, lo := text.SimHash128(hashes)
	if data.DocMeta[0].SimHashHi != hi || data.DocMeta[0].SimHashLo != lo {
		t.Error("persisted simhash does not match the text pipeline")
	}
}

func TestBuildSkipsMalformedLines(t *testing.T) {
	corpus := writeCorpus(t,
		"{broken json",
		docLine(t, "", "a b c d e f g h i", nil),   // empty doc_id
		docLine(t, "d-no-text", "", nil),           // empty text
		docLine(t, "d-short", "a b c", nil),        // under k tokens
		docLine(t, "ok", tokens(10), nil),
	)
	st, root := mustBuild(t, corpus, Options{SegmentName: "seg_skip", MaxThreads: 1})
	if st.Docs != 1 {
		t.Errorf("docs = %d, want 1", st.Docs)
	}
	if st.Skipped != 4 {
		t.Errorf("skipped = %d, want 4", st.Skipped)
	}
	if vr := segment.Validate(filepath.Join(root, "seg_skip")); !vr.OK {
		t.Errorf("validator: %v", vr.Errors)
	}
}

func TestBuildMaxDocsCap(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = docLine(t, fmt.Sprintf("d%d", i), tokens(9), nil)
	}
	corpus := writeCorpus(t, lines...)
	st, _ := mustBuild(t, corpus, Options{MaxDocsInSegment: 3, MaxThreads: 4})
	if st.Docs != 3 {
		t.Errorf("docs = %d, want exactly the cap 3", st.Docs)
	}
	if st.Post9 != 3 {
		t.Errorf("postings = %d, want 3", st.Post9)
	}
}

func TestBuildShingleCounts(t *testing.T) {
	tests := []struct {
		m, stride, cap int
		want           uint64
	}{
		{9, 1, 0, 1},
		{12, 1, 0, 4},
		{13, 2, 0, 3},
		{20, 3, 0, 4},
		{12, 1, 2, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("m%d_s%d_cap%d", tt.m, tt.stride, tt.cap), func(t *testing.T) {
			corpus := writeCorpus(t, docLine(t, "d", tokens(tt.m), nil))
			st, _ := mustBuild(t, corpus, Options{
				MaxThreads:        1,
				ShingleStride:     tt.stride,
				MaxShinglesPerDoc: tt.cap,
			})
			if st.Post9 != tt.want {
				t.Errorf("postings = %d, want %d", st.Post9, tt.want)
			}
		})
	}
}

func TestBuildMaxTokensPerDoc(t *testing.T) {
	corpus := writeCorpus(t, docLine(t, "d", tokens(50), nil))
	st, root := mustBuild(t, corpus, Options{SegmentName: "s", MaxThreads: 1, MaxTokensPerDoc: 12})
	if st.Post9 != 4 {
		t.Errorf("postings = %d, want 4 after token truncation", st.Post9)
	}
	data, err := segment.Load(filepath.Join(root, "s"))
	if err != nil {
		t.Fatal(err)
	}
	if data.DocMeta[0].TokLen != 12 {
		t.Errorf("tok_len = %d, want 12", data.DocMeta[0].TokLen)
	}
}

func TestBuildNormalizesRawText(t *testing.T) {
	line, _ := json.Marshal(map[string]any{
		"doc_id":             "d1",
		"text":               "A! B? C. D, E; F: G(H)I J",
		"text_is_normalized": false,
	})
	corpus := writeCorpus(t, string(line))
	_, root := mustBuild(t, corpus, Options{SegmentName: "s", MaxThreads: 1})

	infos, err := segment.LoadDocInfo(filepath.Join(root, "s"))
	if err != nil {
		t.Fatal(err)
	}
	if infos[0].PreviewText != "a b c d e f g h i j" {
		t.Errorf("preview = %q, want normalized text", infos[0].PreviewText)
	}
}

func TestBuildLegacyNormalizedAlias(t *testing.T) {
	line, _ := json.Marshal(map[string]any{
		"doc_id":     "d1",
		"text":       "A B C D E F G H I",
		"normalized": false,
	})
	corpus := writeCorpus(t, string(line))
	_, root := mustBuild(t, corpus, Options{SegmentName: "s", MaxThreads: 1})

	infos, err := segment.LoadDocInfo(filepath.Join(root, "s"))
	if err != nil {
		t.Fatal(err)
	}
	if infos[0].PreviewText != "a b c d e f g h i" {
		t.Errorf("legacy flag ignored, preview = %q", infos[0].PreviewText)
	}
}

func TestBuildStrictMode(t *testing.T) {
	// No normalization flag at all: strict mode treats the text as raw.
	line, _ := json.Marshal(map[string]any{"doc_id": "d1", "text": "A B C D E F G H I"})
	corpus := writeCorpus(t, string(line))
	_, root := mustBuild(t, corpus, Options{
		SegmentName:            "s",
		MaxThreads:             1,
		StrictTextIsNormalized: true,
	})

	infos, err := segment.LoadDocInfo(filepath.Join(root, "s"))
	if err != nil {
		t.Fatal(err)
	}
	if infos[0].PreviewText != "a b c d e f g h i" {
		t.Errorf("strict mode did not normalize, preview = %q", infos[0].PreviewText)
	}
}

func TestBuildNoValidDocs(t *testing.T) {
	corpus := writeCorpus(t, "{bad", docLine(t, "d", "too short", nil))
	root := t.TempDir()
	_, err := New(Options{SegmentName: "seg_none", MaxThreads: 1}, nil).
		Build(context.Background(), corpus, root)
	if !errors.Is(err, apperrors.ErrNoValidDocs) {
		t.Fatalf("err = %v, want ErrNoValidDocs", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "seg_none")); !os.IsNotExist(statErr) {
		t.Error("failed build must remove its segment directory")
	}
	if m := manifest.Load(root); len(m.Segments) != 0 {
		t.Error("failed build must not touch the manifest")
	}
}

func TestBuildSegmentExists(t *testing.T) {
	corpus := writeCorpus(t, docLine(t, "d", tokens(9), nil))
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "seg_dup"), 0755); err != nil {
		t.Fatal(err)
	}
	_, err := New(Options{SegmentName: "seg_dup"}, nil).Build(context.Background(), corpus, root)
	if !errors.Is(err, apperrors.ErrSegmentExists) {
		t.Fatalf("err = %v, want ErrSegmentExists", err)
	}
	// The pre-existing directory must survive.
	if _, statErr := os.Stat(filepath.Join(root, "seg_dup")); statErr != nil {
		t.Error("existing segment directory was removed")
	}
}

func TestBuildMissingCorpus(t *testing.T) {
	_, err := New(Options{}, nil).Build(context.Background(),
		filepath.Join(t.TempDir(), "absent.jsonl"), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing corpus")
	}
}

func TestBuildSkipsOverlongLine(t *testing.T) {
	// The line bound is clipped to at least 2 MiB; this line exceeds it.
	huge := docLine(t, "huge", strings.Repeat("a ", 1<<20)+tokens(9), nil)
	corpus := writeCorpus(t,
		huge,
		docLine(t, "ok", tokens(9), nil),
	)
	st, _ := mustBuild(t, corpus, Options{MaxThreads: 1})
	if st.Docs != 1 {
		t.Errorf("docs = %d, want 1 (overlong line skipped)", st.Docs)
	}
	if st.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", st.Skipped)
	}
}

func TestBuildConcurrentWorkersRoundTrip(t *testing.T) {
	const n = 500
	lines := make([]string, n)
	for i := range lines {
		lines[i] = docLine(t, fmt.Sprintf("d%04d", i), tokens(9+i%30), nil)
	}
	corpus := writeCorpus(t, lines...)
	st, root := mustBuild(t, corpus, Options{
		SegmentName: "seg_many",
		MaxThreads:  4,
		// A small envelope forces the run-merge path in the wild.
		RAMLimitBytes: 64 * 2 * segment.PostingSize,
	})
	if st.Docs != n {
		t.Fatalf("docs = %d, want %d", st.Docs, n)
	}

	segDir := filepath.Join(root, "seg_many")
	if vr := segment.Validate(segDir); !vr.OK {
		t.Fatalf("validator: %v", vr.Errors)
	}

	infos, err := segment.LoadDocInfo(segDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != n {
		t.Fatalf("doc info length = %d, want %d", len(infos), n)
	}
	seen := make(map[string]bool, n)
	for _, di := range infos {
		if seen[di.DocID] {
			t.Fatalf("duplicate doc id %s", di.DocID)
		}
		seen[di.DocID] = true
	}
}
