package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func entry(name string) Entry {
	return Entry{
		SegmentName: name,
		Path:        name + "/",
		BuiltAtUTC:  "20260101_000000",
		Stats:       Stats{Docs: 2, K9: 10},
	}
}

func TestLoadMissing(t *testing.T) {
	m := Load(t.TempDir())
	if len(m.Segments) != 0 {
		t.Errorf("missing manifest should load empty, got %+v", m)
	}
}

func TestLoadCorrupt(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, FileName), []byte("{not json"), 0644)
	m := Load(root)
	if len(m.Segments) != 0 {
		t.Errorf("corrupt manifest should load empty, got %+v", m)
	}
}

func TestAppendAndLoad(t *testing.T) {
	root := t.TempDir()

	for _, name := range []string{"seg_a", "seg_b", "seg_c"} {
		if err := Append(root, entry(name)); err != nil {
			t.Fatalf("Append(%s): %v", name, err)
		}
	}

	m := Load(root)
	if len(m.Segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(m.Segments))
	}
	for i, want := range []string{"seg_a", "seg_b", "seg_c"} {
		if m.Segments[i].SegmentName != want {
			t.Errorf("segment %d = %q, want %q", i, m.Segments[i].SegmentName, want)
		}
	}
	if m.Segments[0].Stats.Docs != 2 || m.Segments[0].Stats.K9 != 10 {
		t.Errorf("stats not preserved: %+v", m.Segments[0].Stats)
	}

	if _, err := os.Stat(filepath.Join(root, FileName+".tmp")); !os.IsNotExist(err) {
		t.Error("tmp manifest left behind")
	}
}

func TestLoadDropsIncompleteEntries(t *testing.T) {
	root := t.TempDir()
	data := `{"segments":[{"segment_name":"ok","path":"ok/"},{"segment_name":"","path":"x/"},{"segment_name":"y","path":""}]}`
	os.WriteFile(filepath.Join(root, FileName), []byte(data), 0644)
	m := Load(root)
	if len(m.Segments) != 1 || m.Segments[0].SegmentName != "ok" {
		t.Errorf("expected only the complete entry, got %+v", m.Segments)
	}
}

func TestValidateRootEmpty(t *testing.T) {
	vr := ValidateRoot(t.TempDir())
	if vr.OK {
		t.Error("empty root should fail validation")
	}
}

func TestValidateRootBrokenSegment(t *testing.T) {
	root := t.TempDir()
	if err := Append(root, entry("seg_missing")); err != nil {
		t.Fatal(err)
	}
	vr := ValidateRoot(root)
	if vr.OK {
		t.Error("missing segment dir should fail validation")
	}
}
