// Package manifest maintains the append-only registry of segments under an
// index root.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProgrammerXX1/plagio/internal/segment"
)

// FileName is the manifest file at the index root.
const FileName = "level5_manifest.json"

// Stats holds the per-segment posting counters recorded at build time.
type Stats struct {
	Docs uint32 `json:"docs"`
	K9   uint64 `json:"k9"`
	K13  uint64 `json:"k13"`
}

// Entry describes one sealed segment.
type Entry struct {
	SegmentName string `json:"segment_name"`
	Path        string `json:"path"`
	BuiltAtUTC  string `json:"built_at_utc"`
	Stats       Stats  `json:"stats"`
}

// Manifest is the decoded registry.
type Manifest struct {
	Segments []Entry `json:"segments"`
}

// Load reads the manifest at the index root. A missing, unreadable, or
// malformed file loads as an empty manifest; entries without a name or
// path are dropped.
func Load(root string) Manifest {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		return m
	}
	var raw Manifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return m
	}
	for _, e := range raw.Segments {
		if e.SegmentName == "" || e.Path == "" {
			continue
		}
		m.Segments = append(m.Segments, e)
	}
	return m
}

// Append adds one entry with read-modify-write and atomic replace. Callers
// running concurrent builds must serialize appends at a higher layer.
func Append(root string, e Entry) error {
	m := Load(root)
	m.Segments = append(m.Segments, e)

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	final := filepath.Join(root, FileName)
	tmp := final + ".tmp"
	if err := writeFileSync(tmp, data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := segment.AtomicReplace(tmp, final); err != nil {
		return fmt.Errorf("publishing manifest: %w", err)
	}
	return nil
}

// ValidateRoot validates every segment listed in the manifest and collects
// the violations per segment.
func ValidateRoot(root string) segment.ValidationResult {
	var vr segment.ValidationResult
	m := Load(root)
	if len(m.Segments) == 0 {
		vr.Errors = append(vr.Errors, "manifest has no segments (or missing)")
		return vr
	}
	for _, e := range m.Segments {
		r := segment.Validate(filepath.Join(root, e.SegmentName))
		for _, msg := range r.Errors {
			vr.Errors = append(vr.Errors, e.SegmentName+": "+msg)
		}
	}
	vr.OK = len(vr.Errors) == 0
	return vr
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
