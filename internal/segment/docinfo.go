package segment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DocInfo is the descriptive record stored one-to-one with a local doc id.
// Only DocID is required; the rest is provenance carried through from
// ingestion.
type DocInfo struct {
	DocID          string `json:"doc_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
	SourcePath     string `json:"source_path,omitempty"`
	SourceName     string `json:"source_name,omitempty"`
	MetaPath       string `json:"meta_path,omitempty"`
	PreviewText    string `json:"preview_text,omitempty"`
}

// UnmarshalJSON accepts both the object form and the legacy bare-string
// form, where the string is the doc_id and every other field is empty.
func (d *DocInfo) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DocInfo{DocID: s}
		return nil
	}
	type docInfoAlias DocInfo
	var a docInfoAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = DocInfo(a)
	return nil
}

// LoadDocInfo reads index_native_docids.json from a segment directory. The
// file is a JSON array in local-doc-id order, in either the object or the
// legacy string form.
func LoadDocInfo(segDir string) ([]DocInfo, error) {
	path := filepath.Join(segDir, DocIDsName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading doc info %s: %w", path, err)
	}
	var infos []DocInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("parsing doc info %s: %w", path, err)
	}
	return infos, nil
}

// Meta is the index_native_meta.json summary written at build time.
type Meta struct {
	SegmentName            string    `json:"segment_name"`
	BuiltAtUTC             string    `json:"built_at_utc"`
	Stats                  MetaStats `json:"stats"`
	StrictTextIsNormalized int       `json:"strict_text_is_normalized"`
}

// MetaStats mirrors the manifest per-segment counters.
type MetaStats struct {
	Docs uint32 `json:"docs"`
	K9   uint64 `json:"k9"`
	K13  uint64 `json:"k13"`
}
