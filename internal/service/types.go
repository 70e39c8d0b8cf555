// Package service is the HTTP layer over the engine: per-org document
// upload, segment builds, span-aware search with tombstone filtering, and
// catalog listings.
package service

// UploadRequest is the JSON body accepted by the document upload endpoint.
type UploadRequest struct {
	Text             string `json:"text"`
	ExternalID       string `json:"external_id"`
	SourceName       string `json:"source_name"`
	TextIsNormalized bool   `json:"text_is_normalized"`
}

// UploadResult is returned to the caller after a document is accepted.
type UploadResult struct {
	DocID      string `json:"doc_id"`
	ExternalID string `json:"external_id"`
	SourceName string `json:"source_name"`
	StoredPath string `json:"stored_path"`
	Bytes      int64  `json:"bytes"`
}

// BuildRequest is the JSON body accepted by the build endpoint.
type BuildRequest struct {
	SegmentName string `json:"segment_name"`
}

// BuildResult summarizes a sealed segment for the caller.
type BuildResult struct {
	SegmentName string `json:"segment_name"`
	Docs        uint32 `json:"docs"`
	Postings    uint64 `json:"postings"`
	Skipped     uint64 `json:"skipped"`
	BuiltAtUTC  string `json:"built_at_utc"`
}

// IngestMessage is the Kafka payload accepted by the corpus-ingest
// consumer; it mirrors UploadRequest plus the org scope.
type IngestMessage struct {
	OrgID            string `json:"org_id"`
	Text             string `json:"text"`
	ExternalID       string `json:"external_id"`
	SourceName       string `json:"source_name"`
	TextIsNormalized bool   `json:"text_is_normalized"`
}
