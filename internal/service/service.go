package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ProgrammerXX1/plagio/internal/builder"
	"github.com/ProgrammerXX1/plagio/internal/catalog"
	"github.com/ProgrammerXX1/plagio/internal/manifest"
	"github.com/ProgrammerXX1/plagio/internal/search"
	"github.com/ProgrammerXX1/plagio/internal/segment"
	"github.com/ProgrammerXX1/plagio/internal/service/analytics"
	"github.com/ProgrammerXX1/plagio/internal/service/cache"
	"github.com/ProgrammerXX1/plagio/internal/text"
	"github.com/ProgrammerXX1/plagio/internal/tombstone"
	apperrors "github.com/ProgrammerXX1/plagio/pkg/errors"
	"github.com/ProgrammerXX1/plagio/pkg/metrics"
)

// mutexShards spreads the per-org build and tombstone locks; builds and
// manifest appends for one org are serialized, different orgs rarely
// contend.
const mutexShards = 64

// Service owns the per-org data layout on disk and wires the engine to the
// catalog, cache, and analytics collaborators. Catalog, cache, collector,
// and metrics may all be nil.
type Service struct {
	dataRoot   string
	buildOpts  builder.Options
	searchOpts search.Options

	catalog   *catalog.Store
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger

	buildMu [mutexShards]sync.Mutex
	tombMu  [mutexShards]sync.Mutex

	tombstones sync.Map // org -> *tombstone.Set
}

// New creates a Service rooted at dataRoot.
func New(dataRoot string, buildOpts builder.Options, searchOpts search.Options) *Service {
	return &Service{
		dataRoot:   dataRoot,
		buildOpts:  buildOpts,
		searchOpts: searchOpts,
		logger:     slog.Default().With("component", "service"),
	}
}

// WithCatalog attaches the PostgreSQL document catalog.
func (s *Service) WithCatalog(c *catalog.Store) *Service { s.catalog = c; return s }

// WithCache attaches the Redis query cache.
func (s *Service) WithCache(c *cache.QueryCache) *Service { s.cache = c; return s }

// WithCollector attaches the Kafka analytics collector.
func (s *Service) WithCollector(c *analytics.Collector) *Service { s.collector = c; return s }

// WithMetrics attaches the Prometheus collectors.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service { s.metrics = m; return s }

func shard(org string) int {
	h := fnv.New32a()
	h.Write([]byte(org))
	return int(h.Sum32() % mutexShards)
}

func (s *Service) orgRoot(org string) string      { return filepath.Join(s.dataRoot, "orgs", org) }
func (s *Service) orgIndexRoot(org string) string { return filepath.Join(s.orgRoot(org), "index") }
func (s *Service) orgUploadsDir(org string) string {
	return filepath.Join(s.orgRoot(org), "uploads")
}
func (s *Service) orgSpoolPath(org string) string {
	return filepath.Join(s.orgRoot(org), "spool.jsonl")
}
func (s *Service) orgTombstonePath(org string) string {
	return filepath.Join(s.orgRoot(org), "tombstones.txt")
}

func validOrg(org string) bool {
	if org == "" || len(org) > 128 {
		return false
	}
	return !strings.ContainsAny(org, "/\\.")
}

// IngestDocument stores one plain-text document: the raw bytes under the
// org's uploads dir, a corpus line on the org spool, and a catalog row.
// The document becomes searchable at the next BuildSegment.
func (s *Service) IngestDocument(ctx context.Context, org string, req UploadRequest) (UploadResult, error) {
	var res UploadResult
	if !validOrg(org) {
		return res, fmt.Errorf("%w: bad organization id", apperrors.ErrInvalidArgs)
	}
	if strings.TrimSpace(req.Text) == "" {
		return res, fmt.Errorf("%w: text is required", apperrors.ErrInvalidArgs)
	}

	docID := uuid.NewString()
	externalID := req.ExternalID
	if externalID == "" {
		externalID = docID
	}
	sourceName := req.SourceName
	if sourceName == "" {
		sourceName = docID + ".txt"
	}

	uploads := s.orgUploadsDir(org)
	if err := os.MkdirAll(uploads, 0755); err != nil {
		return res, fmt.Errorf("creating uploads dir: %w", err)
	}
	storedPath := filepath.Join(uploads, docID+".txt")
	if err := os.WriteFile(storedPath, []byte(req.Text), 0644); err != nil {
		return res, fmt.Errorf("storing upload: %w", err)
	}

	line, err := json.Marshal(map[string]any{
		"doc_id":             docID,
		"text":               req.Text,
		"text_is_normalized": req.TextIsNormalized,
		"external_id":        externalID,
		"organization_id":    org,
		"source_path":        storedPath,
		"source_name":        sourceName,
	})
	if err != nil {
		return res, fmt.Errorf("encoding corpus line: %w", err)
	}
	if err := appendLine(s.orgSpoolPath(org), line); err != nil {
		return res, err
	}

	if err := s.catalog.Upsert(ctx, catalog.DocRow{
		OrgID:        org,
		DocID:        docID,
		ExternalID:   externalID,
		SourcePath:   storedPath,
		SourceName:   sourceName,
		StoredPath:   storedPath,
		Preview:      previewOf(req.Text),
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.logger.Error("catalog upsert failed", "org_id", org, "doc_id", docID, "error", err)
	}

	s.logger.Info("document ingested",
		"org_id", org,
		"doc_id", docID,
		"bytes", len(req.Text),
	)
	return UploadResult{
		DocID:      docID,
		ExternalID: externalID,
		SourceName: sourceName,
		StoredPath: storedPath,
		Bytes:      int64(len(req.Text)),
	}, nil
}

// BuildSegment seals everything on the org spool into one new segment.
// On success the spool is archived in the org directory as
// spool-<segment>.jsonl. Builds for one org are serialized.
func (s *Service) BuildSegment(ctx context.Context, org string, req BuildRequest) (BuildResult, error) {
	var res BuildResult
	if !validOrg(org) {
		return res, fmt.Errorf("%w: bad organization id", apperrors.ErrInvalidArgs)
	}

	if req.SegmentName != "" && !validOrg(req.SegmentName) {
		return res, fmt.Errorf("%w: bad segment name", apperrors.ErrInvalidArgs)
	}

	mu := &s.buildMu[shard(org)]
	mu.Lock()
	defer mu.Unlock()

	spool := s.orgSpoolPath(org)
	if info, err := os.Stat(spool); err != nil || info.Size() == 0 {
		return res, fmt.Errorf("%w: nothing spooled for %s", apperrors.ErrNoValidDocs, org)
	}

	opts := s.buildOpts
	opts.SegmentName = req.SegmentName
	start := time.Now()
	st, err := builder.New(opts, s.metrics).Build(ctx, spool, s.orgIndexRoot(org))
	if err != nil {
		return res, err
	}

	if err := os.Rename(spool, filepath.Join(s.orgRoot(org), "spool-"+st.SegmentName+".jsonl")); err != nil {
		s.logger.Error("archiving spool failed", "org_id", org, "error", err)
	}

	if s.catalog != nil {
		if infos, err := segment.LoadDocInfo(st.SegDir); err != nil {
			s.logger.Error("reading sealed doc info failed", "segment", st.SegmentName, "error", err)
		} else {
			ids := make([]string, 0, len(infos))
			for _, di := range infos {
				ids = append(ids, di.DocID)
			}
			if err := s.catalog.UpdateLastSegment(ctx, org, ids, st.SegmentName); err != nil {
				s.logger.Error("updating last segment failed", "org_id", org, "error", err)
			}
		}
	}

	if err := s.cache.InvalidateOrg(ctx, org); err != nil {
		s.logger.Error("cache invalidation failed", "org_id", org, "error", err)
	}

	s.collector.Track(analytics.BuildEvent{
		Type:        analytics.EventBuild,
		OrgID:       org,
		SegmentName: st.SegmentName,
		Docs:        st.Docs,
		Postings:    st.Post9,
		Skipped:     st.Skipped,
		LatencyMs:   time.Since(start).Milliseconds(),
		Timestamp:   time.Now().UTC(),
	})

	return BuildResult{
		SegmentName: st.SegmentName,
		Docs:        st.Docs,
		Postings:    st.Post9,
		Skipped:     st.Skipped,
		BuiltAtUTC:  st.BuiltAtUTC,
	}, nil
}

// Search runs a cached, tombstone-filtered multi-segment search for one
// org. The bool reports whether the result came from the cache.
func (s *Service) Search(ctx context.Context, org, queryText string, queryIsNormalized bool, opt search.Options) (*search.Result, bool, error) {
	if !validOrg(org) {
		return nil, false, fmt.Errorf("%w: bad organization id", apperrors.ErrInvalidArgs)
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, false, fmt.Errorf("%w: query is required", apperrors.ErrInvalidArgs)
	}

	tombs, err := s.orgTombstones(org)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	result, cacheHit, err := s.cache.GetOrCompute(ctx, org, queryText, opt, func() (*search.Result, error) {
		r := search.RootFiltered(s.orgIndexRoot(org), queryText, queryIsNormalized, opt, tombs.Contains)
		return &r, nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		}
		return nil, false, err
	}

	if s.metrics != nil {
		status := "miss"
		if cacheHit {
			status = "hit"
			s.metrics.CacheHitsTotal.Inc()
		} else {
			s.metrics.CacheMissesTotal.Inc()
		}
		s.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
		s.metrics.SearchHitsCount.Observe(float64(len(result.Matches)))
		s.metrics.SegmentsScanned.Observe(float64(result.SegmentsScanned))
		if len(result.Matches) == 0 {
			s.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
		} else {
			s.metrics.SearchQueriesTotal.WithLabelValues("hit").Inc()
		}
	}

	event := analytics.SearchEvent{
		Type:            analytics.EventSearch,
		OrgID:           org,
		Query:           queryText,
		SegmentsScanned: result.SegmentsScanned,
		Returned:        len(result.Matches),
		LatencyMs:       time.Since(start).Milliseconds(),
		CacheHit:        cacheHit,
		Timestamp:       time.Now().UTC(),
	}
	if len(result.Matches) == 0 {
		event.Type = analytics.EventZeroResult
	} else {
		event.TopScore = result.Matches[0].Score
	}
	s.collector.Track(event)

	return result, cacheHit, nil
}

// DeleteDocument tombstones a document by doc id or external key and
// flags its catalog row. Segments are immutable; the id disappears from
// search results, not from disk.
func (s *Service) DeleteDocument(ctx context.Context, org, key string) error {
	if !validOrg(org) {
		return fmt.Errorf("%w: bad organization id", apperrors.ErrInvalidArgs)
	}
	if key == "" {
		return fmt.Errorf("%w: document key is required", apperrors.ErrInvalidArgs)
	}

	docID := key
	if s.catalog != nil {
		row, err := s.catalog.GetByDocOrExternal(ctx, org, key)
		if err != nil {
			return err
		}
		docID = row.DocID
	}

	tombs, err := s.orgTombstones(org)
	if err != nil {
		return err
	}
	mu := &s.tombMu[shard(org)]
	mu.Lock()
	err = tombs.Append(docID)
	mu.Unlock()
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.catalog.MarkDeleted(ctx, org, key, now); err != nil {
		s.logger.Error("catalog delete failed", "org_id", org, "key", key, "error", err)
	}
	if err := s.cache.InvalidateOrg(ctx, org); err != nil {
		s.logger.Error("cache invalidation failed", "org_id", org, "error", err)
	}

	s.collector.Track(analytics.DeleteEvent{
		Type:      analytics.EventDelete,
		OrgID:     org,
		Key:       key,
		Timestamp: time.Now().UTC(),
	})

	s.logger.Info("document deleted", "org_id", org, "key", key, "doc_id", docID)
	return nil
}

// ListDocuments returns the org's catalog rows.
func (s *Service) ListDocuments(ctx context.Context, org string, limit, offset int) ([]catalog.DocRow, error) {
	if !validOrg(org) {
		return nil, fmt.Errorf("%w: bad organization id", apperrors.ErrInvalidArgs)
	}
	return s.catalog.List(ctx, org, limit, offset)
}

// ValidateIndex checks every segment under the org's manifest.
func (s *Service) ValidateIndex(org string) segment.ValidationResult {
	return manifest.ValidateRoot(s.orgIndexRoot(org))
}

// orgTombstones returns the org's loaded tombstone set, reading the file
// on first use.
func (s *Service) orgTombstones(org string) (*tombstone.Set, error) {
	if v, ok := s.tombstones.Load(org); ok {
		return v.(*tombstone.Set), nil
	}
	set := tombstone.NewSet(s.orgTombstonePath(org))
	if err := set.Load(); err != nil {
		return nil, err
	}
	actual, _ := s.tombstones.LoadOrStore(org, set)
	return actual.(*tombstone.Set), nil
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating spool dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening spool %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending spool line: %w", err)
	}
	return nil
}

func previewOf(s string) string {
	return text.TruncateUTF8(s, 240)
}
