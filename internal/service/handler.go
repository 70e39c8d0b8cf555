package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ProgrammerXX1/plagio/internal/catalog"
	"github.com/ProgrammerXX1/plagio/internal/service/analytics"
	"github.com/ProgrammerXX1/plagio/internal/service/ratelimit"
	apperrors "github.com/ProgrammerXX1/plagio/pkg/errors"
	"github.com/ProgrammerXX1/plagio/pkg/logger"
)

// Request costs drawn from an org's shared rate budget. An upload writes
// the stored file, the spool, and the catalog row; a search only reads.
const (
	searchCost = 1
	uploadCost = 5
)

// Handler exposes the Service over HTTP.
type Handler struct {
	svc     *Service
	limiter *ratelimit.Limiter
	limit   int
}

// NewHandler wires the service and the per-org rate limiter. limiter may
// be nil to disable limiting.
func NewHandler(svc *Service, limiter *ratelimit.Limiter, limit int) *Handler {
	return &Handler{svc: svc, limiter: limiter, limit: limit}
}

func (h *Handler) allow(w http.ResponseWriter, org, endpoint string, cost int) bool {
	if h.limiter == nil || h.limiter.AllowN(org, h.limit, cost) {
		return true
	}
	h.svc.collector.Track(analytics.RateLimitEvent{
		Type:      analytics.EventRateLimited,
		OrgID:     org,
		Endpoint:  endpoint,
		Cost:      cost,
		Timestamp: time.Now().UTC(),
	})
	h.writeError(w, apperrors.ErrRateLimited)
	return false
}

// Upload handles POST /api/v1/orgs/{org}/documents.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if !h.allow(w, org, "upload", uploadCost) {
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidArgs, http.StatusBadRequest, "bad request body: %v", err))
		return
	}
	res, err := h.svc.IngestDocument(r.Context(), org, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// Build handles POST /api/v1/orgs/{org}/build.
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	log := logger.FromContext(r.Context())

	var req BuildRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidArgs, http.StatusBadRequest, "bad request body: %v", err))
			return
		}
	}
	res, err := h.svc.BuildSegment(r.Context(), org, req)
	if err != nil {
		log.Error("segment build failed", "org_id", org, "error", err)
		h.writeError(w, err)
		return
	}
	log.Info("segment built", "org_id", org, "segment", res.SegmentName, "docs", res.Docs)
	h.writeJSON(w, http.StatusCreated, res)
}

// Search handles GET /api/v1/orgs/{org}/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if !h.allow(w, org, "search", searchCost) {
		return
	}
	log := logger.FromContext(r.Context())

	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidArgs, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}

	opt := h.svc.searchOpts
	if v := r.URL.Query().Get("topk"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidArgs, http.StatusBadRequest, "topk must be a positive integer"))
			return
		}
		opt.TopK = parsed
	}
	normalized := r.URL.Query().Get("normalized") == "true"

	result, cacheHit, err := h.svc.Search(r.Context(), org, q, normalized, opt)
	if err != nil {
		log.Error("search failed", "org_id", org, "error", err)
		h.writeError(w, err)
		return
	}
	log.Info("search completed",
		"org_id", org,
		"matches", len(result.Matches),
		"segments_scanned", result.SegmentsScanned,
		"cache_hit", cacheHit,
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /api/v1/orgs/{org}/documents/{key}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	key := r.PathValue("key")
	if err := h.svc.DeleteDocument(r.Context(), org, key); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

// List handles GET /api/v1/orgs/{org}/documents.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.svc.ListDocuments(r.Context(), org, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if docs == nil {
		docs = []catalog.DocRow{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// Validate handles POST /api/v1/orgs/{org}/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if !validOrg(org) {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidArgs, http.StatusBadRequest, "bad organization id"))
		return
	}
	vr := h.svc.ValidateIndex(org)
	status := http.StatusOK
	if !vr.OK {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, vr)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	hits, misses := h.svc.cache.Stats()
	h.writeJSON(w, http.StatusOK, map[string]int64{"hits": hits, "misses": misses})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
