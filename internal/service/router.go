package service

import (
	"net/http"
	"time"

	"github.com/ProgrammerXX1/plagio/pkg/health"
	"github.com/ProgrammerXX1/plagio/pkg/metrics"
	pkgmw "github.com/ProgrammerXX1/plagio/pkg/middleware"
)

// NewRouter builds the full service HTTP handler.
//
// Route table:
//
//	POST   /api/v1/orgs/{org}/documents        → upload a document
//	GET    /api/v1/orgs/{org}/documents        → list catalog rows
//	DELETE /api/v1/orgs/{org}/documents/{key}  → tombstone a document
//	POST   /api/v1/orgs/{org}/build            → seal a segment
//	GET    /api/v1/orgs/{org}/search           → multi-segment search
//	POST   /api/v1/orgs/{org}/validate         → validate the org index
//	GET    /api/v1/cache/stats                 → query cache counters
//	GET    /health/live                        → liveness
//	GET    /health/ready                       → readiness (dependency checks)
//
// Middleware chain (outermost first): RequestID → Metrics → Timeout.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/orgs/{org}/documents", h.Upload)
	mux.HandleFunc("GET /api/v1/orgs/{org}/documents", h.List)
	mux.HandleFunc("DELETE /api/v1/orgs/{org}/documents/{key}", h.Delete)
	mux.HandleFunc("POST /api/v1/orgs/{org}/build", h.Build)
	mux.HandleFunc("GET /api/v1/orgs/{org}/search", h.Search)
	mux.HandleFunc("POST /api/v1/orgs/{org}/validate", h.Validate)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)

	var chain http.Handler = mux
	if requestTimeout > 0 {
		chain = pkgmw.Timeout(requestTimeout)(chain)
	}
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = pkgmw.RequestID(chain)
	return chain
}
