package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/metrics"
)

// RouterConfig holds the dependencies the gateway handlers need. It is
// populated in main after all clients are initialized.
type RouterConfig struct {
	Files   FileGateway
	Jobs    JobReader
	Uploads Uploader
	Logger  *zap.Logger

	// MaxUploadBytes bounds the request body on the upload endpoint.
	MaxUploadBytes int64
}

// NewRouter builds the fully configured gateway router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	h := newHandlers(cfg)

	r.Get("/health", h.health)
	r.Get("/public/files/{fileID}", h.downloadPublic)
	r.Post("/api/v1/files", h.uploadFile)
	r.Get("/jobs/{jobID}", h.jobStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, http.StatusNotFound, CodeRouteNotFound, "route not found: "+r.URL.Path)
	})

	return r
}
