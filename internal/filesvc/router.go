package filesvc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/api"
	"github.com/t-saturn/certificados-gra/internal/metrics"
)

// HealthProxy proxies the upstream file-server health endpoint.
type HealthProxy interface {
	Health(ctx context.Context, db bool) (json.RawMessage, error)
}

// Pinger checks Redis liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BusStatus reports whether the NATS connection is up. Satisfied by
// *nats.Conn.
type BusStatus interface {
	IsConnected() bool
}

// RouterConfig carries the dependencies of the file-svc HTTP surface.
type RouterConfig struct {
	Service *Service
	Health  HealthProxy
	Redis   Pinger
	Bus     BusStatus
	Logger  *zap.Logger

	MaxUploadBytes int64
}

// NewRouter builds the file-svc router: upload, download, health.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	h := newHandlers(cfg)

	r.Get("/health", h.health)
	r.Post("/upload", h.upload)
	r.Get("/download", h.download)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusNotFound, api.CodeRouteNotFound, "route not found: "+r.URL.Path)
	})

	return r
}
