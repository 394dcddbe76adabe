package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/asset-registry/pkg/assetregistry"
)

// RouterConfig holds the HTTP settings of the server
type RouterConfig struct {
	AuthHeader     string
	AuthSecret     string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewRouter mounts the asset routes under /api/v1 and adds /healthz.
func NewRouter(service assetregistry.Service, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthSecret == "" {
		logger.Warn("No API key configured, mutating routes will answer 401")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	assets := NewAssetHandler(service, logger, cfg.MaxUploadBytes)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/assets", assets.Routes(RequireAPIKey(cfg.AuthHeader, cfg.AuthSecret)))
	})

	return r
}
