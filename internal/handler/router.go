package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"migration-service/config"
	"migration-service/internal/middleware"
)

// NewRouter はルーターを生成する。metricsがnilの場合は/metricsを公開しない。
func NewRouter(h *MigrationHandler, metrics http.Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RunID)

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	// ルート定義
	r.Route("/v1/migrations", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Post("/", h.Generate)
		r.Post("/table", h.InitializeTable)
		r.Get("/prepared", h.ListPrepared)
		r.Get("/executed", h.ListExecuted)
		r.Post("/pending/{phase}", h.ExecutePending)
		r.Post("/{version}/{phase}", h.Execute)
	})

	if !cfg.OtelEnabled {
		return r
	}
	return otelhttp.NewHandler(r, cfg.OtelServiceName)
}
