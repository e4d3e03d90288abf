package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trackbeam/trackbeam-backend/api/controllers"
	"github.com/trackbeam/trackbeam-backend/api/middleware"
	"github.com/trackbeam/trackbeam-backend/internal/dispatch"
	"github.com/trackbeam/trackbeam-backend/internal/events"
	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/db"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
)

type redisPinger interface {
	Ping(ctx context.Context) error
}

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         redisPinger
	Events        events.Service
	TokenVerifier *events.TokenVerifier
	Dispatch      dispatch.Service
}

// NewRouter assembles the ingestion, operator and health endpoints.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Post("/webhook", controllers.WebhookIngest(params.Events, logg))
		r.With(middleware.PixelCORS(cfg.Ingest.AllowedOrigins)).
			Post("/pixel", controllers.PixelIngest(params.Events, params.TokenVerifier, logg))
	})

	r.Route("/api/v1/operator", func(r chi.Router) {
		r.Use(middleware.OperatorAuth(cfg.JWT, logg))
		r.Get("/dead-letters", controllers.DeadLetters(params.Dispatch, logg))
		r.Post("/dead-letters/{jobID}/rearm", controllers.RearmJob(params.Dispatch, logg))
		r.Post("/dead-letters/rearm-all", controllers.RearmAll(params.Dispatch, logg))
		r.Get("/jobs/status", controllers.JobStatusCounts(params.Dispatch, logg))
	})

	return r
}
