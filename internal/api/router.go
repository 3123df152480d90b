// Package api wires the HTTP surface: routing, middleware, and handlers.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/xy2yp/stargazer/internal/ai"
	"github.com/xy2yp/stargazer/internal/api/handlers"
	"github.com/xy2yp/stargazer/internal/scheduler"
	"github.com/xy2yp/stargazer/internal/secrets"
	"github.com/xy2yp/stargazer/internal/storage"
	syncsvc "github.com/xy2yp/stargazer/internal/sync"
)

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(store *storage.Store, box *secrets.Box, sched *scheduler.Scheduler, syncSvc *syncsvc.Service, pipeline *ai.Pipeline, proxyURL string) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(RequestLogger)
	r.Use(Recovery)
	r.Use(CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/settings", handlers.GetSettings(store, box))
		api.Patch("/settings", handlers.UpdateSettings(store, box, proxyURL))
		api.Post("/settings/reset-failed-push", handlers.ResetFailedPushCount(store))
		api.Put("/settings/tags-order", handlers.UpdateTagsOrder(store))
		api.Put("/settings/languages-order", handlers.UpdateLanguagesOrder(store))

		api.Post("/sync", handlers.TriggerSync(sched))
		api.Get("/sync/status", handlers.GetSyncStatus(sched, syncSvc))

		api.Get("/repos", handlers.GetRepos(store))
		api.Patch("/repos/{id}", handlers.UpdateRepo(store))
		api.Get("/tags", handlers.GetTags(store))

		api.Post("/summary/start", handlers.StartSummary(pipeline))
		api.Get("/summary/status", handlers.GetSummaryStatus(pipeline))
	})

	return r
}
