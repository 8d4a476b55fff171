package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/api"
	apiMiddleware "github.com/jatin-dot-py/matrx-microservice-template/internal/api/middleware"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/api/shared"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/socket"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status      string `json:"status"`
	Running     bool   `json:"running"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService, app.config.Auth.IsAdmin)
	taskHandler := api.NewTaskHandler(app.runner, app.registry)

	r.Get("/health", app.health)
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	// the hub authenticates the upgrade request itself
	r.Method(http.MethodGet, socket.Path, app.hub)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/tasks", taskHandler.SubmitTask)
		r.Get("/stats", taskHandler.GetStats)
		r.Post("/services/{event}/reset", taskHandler.ResetService)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.RequireAdmin)
			r.Get("/users/{userID}/limit", taskHandler.GetUserLimit)
			r.Put("/users/{userID}/limit", taskHandler.SetUserLimit)
		})
	})

	return r
}

func (app *application) health(w http.ResponseWriter, r *http.Request) {
	stats := app.runner.Stats()
	status := http.StatusOK
	resp := healthResponse{
		Status:      "ok",
		Running:     stats.Running,
		Connections: app.hub.Len(),
		Sessions:    app.sessions.ActiveCount(),
	}
	if !stats.Running {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	shared.RespondWithJSON(w, r, status, resp)
}
