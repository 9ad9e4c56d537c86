package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// Router wraps the API handler with its route table
type Router struct {
	handler *Handler
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(handler *Handler, logger *logger.Logger) *Router {
	return &Router{
		handler: handler,
		logger:  logger.Named("api-router"),
	}
}

// Routes builds the HTTP route table
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", r.handler.GetStatus)
		api.Get("/logs", r.handler.GetLogs)
		api.Get("/devices", r.handler.GetDevices)
		api.Get("/config", r.handler.GetConfig)
		api.Put("/config", r.handler.UpdateConfig)
		api.Get("/history", r.handler.GetHistory)
	})

	router.Get("/ws", r.handler.HandleWebSocket)

	return router
}
