package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chattour/internal/chat"
	myMiddleware "chattour/internal/middleware"
	"chattour/internal/user"
)

// NewRouter wires the HTTP surface of the backend.
func NewRouter(logger zerolog.Logger, users *user.Service, hub *chat.Hub) *chi.Mux {
	userHandler := user.NewHandler(users, logger)
	chatHandler := chat.NewHandler(hub)
	auth := myMiddleware.NewAuthMiddleware(users)

	r := chi.NewRouter()
	r.Use(myMiddleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(myMiddleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Realtime: anonymous callers may read and send, a bad token is refused.
	r.With(auth.Optional).Get("/ws", chatHandler.ServeWs)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
	})

	return r
}
