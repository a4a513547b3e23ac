package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes builds the router: one websocket route per person, everything
// else falls through to the static frontend.
func SetupRoutes(ws *WSHandler, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	r.Get("/ws/{id}", ws.HandleWS)

	fs := http.FileServer(http.Dir(staticDir))
	r.Handle("/*", fs)

	return r
}
