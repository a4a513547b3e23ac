// Package api wires the HTTP surface: the websocket endpoint every person
// connects through, and the static frontend fallback.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pubhouse/internal/commands"
	"pubhouse/internal/registry"
	"pubhouse/internal/session"
	"pubhouse/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler holds the shared resources injected from app.Server.
type WSHandler struct {
	Store     store.Store
	Registry  *registry.Registry
	Processor *commands.Processor
	Sessions  *session.Tracker
	Log       *zap.Logger
}

// HandleWS serves GET /ws/{id}: parse the person token, upgrade, and run the
// session until the connection dies.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	log := Logger(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		log.Warn("invalid person id", zap.String("id", chi.URLParam(r, "id")))
		http.Error(w, "invalid person id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", zap.Error(err))
		return
	}

	s := session.New(id, conn, h.Registry, h.Processor, h.Store, h.Log)
	h.Sessions.Add(s)
	defer h.Sessions.Remove(s)
	s.Run(r.Context())
}
