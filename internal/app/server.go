// Package app composes the server: store, registry, router, processor,
// reaper, and the HTTP surface, with no ambient globals.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pubhouse/internal/api"
	"pubhouse/internal/commands"
	"pubhouse/internal/config"
	"pubhouse/internal/reaper"
	"pubhouse/internal/registry"
	"pubhouse/internal/session"
	"pubhouse/internal/store"
)

type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	store      *store.Postgres
	registry   *registry.Registry
	sessions   *session.Tracker
	reaper     *reaper.Reaper
	log        *zap.Logger
}

// NewServer migrates the database and wires every component together.
func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	router := registry.NewRouter(reg, log)
	proc := commands.NewProcessor(st, reg, router, log)
	sessions := session.NewTracker()

	ws := &api.WSHandler{
		Store:     st,
		Registry:  reg,
		Processor: proc,
		Sessions:  sessions,
		Log:       log,
	}
	mux := api.SetupRoutes(ws, cfg.StaticDir)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:    cfg.Addr,
			Handler: mux,
		},
		store:    st,
		registry: reg,
		sessions: sessions,
		reaper:   reaper.New(st, cfg.ReapInterval, cfg.Staleness, log),
		log:      log,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go s.reaper.Run(reaperCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	stopReaper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	// Shutdown skips hijacked connections, so the websocket sessions need
	// closing explicitly.
	s.sessions.CloseAll()
	s.store.Close()
	return err
}
