// Package session owns one WebSocket connection per person: an inbound loop
// decoding frames into commands, and an outbound loop draining the delivery
// queue to the socket. The session is ephemeral; the person record it fronts
// outlives the socket until the reaper takes it.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pubhouse/internal/commands"
	"pubhouse/internal/logutil"
	"pubhouse/internal/protocol"
	"pubhouse/internal/registry"
	"pubhouse/internal/store"
)

// State is the connection lifecycle phase.
type State int32

const (
	Connecting State = iota
	Active
	Closing
	Closed
)

const (
	readLimit     = 32 << 10
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeDeadline = 10 * time.Second
)

// Session binds a person id to a live socket.
type Session struct {
	personID uuid.UUID
	conn     *websocket.Conn
	queue    *queue
	reg      *registry.Registry
	proc     *commands.Processor
	store    store.Store
	log      *zap.Logger

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
}

func New(personID uuid.UUID, conn *websocket.Conn, reg *registry.Registry, proc *commands.Processor, st store.Store, log *zap.Logger) *Session {
	l := log.With(logutil.Person(personID))
	return &Session{
		personID: personID,
		conn:     conn,
		queue:    newQueue(l),
		reg:      reg,
		proc:     proc,
		store:    st,
		log:      l,
		done:     make(chan struct{}),
	}
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run drives the session to completion: register, upsert the person, pump
// both directions, then tear down. Blocks until the connection is gone.
func (s *Session) Run(ctx context.Context) {
	defer s.close()

	s.reg.Register(s.personID, s.queue)
	if err := s.store.UpsertPerson(ctx, s.personID); err != nil {
		s.log.Error("person upsert failed", zap.Error(err))
		return
	}
	// Seed the cached membership from the durable record; a reconnecting
	// person may still be in a pub.
	person, err := s.store.LoadPerson(ctx, s.personID)
	if err != nil {
		s.log.Error("person load failed", zap.Error(err))
		return
	}
	s.reg.UpdateMembership(s.personID, person.PubID, person.TableID)
	s.state.Store(int32(Active))
	s.log.Info("session active")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump()
	}()

	s.readPump(ctx)
	s.close()
	wg.Wait()
}

// close transitions Active -> Closing -> Closed exactly once. Deregistration
// means further broadcasts for this person silently stop resolving; the
// person record itself is left alone.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closing))
		s.reg.Deregister(s.personID, s.queue)
		close(s.done)
		_ = s.conn.Close()
		s.state.Store(int32(Closed))
		s.log.Info("session closed")
	})
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("read error", zap.Error(err))
			}
			return
		}
		cmd, err := protocol.DecodeCommand(raw)
		if err != nil {
			// Malformed frame: drop it, keep the connection.
			s.log.Warn("discarding frame", zap.Error(err))
			continue
		}
		s.proc.Handle(ctx, s.personID, s.queue, cmd)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.queue.ch:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Warn("write error", zap.Error(err))
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}
