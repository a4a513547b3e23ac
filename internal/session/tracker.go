package session

import "sync"

// Tracker holds the live sessions of one server. http.Server.Shutdown skips
// hijacked connections entirely, so graceful shutdown closes whatever is
// still in here.
type Tracker struct {
	mu   sync.Mutex
	live map[*Session]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{live: make(map[*Session]struct{})}
}

func (t *Tracker) Add(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[s] = struct{}{}
}

func (t *Tracker) Remove(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, s)
}

// Len reports the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// CloseAll closes every tracked session: each is deregistered and its socket
// shut, which unblocks its pumps and lets its handler return.
func (t *Tracker) CloseAll() {
	t.mu.Lock()
	live := make([]*Session, 0, len(t.live))
	for s := range t.live {
		live = append(live, s)
	}
	t.mu.Unlock()

	for _, s := range live {
		s.close()
	}
}
