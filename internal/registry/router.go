package registry

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pubhouse/internal/logutil"
)

// Router fans payloads out to sets of live handles. Delivery is best-effort,
// at-most-once: a dropped or unreachable recipient never aborts the rest of
// the room and never surfaces as an error to the caller.
type Router struct {
	reg *Registry
	log *zap.Logger
}

func NewRouter(reg *Registry, log *zap.Logger) *Router {
	return &Router{reg: reg, log: log}
}

// NotifyRoom delivers payload to every handle in members.
func (rt *Router) NotifyRoom(members []Handle, payload []byte) {
	dropped := 0
	for _, h := range members {
		if !h.Enqueue(payload) {
			dropped++
		}
	}
	if dropped > 0 {
		rt.log.Warn("fanout dropped frames",
			logutil.Values(
				zap.Int("members", len(members)),
				zap.Int("dropped", dropped),
			))
	}
}

// NotifyPerson delivers payload to id if a session is registered for it and
// reports whether it was reachable. Not being reachable is a soft signal,
// not an error.
func (rt *Router) NotifyPerson(id uuid.UUID, payload []byte) bool {
	h, ok := rt.reg.Lookup(id)
	if !ok {
		return false
	}
	if !h.Enqueue(payload) {
		rt.log.Warn("delivery dropped", zap.String("person", id.String()))
	}
	return true
}
