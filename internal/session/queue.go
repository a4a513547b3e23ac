package session

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// queueDepth bounds the per-session delivery queue. Large enough that only a
// genuinely stalled socket ever fills it.
const queueDepth = 256

// queue is the delivery end the registry hands out for a session. Enqueue
// never blocks: a full queue drops its oldest frame so one slow consumer
// cannot stall fanout to anyone else.
type queue struct {
	ch      chan []byte
	dropped atomic.Int64
	log     *zap.Logger
}

func newQueue(log *zap.Logger) *queue {
	return &queue{ch: make(chan []byte, queueDepth), log: log}
}

func (q *queue) Enqueue(payload []byte) bool {
	select {
	case q.ch <- payload:
		return true
	default:
	}
	// Full. Make room by discarding the oldest frame, then try once more;
	// a concurrent producer may still win the freed slot.
	select {
	case <-q.ch:
		n := q.dropped.Add(1)
		q.log.Warn("delivery queue full, dropped oldest frame",
			zap.Int64("dropped_total", n))
	default:
	}
	select {
	case q.ch <- payload:
		return true
	default:
		return false
	}
}

// drops reports how many frames this queue has discarded to make room.
func (q *queue) drops() int64 {
	return q.dropped.Load()
}
