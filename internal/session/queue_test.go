package session

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	q := newQueue(zap.NewNop())
	for i := 0; i < queueDepth*2; i++ {
		if !q.Enqueue([]byte{byte(i)}) {
			t.Fatalf("enqueue %d rejected; overflow should displace, not refuse", i)
		}
	}
}

func TestEnqueueDropsOldestObservably(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	q := newQueue(zap.New(core))

	for i := 0; i < queueDepth; i++ {
		if !q.Enqueue([]byte(fmt.Sprintf("frame-%d", i))) {
			t.Fatalf("enqueue %d rejected before the queue was full", i)
		}
	}
	if got := q.drops(); got != 0 {
		t.Fatalf("drops before overflow = %d, want 0", got)
	}

	if !q.Enqueue([]byte("overflow")) {
		t.Fatal("overflow enqueue rejected; it should displace the oldest frame")
	}

	if got := q.drops(); got != 1 {
		t.Fatalf("drops = %d, want 1", got)
	}
	if logs.FilterMessage("delivery queue full, dropped oldest frame").Len() != 1 {
		t.Fatal("dropped frame left no warning")
	}

	// The oldest frame is the one that went; the newest survived.
	if first := <-q.ch; string(first) != "frame-1" {
		t.Fatalf("head of queue = %q, want frame-1", first)
	}
	var last []byte
	for len(q.ch) > 0 {
		last = <-q.ch
	}
	if string(last) != "overflow" {
		t.Fatalf("tail of queue = %q, want overflow", last)
	}
}
