package session

import (
	"context"
	"sync"
)

// LatchState is the state of a readiness latch.
type LatchState int

const (
	LatchPending LatchState = iota
	LatchReady
)

func (s LatchState) String() string {
	if s == LatchReady {
		return "ready"
	}
	return "pending"
}

// Latch is a one-shot gate. It starts pending and opens exactly once; every
// waiter is released when it opens and later waiters pass straight through.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch returns a pending latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Open releases all waiters. Calling it more than once has no effect.
func (l *Latch) Open() {
	l.once.Do(func() { close(l.ch) })
}

// State reports whether the latch has been opened.
func (l *Latch) State() LatchState {
	select {
	case <-l.ch:
		return LatchReady
	default:
		return LatchPending
	}
}

// Wait blocks until the latch opens or ctx is done. An open latch never
// fails, even with a done ctx.
func (l *Latch) Wait(ctx context.Context) error {
	if l.State() == LatchReady {
		return nil
	}
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
