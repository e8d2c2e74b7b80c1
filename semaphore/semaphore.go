package semaphore

import (
	"context"
	"fmt"
)

// Semaphore is a counting semaphore implemented as a buffered channel of
// tokens. The channel is pre-filled: acquiring receives a token, releasing
// sends one back. The buffer size is the semaphore's capacity.
//
// Because acquisition is a single channel receive, a cancelled acquire can
// never half-apply: either the token was received or it was not.
//
// Current state can be inspected with the built-in len and cap functions:
// len(s) is the number of permits currently available, cap(s) is the
// capacity.
type Semaphore chan struct{}

// New creates a semaphore with the given capacity and all permits
// initially available. It panics if capacity is not positive.
func New(capacity int) Semaphore {
	s := NewEmpty(capacity)
	for i := 0; i < capacity; i++ {
		s <- struct{}{}
	}
	return s
}

// NewEmpty creates a semaphore with the given capacity and no permits
// initially available. Permits enter circulation via Release; this is the
// shape needed for counters that track produced-but-not-consumed items.
// It panics if capacity is not positive.
func NewEmpty(capacity int) Semaphore {
	if capacity <= 0 {
		panic(fmt.Sprintf("semaphore: capacity must be positive, got %d", capacity))
	}
	return make(Semaphore, capacity)
}

// Acquire blocks until a permit is available, then takes it.
func (s Semaphore) Acquire() {
	<-s
}

// AcquireContext blocks until a permit is available or ctx is done. On
// cancellation it returns ctx.Err() and no permit is consumed.
func (s Semaphore) AcquireContext(ctx context.Context) error {
	select {
	case <-s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking. It returns false if none is
// available.
//
// TryAcquire may succeed even while other goroutines are blocked in
// Acquire; it inherits the channel's barging behaviour, so no FIFO ordering
// is promised between blocking and non-blocking acquirers.
func (s Semaphore) TryAcquire() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}

// Release returns a permit. Every Release must pair with a prior
// successful acquire on this semaphore or on a coupled one whose tokens it
// shares; releasing beyond capacity blocks until the imbalance clears.
func (s Semaphore) Release() {
	s <- struct{}{}
}

// Available returns the number of permits that can be acquired without
// blocking.
func (s Semaphore) Available() int {
	return len(s)
}

// Cap returns the semaphore's capacity.
func (s Semaphore) Cap() int {
	return cap(s)
}

// String returns the semaphore state as "Semaphore(available/capacity)".
func (s Semaphore) String() string {
	return fmt.Sprintf("Semaphore(%d/%d)", len(s), cap(s))
}
