package boundedbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"

	"github.com/ramesh-nair-dev/boundedbuffer/semaphore"
)

var (
	// ErrInvalidConfiguration indicates a non-positive capacity at
	// construction. The buffer must not be used.
	ErrInvalidConfiguration = errors.New("capacity must be positive")

	// ErrInvariantViolation indicates the store and the admission permits
	// have desynchronized, e.g. an insert was attempted into a full store.
	// This is a programming error, never a transient condition; the
	// affected worker should stop.
	ErrInvariantViolation = errors.New("store and permit counters desynchronized")

	// ErrShutdown is returned by blocked and future operations once
	// Shutdown has been called. It signals cooperative teardown, not a
	// failure.
	ErrShutdown = errors.New("buffer is shut down")
)

// Store holds items up to a fixed capacity. It performs no locking of its
// own: callers must hold exclusive access, normally granted through the
// buffer's admission protocol. The capacity check in Insert is defensive
// only and unreachable under correct coordination.
type Store struct {
	capacity int
	items    deque.Deque[interface{}]
}

// NewStore creates a store with the given fixed capacity.
func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConfiguration, capacity)
	}
	s := &Store{capacity: capacity}
	s.items.Grow(capacity)
	return s, nil
}

// Insert appends an item. The caller must have established that the store
// has room; inserting into a full store fails with ErrInvariantViolation.
func (s *Store) Insert(item interface{}) error {
	if s.items.Len() >= s.capacity {
		return fmt.Errorf("%w: insert into full store (len=%d, cap=%d)",
			ErrInvariantViolation, s.items.Len(), s.capacity)
	}
	s.items.PushBack(item)
	return nil
}

// RemoveLast removes and returns the most recently inserted item. Removing
// from an empty store fails with ErrInvariantViolation.
func (s *Store) RemoveLast() (interface{}, error) {
	if s.items.Len() == 0 {
		return nil, fmt.Errorf("%w: remove from empty store", ErrInvariantViolation)
	}
	return s.items.PopBack(), nil
}

// Len returns the current number of items.
func (s *Store) Len() int {
	return s.items.Len()
}

// Cap returns the fixed capacity.
func (s *Store) Cap() int {
	return s.capacity
}

// coordinator gates admission to the store with two counting semaphores.
// Write permits start at capacity, read permits start at zero; every
// successful insert converts a write permit into a read permit and every
// successful remove converts it back. Tokens are conserved, so neither
// release can ever block, and the number of outstanding write permits can
// never exceed free capacity nor read permits exceed filled slots.
type coordinator struct {
	writePermits semaphore.Semaphore
	readPermits  semaphore.Semaphore
	done         chan struct{}
}

func newCoordinator(capacity int) *coordinator {
	return &coordinator{
		writePermits: semaphore.New(capacity),
		readPermits:  semaphore.NewEmpty(capacity),
		done:         make(chan struct{}),
	}
}

// acquire blocks until a permit is available on permits, the context is
// cancelled, or the coordinator is shut down. A failed acquire never
// consumes a permit: the select commits to exactly one case.
func (c *coordinator) acquire(ctx context.Context, permits semaphore.Semaphore) error {
	select {
	case <-c.done:
		return ErrShutdown
	default:
	}
	select {
	case <-permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrShutdown
	}
}

// tryAcquire takes a permit without blocking.
func (c *coordinator) tryAcquire(permits semaphore.Semaphore) (bool, error) {
	select {
	case <-c.done:
		return false, ErrShutdown
	default:
	}
	return permits.TryAcquire(), nil
}

func (c *coordinator) acquireWrite(ctx context.Context) error {
	return c.acquire(ctx, c.writePermits)
}

func (c *coordinator) acquireRead(ctx context.Context) error {
	return c.acquire(ctx, c.readPermits)
}

// releaseRead publishes one filled slot to consumers. Called exactly once
// per successful insert; never blocks.
func (c *coordinator) releaseRead() {
	c.readPermits.Release()
}

// releaseWrite returns one free slot to producers. Called exactly once per
// successful remove; never blocks.
func (c *coordinator) releaseWrite() {
	c.writePermits.Release()
}

// BoundedBuffer is a fixed-capacity buffer coordinating concurrent
// producers and consumers. Producers block while the buffer is full,
// consumers block while it is empty, and all blocking calls honor context
// cancellation and Shutdown.
//
// Admission is counted, not checked: a producer first acquires one of
// capacity write permits, then inserts, then hands the slot to consumers
// as a read permit. The check-then-act race of a naive size test cannot
// occur because the permit acquisition is the check and the reservation in
// one atomic step.
type BoundedBuffer struct {
	store *Store
	coord *coordinator

	// mu gives mutual exclusion over store mutations; permits bound how
	// many workers may want access, mu serializes the access itself.
	mu sync.Mutex

	shutdownOnce sync.Once
}

// New creates a buffer with the given capacity.
func New(capacity int) (*BoundedBuffer, error) {
	store, err := NewStore(capacity)
	if err != nil {
		return nil, err
	}
	return &BoundedBuffer{
		store: store,
		coord: newCoordinator(capacity),
	}, nil
}

// Produce inserts one item, blocking while the buffer is full. It returns
// ctx.Err() if ctx is cancelled while blocked and ErrShutdown once the
// buffer is shut down; in both cases the buffer is unchanged.
func (bb *BoundedBuffer) Produce(ctx context.Context, item interface{}) error {
	if err := bb.coord.acquireWrite(ctx); err != nil {
		return err
	}

	bb.mu.Lock()
	err := bb.store.Insert(item)
	bb.mu.Unlock()
	if err != nil {
		// The write permit is deliberately not returned: the counters no
		// longer describe the store, so replenishing them would let
		// another producer corrupt it further.
		return err
	}

	bb.coord.releaseRead()
	return nil
}

// Consume removes and returns the most recently inserted item, blocking
// while the buffer is empty. Cancellation and shutdown behave as in
// Produce.
func (bb *BoundedBuffer) Consume(ctx context.Context) (interface{}, error) {
	if err := bb.coord.acquireRead(ctx); err != nil {
		return nil, err
	}

	bb.mu.Lock()
	item, err := bb.store.RemoveLast()
	bb.mu.Unlock()
	if err != nil {
		// Same policy as Produce: leak the read permit rather than
		// advertise an item that does not exist.
		return nil, err
	}

	bb.coord.releaseWrite()
	return item, nil
}

// TryProduce inserts one item without blocking. It returns false if the
// buffer is full and ErrShutdown once the buffer is shut down.
func (bb *BoundedBuffer) TryProduce(item interface{}) (bool, error) {
	ok, err := bb.coord.tryAcquire(bb.coord.writePermits)
	if err != nil || !ok {
		return false, err
	}

	bb.mu.Lock()
	err = bb.store.Insert(item)
	bb.mu.Unlock()
	if err != nil {
		return false, err
	}

	bb.coord.releaseRead()
	return true, nil
}

// TryConsume removes one item without blocking. It returns ok=false if the
// buffer is empty and ErrShutdown once the buffer is shut down.
func (bb *BoundedBuffer) TryConsume() (interface{}, bool, error) {
	ok, err := bb.coord.tryAcquire(bb.coord.readPermits)
	if err != nil || !ok {
		return nil, false, err
	}

	bb.mu.Lock()
	item, err := bb.store.RemoveLast()
	bb.mu.Unlock()
	if err != nil {
		return nil, false, err
	}

	bb.coord.releaseWrite()
	return item, true, nil
}

// Shutdown releases every blocked Produce and Consume with ErrShutdown and
// makes all future calls fail the same way. Items already in the buffer
// stay there; callers that want to drain should use TryConsume. Shutdown
// is idempotent.
func (bb *BoundedBuffer) Shutdown() {
	bb.shutdownOnce.Do(func() {
		close(bb.coord.done)
	})
}

// Len returns the current number of buffered items.
func (bb *BoundedBuffer) Len() int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.store.Len()
}

// Cap returns the buffer's fixed capacity.
func (bb *BoundedBuffer) Cap() int {
	return bb.store.Cap()
}
