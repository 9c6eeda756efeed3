// Package cache implements the optimistic collection pattern shared by
// every resource type: local writes land immediately, the backend
// response confirms or rolls them back, and realtime events merge in
// without disturbing in-flight provisional records.
package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rentport/internal/constants"
	"rentport/internal/realtime"
)

// TempID mints a provisional id. Server ids are plain UUIDs, so the
// prefix keeps the two id spaces disjoint: a realtime event can never
// match a provisional record.
func TempID() string {
	return constants.TempIDPrefix + uuid.New().String()
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, constants.TempIDPrefix)
}

// Identity adapts a record type to the cache: read its id and produce a
// copy carrying a different one.
type Identity[T any] struct {
	ID     func(T) string
	WithID func(T, string) T
}

// Cache is an ordered collection of records mutated by three sources:
// optimistic writes, their confirmations/rollbacks, and realtime
// events. Every mutation is a pure function of (collection, one
// identified change) applied under one mutex, so any interleaving of
// the three sources leaves the collection consistent.
type Cache[T any] struct {
	mu      sync.Mutex
	ident   Identity[T]
	records []T
	pending map[string]struct{} // outstanding temp ids
	notify  *notifier[T]
}

func New[T any](ident Identity[T]) *Cache[T] {
	return &Cache[T]{
		ident:   ident,
		pending: make(map[string]struct{}),
	}
}

// OnChange registers the single change observer; it receives a snapshot
// after every mutation, delivered in mutation order. Notifying a cache
// nobody watches is a no-op; re-registering replaces the observer.
func (c *Cache[T]) OnChange(fn func([]T)) {
	c.mu.Lock()
	if c.notify != nil {
		c.notify.stop()
		c.notify = nil
	}
	if fn != nil {
		c.notify = newNotifier(fn)
	}
	c.mu.Unlock()
}

// List returns a snapshot copy; no network call.
func (c *Cache[T]) List() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Replace swaps in an authoritative listing (initial load or
// refresh-after-reconnect) while keeping provisional records that are
// still awaiting their own confirmation.
func (c *Cache[T]) Replace(records []T) {
	c.mu.Lock()
	kept := make([]T, 0, len(records)+len(c.pending))
	kept = append(kept, records...)
	for _, rec := range c.records {
		id := c.ident.ID(rec)
		if _, outstanding := c.pending[id]; outstanding {
			kept = append(kept, rec)
		}
	}
	c.records = kept
	c.notifyLocked()
	c.mu.Unlock()
}

// Create inserts a provisional record immediately, then runs the
// backend call without holding the lock. On success the provisional
// entry is resolved to the authoritative record; on failure it is
// removed, restoring the pre-call snapshot.
func (c *Cache[T]) Create(ctx context.Context, provisional T, call func(ctx context.Context) (T, error)) (T, error) {
	tempID := c.ident.ID(provisional)
	if !IsTempID(tempID) {
		tempID = TempID()
		provisional = c.ident.WithID(provisional, tempID)
	}

	c.mu.Lock()
	c.records = append(c.records, provisional)
	c.pending[tempID] = struct{}{}
	c.notifyLocked()
	c.mu.Unlock()

	confirmed, err := call(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, tempID)

	if err != nil {
		c.removeLocked(tempID)
		c.notifyLocked()
		var zero T
		return zero, err
	}

	c.resolveLocked(tempID, confirmed)
	c.notifyLocked()
	return confirmed, nil
}

// Update runs the backend call first (the server computes derived
// fields) and replaces the record only on success. Failure leaves the
// cache untouched.
func (c *Cache[T]) Update(ctx context.Context, id string, call func(ctx context.Context) (T, error)) (T, error) {
	updated, err := call(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.upsertLocked(updated)
	c.notifyLocked()
	c.mu.Unlock()
	return updated, nil
}

// Delete removes the record optimistically, remembering exactly what
// was removed and where; backend failure reinserts it at its original
// position.
func (c *Cache[T]) Delete(ctx context.Context, id string, call func(ctx context.Context) error) error {
	c.mu.Lock()
	removed, pos, found := c.takeLocked(id)
	if found {
		c.notifyLocked()
	}
	c.mu.Unlock()

	err := call(ctx)

	if err != nil && found {
		c.mu.Lock()
		c.insertAtLocked(removed, pos)
		c.notifyLocked()
		c.mu.Unlock()
	}
	return err
}

// ApplyEvent merges one realtime event. Matching is strictly by server
// id: provisional records live in a disjoint id space and are resolved
// only by their own create's response.
func (c *Cache[T]) ApplyEvent(kind realtime.EventKind, record T) {
	id := c.ident.ID(record)
	if id == "" || IsTempID(id) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case realtime.EventCreate:
		if c.indexLocked(id) >= 0 {
			return // already present; applying again is a no-op
		}
		c.records = append(c.records, record)
	case realtime.EventUpdate:
		c.upsertLocked(record)
	case realtime.EventDelete:
		idx := c.indexLocked(id)
		if idx < 0 {
			return
		}
		c.records = append(c.records[:idx], c.records[idx+1:]...)
	default:
		return
	}
	c.notifyLocked()
}

// internal helpers; all require c.mu held

func (c *Cache[T]) snapshotLocked() []T {
	out := make([]T, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Cache[T]) indexLocked(id string) int {
	for i, rec := range c.records {
		if c.ident.ID(rec) == id {
			return i
		}
	}
	return -1
}

func (c *Cache[T]) removeLocked(id string) {
	if idx := c.indexLocked(id); idx >= 0 {
		c.records = append(c.records[:idx], c.records[idx+1:]...)
	}
}

// resolveLocked replaces the provisional entry with the authoritative
// one. If a realtime event for the same create raced ahead and already
// delivered the confirmed record, the provisional entry is simply
// dropped: applying the authoritative record over itself is a no-op.
func (c *Cache[T]) resolveLocked(tempID string, confirmed T) {
	confirmedID := c.ident.ID(confirmed)
	tempIdx := c.indexLocked(tempID)

	if existing := c.indexLocked(confirmedID); existing >= 0 {
		c.records[existing] = confirmed
		if tempIdx >= 0 {
			c.records = append(c.records[:tempIdx], c.records[tempIdx+1:]...)
		}
		return
	}

	if tempIdx >= 0 {
		c.records[tempIdx] = confirmed
		return
	}
	c.records = append(c.records, confirmed)
}

func (c *Cache[T]) upsertLocked(record T) {
	id := c.ident.ID(record)
	if idx := c.indexLocked(id); idx >= 0 {
		c.records[idx] = record
		return
	}
	c.records = append(c.records, record)
}

func (c *Cache[T]) takeLocked(id string) (removed T, pos int, found bool) {
	idx := c.indexLocked(id)
	if idx < 0 {
		var zero T
		return zero, 0, false
	}
	removed = c.records[idx]
	c.records = append(c.records[:idx], c.records[idx+1:]...)
	return removed, idx, true
}

func (c *Cache[T]) insertAtLocked(record T, pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(c.records) {
		pos = len(c.records)
	}
	c.records = append(c.records, record)
	copy(c.records[pos+1:], c.records[pos:])
	c.records[pos] = record
}

// notifyLocked enqueues the post-mutation snapshot while the mutex is
// still held, so the queue order is the mutation order.
func (c *Cache[T]) notifyLocked() {
	if c.notify == nil {
		return
	}
	c.notify.enqueue(c.snapshotLocked())
}
