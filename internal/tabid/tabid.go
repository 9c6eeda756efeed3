// Package tabid allocates the per-tab identifier that everything else
// keys on: the session cookie name, the tab's credential storage and
// the realtime channel auth.
package tabid

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

const storageKey = "tab_id"

// Identity owns one tab's id. The id is minted on first access,
// persisted in tab-local storage, and never copied to another tab.
type Identity struct {
	mu       sync.Mutex
	storage  Storage
	volatile string // fallback when storage writes fail
}

func NewIdentity(storage Storage) *Identity {
	return &Identity{storage: storage}
}

// TabID is idempotent within the tab's lifetime: every call returns the
// same value, freshly generated the first time. No network interaction.
// If storage is unavailable the id is kept in memory only; the tab
// works, but its credential will not survive a full reload.
func (id *Identity) TabID() string {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.volatile != "" {
		return id.volatile
	}
	if existing, ok := id.storage.Get(storageKey); ok && existing != "" {
		return existing
	}

	fresh := uuid.New().String()
	if err := id.storage.Set(storageKey, fresh); err != nil {
		log.Printf("⚠️  Tab storage unavailable, using volatile tab id: %v", err)
		id.volatile = fresh
	}
	return fresh
}
