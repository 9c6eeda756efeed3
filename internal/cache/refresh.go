package cache

import (
	"context"
	"log"
	"sync"

	"rentport/internal/constants"
	"rentport/internal/realtime"
)

// Refresher is the part of a Collection the reconnect logic needs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Set observes the channel's state and re-fetches every registered
// collection when the channel comes back: events missed during a
// disconnected window are never replayed, so reconnection is treated as
// a gap.
type Set struct {
	mu        sync.Mutex
	items     []Refresher
	connected bool
}

func NewSet(channel *realtime.Channel) *Set {
	s := &Set{}
	channel.OnStateChange(func(state realtime.State) {
		s.onState(state)
	})
	return s
}

func (s *Set) Add(r Refresher) {
	s.mu.Lock()
	s.items = append(s.items, r)
	s.mu.Unlock()
}

func (s *Set) onState(state realtime.State) {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = state == realtime.StateConnected
	items := make([]Refresher, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()

	if state != realtime.StateConnected || wasConnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()
	for _, r := range items {
		if err := r.Refresh(ctx); err != nil {
			log.Printf("Refresh after reconnect failed: %v", err)
		}
	}
}
