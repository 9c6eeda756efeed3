package tabsession

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// AmbientSession is the origin-wide identity-provider session every tab
// observes. It is an event source, not a source of truth: the authority
// for any tab's identity is that tab's own cookie and storage.
type AmbientSession interface {
	// Current returns the signed-in identity, or false when signed out.
	Current() (*Credential, bool)
	// Subscribe registers a change listener and returns its cancel.
	Subscribe(fn func()) (cancel func())
}

// MemoryAmbient is the in-process ambient session used by tests and by
// tabs sharing one process.
type MemoryAmbient struct {
	mu        sync.Mutex
	current   *Credential
	listeners map[int]func()
	nextID    int
}

func NewMemoryAmbient() *MemoryAmbient {
	return &MemoryAmbient{listeners: make(map[int]func())}
}

func (a *MemoryAmbient) Current() (*Credential, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil, false
	}
	cred := *a.current
	return &cred, true
}

// SignIn publishes a new ambient identity. Last write wins; every tab
// re-derives its own credential independently.
func (a *MemoryAmbient) SignIn(cred Credential) {
	a.mu.Lock()
	a.current = &cred
	a.mu.Unlock()
	a.notify()
}

func (a *MemoryAmbient) SignOut() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	a.notify()
}

func (a *MemoryAmbient) Subscribe(fn func()) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *MemoryAmbient) notify() {
	a.mu.Lock()
	fns := make([]func(), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// FileAmbient shares the ambient session across tab processes through
// one JSON file, polled for changes. The poll interval trades freshness
// for simplicity; a tab adopting a new login a tick late is fine.
type FileAmbient struct {
	mu        sync.Mutex
	path      string
	interval  time.Duration
	listeners map[int]func()
	nextID    int
	stop      chan struct{}
	lastHash  [sha256.Size]byte
}

func NewFileAmbient(path string, interval time.Duration) *FileAmbient {
	return &FileAmbient{
		path:      path,
		interval:  interval,
		listeners: make(map[int]func()),
	}
}

func (a *FileAmbient) Current() (*Credential, bool) {
	data, err := os.ReadFile(a.path)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, false
	}
	if cred.UserID == "" || cred.AccessToken == "" {
		return nil, false
	}
	return &cred, true
}

func (a *FileAmbient) SignIn(cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return os.WriteFile(a.path, data, 0600)
}

func (a *FileAmbient) SignOut() error {
	err := os.Remove(a.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (a *FileAmbient) Subscribe(fn func()) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	if a.stop == nil {
		a.stop = make(chan struct{})
		a.lastHash = a.hash()
		go a.poll(a.stop)
	}
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		if len(a.listeners) == 0 && a.stop != nil {
			close(a.stop)
			a.stop = nil
		}
		a.mu.Unlock()
	}
}

func (a *FileAmbient) poll(stop <-chan struct{}) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			current := a.hash()
			a.mu.Lock()
			changed := current != a.lastHash
			a.lastHash = current
			fns := make([]func(), 0, len(a.listeners))
			for _, fn := range a.listeners {
				fns = append(fns, fn)
			}
			a.mu.Unlock()

			if changed {
				for _, fn := range fns {
					fn()
				}
			}
		}
	}
}

func (a *FileAmbient) hash() [sha256.Size]byte {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return sha256.Sum256(nil)
	}
	return sha256.Sum256(data)
}
