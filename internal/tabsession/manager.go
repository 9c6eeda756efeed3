package tabsession

import (
	"log"
	"sync"

	"rentport/internal/tabid"
)

type State int

const (
	StateUninitialized State = iota
	StateSyncing
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// Manager reconciles the shared ambient session with this tab's own
// credential. The ambient session only triggers re-synchronization;
// the tab's credential (and its server cookie) stays pinned to this
// tab afterwards. Mounted once per tab; never panics into callers.
type Manager struct {
	mu       sync.Mutex
	identity *tabid.Identity
	storage  tabid.Storage
	ambient  AmbientSession
	state    State
	cred     *Credential
	cancel   func()
	onChange func(State, *Credential)
}

func NewManager(identity *tabid.Identity, storage tabid.Storage, ambient AmbientSession) *Manager {
	return &Manager{
		identity: identity,
		storage:  storage,
		ambient:  ambient,
		state:    StateUninitialized,
	}
}

// OnChange registers the observer invoked after every state or
// credential transition. Must be set before Start.
func (m *Manager) OnChange(fn func(State, *Credential)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start fixes the tab id, begins observing the ambient session and runs
// the first sync. Idempotent: a second Start is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return
	}
	m.state = StateSyncing
	m.cred = loadCredential(m.storage)
	m.mu.Unlock()

	m.identity.TabID()
	m.cancel = m.ambient.Subscribe(m.sync)
	m.sync()
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Credential returns a copy of the tab's credential, or nil when
// unauthenticated.
func (m *Manager) Credential() *Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil
	}
	cred := *m.cred
	return &cred
}

// TabID exposes the fixed tab id for consumers wiring the API client
// and the realtime channel.
func (m *Manager) TabID() string {
	return m.identity.TabID()
}

// sync is the one transition step. It must be idempotent: re-running
// with an unchanged ambient identity performs no storage write, so
// storage-event listeners never loop.
func (m *Manager) sync() {
	ambientCred, signedIn := m.ambient.Current()

	m.mu.Lock()

	if !signedIn {
		changed := m.cred != nil || m.state != StateUnauthenticated
		if m.cred != nil {
			if err := clearCredential(m.storage); err != nil {
				log.Printf("⚠️  Failed to clear tab credential: %v", err)
			}
		}
		m.cred = nil
		m.state = StateUnauthenticated
		m.finishLocked(changed)
		return
	}

	if m.cred.Same(ambientCred) {
		changed := m.state != StateAuthenticated
		m.state = StateAuthenticated
		m.finishLocked(changed)
		return
	}

	// The tab adopts whichever identity last authenticated through the
	// shared provider.
	if err := storeCredential(m.storage, ambientCred); err != nil {
		log.Printf("⚠️  Failed to persist tab credential: %v", err)
	}
	m.cred = ambientCred
	m.state = StateAuthenticated
	m.finishLocked(true)
}

// finishLocked releases the lock and fires the observer when anything
// moved.
func (m *Manager) finishLocked(changed bool) {
	state := m.state
	var cred *Credential
	if m.cred != nil {
		c := *m.cred
		cred = &c
	}
	fn := m.onChange
	m.mu.Unlock()

	if changed && fn != nil {
		fn(state, cred)
	}
}
