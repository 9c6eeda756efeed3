package session

import (
	"log"
	"sync"
	"time"

	"rentport/internal/constants"
)

// Session binds one issued bearer token to one tab's authenticated user.
// The raw token lives only in the cookie and the login response; the
// store keys by its hash.
type Session struct {
	TokenHash string
	UserID    string
	TabID     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

func (s *Session) VerifyToken(token string) bool {
	providedHash := HashSHA256(token)
	return subtleConstantTimeCompare(providedHash, s.TokenHash) == 1
}

type MemoryStore struct {
	sessions sync.Map
	onExpire func(tokenHash string)
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{}
	go store.cleanupLoop()
	return store
}

func (st *MemoryStore) OnExpire(fn func(tokenHash string)) {
	st.onExpire = fn
}

func (st *MemoryStore) Save(session *Session) {
	st.sessions.Store(session.TokenHash, session)
}

func (st *MemoryStore) Get(tokenHash string) (*Session, bool) {
	val, ok := st.sessions.Load(tokenHash)
	if !ok {
		return nil, false
	}
	session := val.(*Session)
	if session.IsExpired() {
		st.sessions.Delete(tokenHash)
		if st.onExpire != nil {
			st.onExpire(tokenHash)
		}
		return nil, false
	}
	return session, true
}

func (st *MemoryStore) Delete(tokenHash string) {
	st.sessions.Delete(tokenHash)
}

func (st *MemoryStore) Close() error {
	return nil
}

func (st *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(constants.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		st.sessions.Range(func(key, value interface{}) bool {
			session := value.(*Session)
			if session.IsExpired() {
				tokenHash := key.(string)
				st.sessions.Delete(key)
				if st.onExpire != nil {
					st.onExpire(tokenHash)
				}
				log.Printf("🗑 Expired tab session cleaned up: tab %s", session.TabID)
			}
			return true
		})
	}
}
