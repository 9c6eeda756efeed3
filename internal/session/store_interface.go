package session

import "time"

// SessionData is the serializable form stored in Redis.
type SessionData struct {
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	TabID     string    `json:"tab_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoreInterface maps a hashed bearer token to the per-tab session that
// issued it. Implementations must treat sessions for different tab ids
// as fully independent records.
type StoreInterface interface {
	Save(session *Session)
	Get(tokenHash string) (*Session, bool)
	Delete(tokenHash string)
	OnExpire(func(tokenHash string))
	Close() error
}
