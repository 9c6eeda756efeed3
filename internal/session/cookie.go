package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sync"

	"rentport/internal/constants"
)

// CookieName is a pure function of the tab id: two distinct tab ids can
// never collide on a cookie name. Callers validate tab ids as UUIDs
// before this point.
func CookieName(tabID string) string {
	if tabID == "" {
		return constants.SessionCookiePrefix + constants.DefaultCookieSuffix
	}
	return constants.SessionCookiePrefix + tabID
}

// NewSessionCookie builds the per-tab cookie carrying the signed bearer
// token. httpOnly always; Secure only in production so local dev over
// plain HTTP keeps working.
func NewSessionCookie(name, token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    SignCookieValue(token),
		Path:     "/",
		MaxAge:   constants.SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: constants.SessionCookieSameSite,
	}
}

// ExpiredCookie unconditionally clears the named cookie. Setting it for
// a cookie that never existed is harmless, which is what makes logout
// idempotent.
func ExpiredCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: constants.SessionCookieSameSite,
	}
}

var (
	cookieSigningKey []byte
	signingKeyOnce   sync.Once
)

func getCookieSigningKey() []byte {
	signingKeyOnce.Do(func() {
		cookieSigningKey = make([]byte, 32)
		if _, err := rand.Read(cookieSigningKey); err != nil {
			panic("failed to generate cookie signing key: " + err.Error())
		}
	})
	return cookieSigningKey
}

func SignCookieValue(token string) string {
	mac := hmac.New(sha256.New, getCookieSigningKey())
	mac.Write([]byte(token))
	sig := hex.EncodeToString(mac.Sum(nil))
	return token + ":" + sig
}

func VerifyCookieValue(cookieValue string) (string, bool) {
	parts := splitCookieValue(cookieValue)
	if parts == nil {
		return "", false
	}
	token := parts[0]
	providedSig := parts[1]

	mac := hmac.New(sha256.New, getCookieSigningKey())
	mac.Write([]byte(token))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(providedSig), []byte(expectedSig)) != 1 {
		return "", false
	}
	return token, true
}

func splitCookieValue(value string) []string {
	idx := -1
	for i := len(value) - 1; i >= 0; i-- {
		if value[i] == ':' {
			idx = i
			break
		}
	}
	if idx <= 0 || idx >= len(value)-1 {
		return nil
	}
	return []string{value[:idx], value[idx+1:]}
}
