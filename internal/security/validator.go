package security

import (
	"regexp"
	"strings"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidateUUID checks if string is valid UUID format. Tab ids must pass
// this before they are ever folded into a cookie name.
func ValidateUUID(uuid string) bool {
	if uuid == "" {
		return false
	}
	return uuidRegex.MatchString(strings.ToLower(uuid))
}

// ValidateToken checks token format (should be UUID-like)
func ValidateToken(token string) bool {
	if token == "" || len(token) < 32 {
		return false
	}
	return true
}
