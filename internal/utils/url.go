package utils

import (
	"strings"
)

// WebSocketURL rewrites an http(s) base URL into the matching ws(s) URL
// for the given path and appends the bearer token as a query parameter.
func WebSocketURL(baseURL, path, token string) string {
	wsURL := baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + path
	if token != "" {
		if strings.Contains(wsURL, "?") {
			wsURL += "&token=" + token
		} else {
			wsURL += "?token=" + token
		}
	}
	return wsURL
}
