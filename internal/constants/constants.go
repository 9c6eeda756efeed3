package constants

import (
	"net/http"
	"time"
)

// Network defaults
const (
	DefaultPort      = "8090"
	DefaultServerURL = "http://localhost:8090"
	WSBufferSize     = 4096
	CleanupInterval  = 30 * time.Second
	RequestTimeout   = 15 * time.Second
	MaxBodySize      = 1 * 1024 * 1024 // JSON API bodies only
)

// Per-tab session cookies
const (
	SessionCookiePrefix   = "session_"
	DefaultCookieSuffix   = "default"
	SessionCookieMaxAge   = 30 * 24 * 3600 // 30 days
	SessionDuration       = 30 * 24 * time.Hour
	SessionCookieSameSite = http.SameSiteLaxMode
	TabIDHeader           = "x-tab-id"
)

// Realtime channel
const (
	WSHandshakeTimeout   = 10 * time.Second
	WSWriteTimeout       = 10 * time.Second
	WSPongTimeout        = 60 * time.Second
	WSPingInterval       = 50 * time.Second
	MaxWSMessageSize     = 256 * 1024
	ClientSendBuffer     = 64
	ReconnectBaseDelay   = 500 * time.Millisecond
	ReconnectMaxDelay    = 30 * time.Second
	MaxReconnectAttempts = 8
)

// Optimistic cache
const (
	TempIDPrefix = "tmp_"
)

// Brute force protection on login
const (
	MaxAuthAttempts = 5
	BlockDuration   = 15 * time.Minute
)

// API endpoints
const (
	EndpointLogin     = "/api/auth/login"
	EndpointMe        = "/api/auth/me"
	EndpointLogout    = "/api/auth/logout"
	EndpointResources = "/api/"
	EndpointWebSocket = "/ws"
)

// Resource names carried on the wire and in REST paths
const (
	ResourceInvoices   = "invoices"
	ResourceProperties = "properties"
	ResourceRooms      = "rooms"
	ResourceTenants    = "tenants"
)

// Messages
const (
	MsgInvalidJSON      = "Invalid JSON"
	MsgMethodNotAllowed = "Method not allowed"
	MsgInvalidTabID     = "Invalid tab id"
	MsgUnauthenticated  = "Unauthenticated"
	MsgNotFound         = "Not found"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
)

// Version
const Version = "0.3.0"
