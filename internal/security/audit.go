package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const maxAuditLogsPerMinute = 1000

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	IP        string    `json:"ip"`
	TabID     string    `json:"tab_id,omitempty"`
	Details   string    `json:"details"`
	Severity  string    `json:"severity"`
}

type AuditLogger struct {
	mu          sync.RWMutex
	file        *os.File
	enc         *json.Encoder
	logCount    map[string]int
	windowStart time.Time
}

var (
	instance *AuditLogger
	once     sync.Once
)

func GetAuditLogger() (*AuditLogger, error) {
	var err error
	once.Do(func() {
		instance, err = newAuditLogger()
	})
	return instance, err
}

func newAuditLogger() (*AuditLogger, error) {
	dir, err := getAuditLogDir()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &AuditLogger{
		file:        file,
		enc:         json.NewEncoder(file),
		logCount:    make(map[string]int),
		windowStart: time.Now(),
	}, nil
}

func getAuditLogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "rentport", "audit"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "rentport", "audit"), nil
	default:
		return filepath.Join(home, ".local", "share", "rentport", "audit"), nil
	}
}

func (al *AuditLogger) Log(event AuditEvent) {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := time.Now()

	if now.Sub(al.windowStart) > time.Minute {
		al.windowStart = now
		al.logCount = make(map[string]int)
	}

	totalLogs := 0
	for _, count := range al.logCount {
		totalLogs += count
	}

	if totalLogs >= maxAuditLogsPerMinute {
		return
	}

	al.logCount[event.EventType]++
	event.Timestamp = now
	al.enc.Encode(event)
}

func (al *AuditLogger) LogAuthFailure(ip, tabID, reason string) {
	al.Log(AuditEvent{
		EventType: "auth_failure",
		IP:        ip,
		TabID:     tabID,
		Details:   reason,
		Severity:  "warning",
	})
}

func (al *AuditLogger) LogAuthSuccess(ip, tabID string) {
	al.Log(AuditEvent{
		EventType: "auth_success",
		IP:        ip,
		TabID:     tabID,
		Details:   "Authentication successful",
		Severity:  "info",
	})
}

func (al *AuditLogger) LogBruteForce(ip, tabID string, attempts int) {
	al.Log(AuditEvent{
		EventType: "brute_force",
		IP:        ip,
		TabID:     tabID,
		Details:   fmt.Sprintf("Multiple failed attempts: %d", attempts),
		Severity:  "critical",
	})
}

func (al *AuditLogger) LogConnectionLimit(ip string) {
	al.Log(AuditEvent{
		EventType: "connection_limit",
		IP:        ip,
		Details:   "Connection limit exceeded",
		Severity:  "warning",
	})
}

func (al *AuditLogger) LogChannelConnect(ip, tabID string) {
	al.Log(AuditEvent{
		EventType: "channel_connect",
		IP:        ip,
		TabID:     tabID,
		Details:   "Realtime channel connected",
		Severity:  "info",
	})
}

func (al *AuditLogger) LogChannelDisconnect(ip, tabID, reason string) {
	al.Log(AuditEvent{
		EventType: "channel_disconnect",
		IP:        ip,
		TabID:     tabID,
		Details:   fmt.Sprintf("Realtime channel disconnected: %s", reason),
		Severity:  "info",
	})
}

func (al *AuditLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file != nil {
		return al.file.Close()
	}
	return nil
}
