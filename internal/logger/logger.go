package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	TabID     string    `json:"tab_id,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Logger writes one JSONL event log per tab: session transitions,
// channel connects/reconnects, optimistic rollbacks.
type Logger struct {
	mu     sync.RWMutex
	file   *os.File
	enc    *json.Encoder
	logDir string
	tabID  string
}

func NewLogger(tabID string) (*Logger, error) {
	logDir, err := getLogDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get log directory: %w", err)
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("%s.log", tabID))

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		file:   file,
		enc:    json.NewEncoder(file),
		logDir: logDir,
		tabID:  tabID,
	}, nil
}

func getLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	var logDir string
	switch runtime.GOOS {
	case "windows":
		logDir = filepath.Join(homeDir, "AppData", "Local", "rentport", "logs")
	case "darwin":
		logDir = filepath.Join(homeDir, "Library", "Logs", "rentport")
	default:
		logDir = filepath.Join(homeDir, ".local", "share", "rentport", "logs")
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			logDir = filepath.Join(xdgData, "rentport", "logs")
		}
	}

	return logDir, nil
}

func (l *Logger) Log(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = time.Now()
	entry.TabID = l.tabID
	l.enc.Encode(entry)
}

func (l *Logger) LogEvent(message string) {
	l.Log(LogEntry{Type: "event", Message: message})
}

func (l *Logger) LogError(message string, err error) {
	l.Log(LogEntry{Type: "error", Message: message, Error: err.Error()})
}

func (l *Logger) LogResource(resource, message string) {
	l.Log(LogEntry{Type: "resource", Resource: resource, Message: message})
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) GetLogPath() string {
	if l.file != nil {
		return l.file.Name()
	}
	return ""
}
