package types

import "encoding/json"

// Envelope is the uniform response wrapper for every API endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func OK(data any) Envelope {
	raw, _ := json.Marshal(data)
	return Envelope{Success: true, Data: raw}
}

func Fail(errMsg string) Envelope {
	return Envelope{Success: false, Error: errMsg}
}
