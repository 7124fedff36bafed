package client

import "time"

// ServerInfo is the address of the running server.
type ServerInfo struct {
	URL  string `json:"url"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Snapshot is the daemon's diagnostic view of the supervisor.
type Snapshot struct {
	State     string      `json:"state"`
	Info      *ServerInfo `json:"info,omitempty"`
	PID       int         `json:"pid,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}
