package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ErrorResponse is the failure envelope every route returns.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// NewErrorResponse builds an ErrorResponse with ok=false.
func NewErrorResponse(msg string) ErrorResponse {
	return ErrorResponse{OK: false, Error: msg}
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Env     string `json:"env"`
	Time    string `json:"time"`
}

// EngineStatus is the usage banner returned by GET on an engine route.
type EngineStatus struct {
	OK      bool   `json:"ok"`
	Engine  string `json:"engine"`
	Message string `json:"message"`
}

// JobAccepted is the response to a successfully queued job.
type JobAccepted struct {
	OK     bool        `json:"ok"`
	Engine string      `json:"engine"`
	JobID  string      `json:"job_id"`
	Status string      `json:"status"`
	Job    interface{} `json:"job"`
	Note   string      `json:"note"`
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"` // "job", "job_log", "result", "heartbeat", "connection"
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"messageId,omitempty"`
}

// Constants for message types
const (
	WSTypeJob        = "job"
	WSTypeJobLog     = "job_log"
	WSTypeResult     = "result"
	WSTypeHeartbeat  = "heartbeat"
	WSTypeConnection = "connection"
)

// NewWebSocketMessage creates a new WebSocket message
func NewWebSocketMessage(msgType string, payload interface{}) *WebSocketMessage {
	return &WebSocketMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: uuid.NewString(),
	}
}

// ToJSON converts the message to JSON
func (m *WebSocketMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
