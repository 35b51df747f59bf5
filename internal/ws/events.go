// Package ws streams sync lifecycle events to connected dashboard clients.
package ws

import (
	"encoding/json"
	"time"
)

// Event types pushed to clients.
const (
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// Event is the wire shape of one pushed event.
type Event struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}
