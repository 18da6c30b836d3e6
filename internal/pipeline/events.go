package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of engine event
type EventType string

const (
	EventEngineCreated        EventType = "engine.created"
	EventEngineReleased       EventType = "engine.released"
	EventRecognitionCompleted EventType = "recognition.completed"
	EventRecognitionFailed    EventType = "recognition.failed"
)

// AllEventTypes lists every event the service publishes.
var AllEventTypes = []EventType{
	EventEngineCreated,
	EventEngineReleased,
	EventRecognitionCompleted,
	EventRecognitionFailed,
}

// EngineEvent represents one engine lifecycle or recognition event
type EngineEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	HandleID  string                 `json:"handle_id"`
	Backend   string                 `json:"backend,omitempty"`
	Language  string                 `json:"language,omitempty"`
	Format    string                 `json:"format,omitempty"`
	Duration  time.Duration          `json:"duration,omitempty"`
	Chars     int                    `json:"chars,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// NewEngineEvent creates a new engine event
func NewEngineEvent(eventType EventType, handleID string) *EngineEvent {
	return &EngineEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		HandleID:  handleID,
		Metadata:  make(map[string]interface{}),
	}
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return "evt_" + uuid.NewString()
}
