package event

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEventTypeRequired  = errors.New("event: event type is required")
	ErrListenerIDRequired = errors.New("event: listener id is required")
	ErrPayloadRequired    = errors.New("event: payload is required")
	ErrPayloadNotJSON     = errors.New("event: payload must be valid JSON")
)

// Status is the derived delivery state of an envelope.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Envelope pairs one event occurrence with one listener. A published event
// fans out into one envelope per resolved listener so that completion and
// retry are tracked independently per listener.
//
// CompletedAt transitions nil -> non-nil exactly once and never reverts.
type Envelope struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	ListenerID  string
	PublishedAt time.Time
	CompletedAt *time.Time
}

// NewEnvelope creates a pending envelope with a fresh id.
func NewEnvelope(eventType, listenerID string, payload []byte) (*Envelope, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, ErrEventTypeRequired
	}
	if strings.TrimSpace(listenerID) == "" {
		return nil, ErrListenerIDRequired
	}
	if len(payload) == 0 {
		return nil, ErrPayloadRequired
	}
	if !json.Valid(payload) {
		return nil, ErrPayloadNotJSON
	}

	return &Envelope{
		ID:          uuid.New(),
		EventType:   eventType,
		Payload:     payload,
		ListenerID:  listenerID,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Completed reports whether the envelope was delivered successfully.
func (e *Envelope) Completed() bool {
	return e.CompletedAt != nil
}

func (e *Envelope) Status() Status {
	if e.Completed() {
		return StatusCompleted
	}
	return StatusPending
}
