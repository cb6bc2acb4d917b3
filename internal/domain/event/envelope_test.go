package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("catalog.product_created", "inventory.initial-stock", []byte(`{"product_id":1}`))
	require.NoError(t, err)

	assert.NotEqual(t, env.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, "catalog.product_created", env.EventType)
	assert.Equal(t, "inventory.initial-stock", env.ListenerID)
	assert.WithinDuration(t, time.Now().UTC(), env.PublishedAt, time.Second)
	assert.Nil(t, env.CompletedAt)
	assert.Equal(t, StatusPending, env.Status())
}

func TestNewEnvelopeValidation(t *testing.T) {
	tests := []struct {
		name       string
		eventType  string
		listenerID string
		payload    []byte
		wantErr    error
	}{
		{"missing event type", "", "listener", []byte(`{}`), ErrEventTypeRequired},
		{"blank event type", "   ", "listener", []byte(`{}`), ErrEventTypeRequired},
		{"missing listener", "some.event", "", []byte(`{}`), ErrListenerIDRequired},
		{"missing payload", "some.event", "listener", nil, ErrPayloadRequired},
		{"invalid payload", "some.event", "listener", []byte(`{not json`), ErrPayloadNotJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnvelope(tt.eventType, tt.listenerID, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEnvelopeStatusTransition(t *testing.T) {
	env, err := NewEnvelope("some.event", "listener", []byte(`{}`))
	require.NoError(t, err)
	require.False(t, env.Completed())

	now := time.Now().UTC()
	env.CompletedAt = &now

	assert.True(t, env.Completed())
	assert.Equal(t, StatusCompleted, env.Status())
}
