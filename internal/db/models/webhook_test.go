package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSubscribesTo(t *testing.T) {
	all := &WebhookEndpoint{}
	assert.True(t, all.SubscribesTo("render.completed"))
	assert.True(t, all.SubscribesTo("render.failed"))

	scoped := &WebhookEndpoint{Events: []string{"render.completed"}}
	assert.True(t, scoped.SubscribesTo("render.completed"))
	assert.False(t, scoped.SubscribesTo("render.failed"))
}

func TestRenderStatusIsTerminal(t *testing.T) {
	assert.False(t, RenderStatusPending.IsTerminal())
	assert.False(t, RenderStatusProcessing.IsTerminal())
	assert.True(t, RenderStatusCompleted.IsTerminal())
	assert.True(t, RenderStatusFailed.IsTerminal())
}

func TestNewOutboxEntry(t *testing.T) {
	entry, err := NewOutboxEntry(uuid.Must(uuid.NewRandom()), "render.completed", map[string]string{"renderId": "r1"})
	assert.NoError(t, err)
	assert.Equal(t, OutboxStatusQueued, entry.Status)
	assert.Equal(t, "render.completed", entry.Event)
	assert.NotEmpty(t, entry.Payload)
}
