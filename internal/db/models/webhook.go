package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookEndpoint is a registered listener for render lifecycle events.
// Deliveries are signed with the per-endpoint secret; consecutive failures
// past the configured threshold deactivate the endpoint.
type WebhookEndpoint struct {
	bun.BaseModel `bun:"table:webhook_endpoints,alias:we"`

	ID              uuid.UUID    `bun:",type:uuid,pk"`
	Url             string       `bun:",notnull"`
	Secret          string       `bun:",notnull"`
	Events          []string     `bun:",array"`
	IsActive        bool         `bun:",notnull,default:true"`
	FailureCount    int          `bun:",notnull,default:0"`
	LastTriggeredAt bun.NullTime `bun:",nullzero"`
	CreatedAt       bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt       bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
}

// SubscribesTo reports whether the endpoint wants the given event. An empty
// subscription list means all events.
func (w *WebhookEndpoint) SubscribesTo(event string) bool {
	if len(w.Events) == 0 {
		return true
	}

	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
