package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"
)

type OutboxStatus string

const (
	OutboxStatusQueued    OutboxStatus = "queued"
	OutboxStatusClaimed   OutboxStatus = "claimed"
	OutboxStatusDelivered OutboxStatus = "delivered"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// NotificationOutbox is a notification intent written in the same transaction
// as the render it describes. A worker drains queued rows and delivers them to
// the registered webhook endpoints, so an interrupted dispatch is never lost.
type NotificationOutbox struct {
	bun.BaseModel `bun:"table:notification_outbox,alias:no"`

	ID          uuid.UUID    `bun:",type:uuid,pk"`
	RenderID    uuid.UUID    `bun:",type:uuid,notnull"`
	Event       string       `bun:",notnull"`
	Payload     []byte       `bun:",notnull"`
	Status      OutboxStatus `bun:",notnull"`
	Attempts    int          `bun:",notnull,default:0"`
	DeliveredAt bun.NullTime `bun:",nullzero"`
	CreatedAt   bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt   bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
}

func NewOutboxEntry(renderID uuid.UUID, event string, data interface{}) (*NotificationOutbox, error) {
	encoded, err := msgpack.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &NotificationOutbox{
		ID:       uuid.Must(uuid.NewRandom()),
		RenderID: renderID,
		Event:    event,
		Payload:  encoded,
		Status:   OutboxStatusQueued,
	}, nil
}
