package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RenderStatus string

const (
	RenderStatusPending    RenderStatus = "pending"
	RenderStatusProcessing RenderStatus = "processing"
	RenderStatusCompleted  RenderStatus = "completed"
	RenderStatusFailed     RenderStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RenderStatus) IsTerminal() bool {
	return s == RenderStatusCompleted || s == RenderStatusFailed
}

type RenderType string

const (
	RenderTypeImage RenderType = "image"
	RenderTypeVideo RenderType = "video"
)

type Render struct {
	bun.BaseModel `bun:"table:renders,alias:r"`

	ID                uuid.UUID       `bun:",type:uuid,pk"`
	ProjectID         uuid.UUID       `bun:",type:uuid,notnull"`
	ChainID           uuid.UUID       `bun:"chain_id,type:uuid,nullzero"`
	ChainPosition     int             `bun:"chain_position"`
	ReferenceRenderID uuid.UUID       `bun:"reference_render_id,type:uuid,nullzero"`
	Type              RenderType      `bun:",notnull"`
	Prompt            string          `bun:",notnull"`
	Settings          json.RawMessage `bun:",type:jsonb,notnull"`
	Status            RenderStatus    `bun:",notnull"`
	OutputUrl         string          `bun:",nullzero"`
	OutputKey         string          `bun:",nullzero"`
	ThumbnailUrl      string          `bun:",nullzero"`
	ErrorMessage      string          `bun:",nullzero"`
	ContextData       json.RawMessage `bun:",type:jsonb,nullzero"`
	Chain             *Chain          `bun:"rel:belongs-to,join:chain_id=id"`
	StartedAt         bun.NullTime    `bun:",nullzero"`
	CompletedAt       bun.NullTime    `bun:",nullzero"`
	CreatedAt         bun.NullTime    `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt         bun.NullTime    `bun:",nullzero,notnull,default:current_timestamp"`
}
