package models

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Chain is an ordered series of renders representing iterative versions of
// one design thread. Renders reference it by chain_id and carry a strictly
// increasing chain_position.
type Chain struct {
	bun.BaseModel `bun:"table:render_chains,alias:c"`

	ID          uuid.UUID    `bun:",type:uuid,pk"`
	ProjectID   uuid.UUID    `bun:",type:uuid,notnull"`
	Name        string       `bun:",notnull"`
	Description string       `bun:",nullzero"`
	IsDefault   bool         `bun:",notnull,default:false"`
	CreatedAt   bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt   bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
}
