package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PipelineMemory is the chain-scoped context accumulated from prior
// generations. The payload is an open JSON object: merges overwrite known
// keys and preserve unknown ones, never replace the blob wholesale.
type PipelineMemory struct {
	bun.BaseModel `bun:"table:pipeline_memories,alias:pm"`

	ChainID   uuid.UUID       `bun:"chain_id,type:uuid,pk"`
	Payload   json.RawMessage `bun:",type:jsonb,notnull"`
	Version   int             `bun:",notnull,default:0"`
	UpdatedAt bun.NullTime    `bun:",nullzero,notnull,default:current_timestamp"`
	CreatedAt bun.NullTime    `bun:",nullzero,notnull,default:current_timestamp"`
}
