package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/utils/jsonutil"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type IMemoryRepository interface {
	WithTx(tx *bun.Tx) IMemoryRepository
	WithDB(db *bun.DB) IMemoryRepository
	GetByChainID(ctx context.Context, chainID string) (*models.PipelineMemory, error)
	Merge(ctx context.Context, chainID string, delta map[string]any) (*models.PipelineMemory, error)
	Clear(ctx context.Context, chainID string) error
}

type MemoryRepository struct {
	db bun.IDB
}

func NewMemoryRepository(db *bun.DB) IMemoryRepository {
	return &MemoryRepository{db: db}
}

// GetByChainID returns the memory row for a chain, or an empty zero-version
// payload when none exists. Absence is not an error.
func (r *MemoryRepository) GetByChainID(ctx context.Context, chainID string) (*models.PipelineMemory, error) {
	var memory models.PipelineMemory
	err := r.db.NewSelect().Model(&memory).Where("chain_id = ?", chainID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			id, parseErr := uuid.Parse(chainID)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid chain id: %w", parseErr)
			}
			return &models.PipelineMemory{
				ChainID: id,
				Payload: json.RawMessage(`{}`),
				Version: 0,
			}, nil
		}
		return nil, err
	}

	return &memory, nil
}

// Merge applies delta onto the stored payload inside a transaction: delta
// keys overwrite, unknown stored keys are preserved, and the version counter
// increments. The row is seeded before the locking read so even the first two
// concurrent merges serialize on it instead of both starting from empty.
func (r *MemoryRepository) Merge(ctx context.Context, chainID string, delta map[string]any) (*models.PipelineMemory, error) {
	id, err := uuid.Parse(chainID)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id: %w", err)
	}

	var merged *models.PipelineMemory
	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		seed := &models.PipelineMemory{ChainID: id, Payload: json.RawMessage(`{}`)}
		if _, err := seedMemoryQuery(tx, seed).Exec(ctx); err != nil {
			return err
		}

		var memory models.PipelineMemory
		if err := lockMemoryQuery(tx, &memory, chainID).Scan(ctx); err != nil {
			return err
		}

		existing := map[string]any{}
		if len(memory.Payload) > 0 {
			if err := json.Unmarshal(memory.Payload, &existing); err != nil {
				return fmt.Errorf("corrupt memory payload for chain %s: %w", chainID, err)
			}
		}

		payload, err := json.Marshal(jsonutil.MergeMaps(existing, delta))
		if err != nil {
			return err
		}

		memory.Payload = payload
		memory.Version++

		_, err = tx.NewUpdate().
			Model(&memory).
			Where("chain_id = ?", chainID).
			Set("payload = ?", payload).
			Set("version = ?", memory.Version).
			Set("updated_at = ?", time.Now()).
			Exec(ctx)
		if err != nil {
			return err
		}

		merged = &memory
		return nil
	})
	if err != nil {
		return nil, err
	}

	return merged, nil
}

// seedMemoryQuery makes sure a memory row exists so the locking read below
// has something to lock.
func seedMemoryQuery(idb bun.IDB, seed *models.PipelineMemory) *bun.InsertQuery {
	return idb.NewInsert().
		Model(seed).
		On("CONFLICT (chain_id) DO NOTHING")
}

// lockMemoryQuery takes a row lock where the dialect supports one. SQLite
// serializes writing transactions at the connection level instead, and
// rejects the FOR UPDATE clause outright.
func lockMemoryQuery(idb bun.IDB, memory *models.PipelineMemory, chainID string) *bun.SelectQuery {
	q := idb.NewSelect().Model(memory).Where("chain_id = ?", chainID)
	if idb.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	return q
}

func (r *MemoryRepository) Clear(ctx context.Context, chainID string) error {
	_, err := r.db.NewDelete().
		Model(&models.PipelineMemory{}).
		Where("chain_id = ?", chainID).
		Exec(ctx)
	return err
}

func (r *MemoryRepository) WithTx(tx *bun.Tx) IMemoryRepository {
	return &MemoryRepository{db: tx}
}

func (r *MemoryRepository) WithDB(db *bun.DB) IMemoryRepository {
	return &MemoryRepository{db: db}
}
