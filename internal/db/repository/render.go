package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/renderiq/render-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IRenderRepository interface {
	Repository[models.Render]
	WithTx(tx *bun.Tx) IRenderRepository
	WithDB(db *bun.DB) IRenderRepository
	ListByChainID(ctx context.Context, chainID string) ([]models.Render, error)
	UpdateStatusByID(ctx context.Context, id string, status models.RenderStatus) error
	GetLatestCompletedInChain(ctx context.Context, chainID string) (*models.Render, error)
	NextChainPosition(ctx context.Context, chainID string) (int, error)
	SweepStale(ctx context.Context, maxAge time.Duration, reason string) (int, error)
}

type RenderRepository struct {
	db bun.IDB
}

func NewRenderRepository(db *bun.DB) IRenderRepository {
	return &RenderRepository{db: db}
}

func (r *RenderRepository) Create(ctx context.Context, render *models.Render) (*models.Render, error) {
	if render == nil {
		return nil, fmt.Errorf("render model is nil")
	}

	if err := r.db.NewInsert().Model(render).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return render, nil
}

func (r *RenderRepository) GetByID(ctx context.Context, id string) (*models.Render, error) {
	var render models.Render
	if err := r.db.NewSelect().Model(&render).Where("r.id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &render, nil
}

func (r *RenderRepository) UpdateByID(ctx context.Context, id string, render *models.Render) (*models.Render, error) {
	if render == nil {
		return nil, fmt.Errorf("render model is nil")
	}

	if err := r.db.NewUpdate().Model(render).Where("id = ?", id).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return render, nil
}

func (r *RenderRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.Render{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *RenderRepository) ListByChainID(ctx context.Context, chainID string) ([]models.Render, error) {
	var renders []models.Render
	err := r.db.NewSelect().
		Model(&renders).
		Where("chain_id = ?", chainID).
		Order("chain_position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return renders, nil
}

func (r *RenderRepository) UpdateStatusByID(ctx context.Context, id string, status models.RenderStatus) error {
	_, err := r.db.NewUpdate().
		Model(&models.Render{}).
		Where("id = ?", id).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	return err
}

func (r *RenderRepository) GetLatestCompletedInChain(ctx context.Context, chainID string) (*models.Render, error) {
	var render models.Render
	err := r.db.NewSelect().
		Model(&render).
		Where("chain_id = ?", chainID).
		Where("status = ?", models.RenderStatusCompleted).
		Order("chain_position DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return &render, nil
}

// NextChainPosition computes the next gap-free position for a chain. It must
// be called inside the same transaction as the render insert; see
// chainsvc.Allocator for the per-chain serialization that makes the
// read-then-insert safe.
func (r *RenderRepository) NextChainPosition(ctx context.Context, chainID string) (int, error) {
	var next int
	err := r.db.NewSelect().
		Model((*models.Render)(nil)).
		ColumnExpr("COALESCE(MAX(chain_position), -1) + 1").
		Where("chain_id = ?", chainID).
		Scan(ctx, &next)
	if err != nil {
		return 0, err
	}

	return next, nil
}

// SweepStale marks renders stuck in a non-terminal state past maxAge as
// failed. Used for crash recovery so no render stays non-terminal forever.
func (r *RenderRepository) SweepStale(ctx context.Context, maxAge time.Duration, reason string) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	res, err := r.db.NewUpdate().
		Model(&models.Render{}).
		Where("status IN (?)", bun.In([]models.RenderStatus{models.RenderStatusPending, models.RenderStatusProcessing})).
		Where("updated_at < ?", cutoff).
		Set("status = ?", models.RenderStatusFailed).
		Set("error_message = ?", reason).
		Set("completed_at = ?", time.Now()).
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return int(affected), nil
}

func (r *RenderRepository) WithTx(tx *bun.Tx) IRenderRepository {
	return &RenderRepository{db: tx}
}

func (r *RenderRepository) WithDB(db *bun.DB) IRenderRepository {
	return &RenderRepository{db: db}
}
