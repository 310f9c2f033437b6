package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IChainRepository interface {
	Repository[models.Chain]
	WithTx(tx *bun.Tx) IChainRepository
	WithDB(db *bun.DB) IChainRepository
	ListByProjectID(ctx context.Context, projectID string) ([]models.Chain, error)
	GetDefaultByProjectID(ctx context.Context, projectID string) (*models.Chain, error)
	UpsertDefault(ctx context.Context, chain *models.Chain) (*models.Chain, error)
	RenameByID(ctx context.Context, id string, name string) error
}

type ChainRepository struct {
	db bun.IDB
}

func NewChainRepository(db *bun.DB) IChainRepository {
	return &ChainRepository{db: db}
}

func (r *ChainRepository) Create(ctx context.Context, chain *models.Chain) (*models.Chain, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain model is nil")
	}
	if chain.ID == uuid.Nil {
		chain.ID = uuid.Must(uuid.NewRandom())
	}

	if err := r.db.NewInsert().Model(chain).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return chain, nil
}

func (r *ChainRepository) GetByID(ctx context.Context, id string) (*models.Chain, error) {
	var chain models.Chain
	if err := r.db.NewSelect().Model(&chain).Where("c.id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &chain, nil
}

func (r *ChainRepository) UpdateByID(ctx context.Context, id string, chain *models.Chain) (*models.Chain, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain model is nil")
	}

	if err := r.db.NewUpdate().Model(chain).Where("id = ?", id).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return chain, nil
}

func (r *ChainRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.Chain{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *ChainRepository) ListByProjectID(ctx context.Context, projectID string) ([]models.Chain, error) {
	var chains []models.Chain
	err := r.db.NewSelect().
		Model(&chains).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return chains, nil
}

func (r *ChainRepository) GetDefaultByProjectID(ctx context.Context, projectID string) (*models.Chain, error) {
	var chain models.Chain
	err := r.db.NewSelect().
		Model(&chain).
		Where("project_id = ?", projectID).
		Where("is_default = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return &chain, nil
}

// UpsertDefault inserts a default chain for the project unless one already
// exists, and returns the surviving row either way. The partial unique index
// on (project_id, is_default) makes concurrent first-requests converge on a
// single chain.
func (r *ChainRepository) UpsertDefault(ctx context.Context, chain *models.Chain) (*models.Chain, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain model is nil")
	}
	if chain.ID == uuid.Nil {
		chain.ID = uuid.Must(uuid.NewRandom())
	}
	chain.IsDefault = true

	if _, err := r.upsertDefaultQuery(chain).Exec(ctx); err != nil {
		return nil, err
	}

	existing, err := r.GetDefaultByProjectID(ctx, chain.ProjectID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("default chain upsert lost for project %s", chain.ProjectID)
		}
		return nil, err
	}

	return existing, nil
}

// upsertDefaultQuery targets the partial unique index on default chains. The
// conflict target must carry the index predicate or the arbiter inference
// fails on both backends.
func (r *ChainRepository) upsertDefaultQuery(chain *models.Chain) *bun.InsertQuery {
	return r.db.NewInsert().
		Model(chain).
		On("CONFLICT (project_id, is_default) WHERE is_default = true DO NOTHING")
}

func (r *ChainRepository) RenameByID(ctx context.Context, id string, name string) error {
	_, err := r.db.NewUpdate().
		Model(&models.Chain{}).
		Where("id = ?", id).
		Set("name = ?", name).
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	return err
}

func (r *ChainRepository) WithTx(tx *bun.Tx) IChainRepository {
	return &ChainRepository{db: tx}
}

func (r *ChainRepository) WithDB(db *bun.DB) IChainRepository {
	return &ChainRepository{db: db}
}
