package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IWebhookRepository interface {
	Repository[models.WebhookEndpoint]
	WithTx(tx *bun.Tx) IWebhookRepository
	WithDB(db *bun.DB) IWebhookRepository
	ListActive(ctx context.Context) ([]models.WebhookEndpoint, error)
	List(ctx context.Context) ([]models.WebhookEndpoint, error)
	RecordSuccess(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, deactivateAt int) error
}

type WebhookRepository struct {
	db bun.IDB
}

func NewWebhookRepository(db *bun.DB) IWebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, endpoint *models.WebhookEndpoint) (*models.WebhookEndpoint, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("webhook endpoint model is nil")
	}
	if endpoint.ID == uuid.Nil {
		endpoint.ID = uuid.Must(uuid.NewRandom())
	}
	endpoint.IsActive = true

	if err := r.db.NewInsert().Model(endpoint).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return endpoint, nil
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*models.WebhookEndpoint, error) {
	var endpoint models.WebhookEndpoint
	if err := r.db.NewSelect().Model(&endpoint).Where("we.id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &endpoint, nil
}

func (r *WebhookRepository) UpdateByID(ctx context.Context, id string, endpoint *models.WebhookEndpoint) (*models.WebhookEndpoint, error) {
	if endpoint == nil {
		return nil, fmt.Errorf("webhook endpoint model is nil")
	}

	if err := r.db.NewUpdate().Model(endpoint).Where("id = ?", id).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return endpoint, nil
}

func (r *WebhookRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.WebhookEndpoint{}).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *WebhookRepository) List(ctx context.Context) ([]models.WebhookEndpoint, error) {
	var endpoints []models.WebhookEndpoint
	if err := r.db.NewSelect().Model(&endpoints).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}

	return endpoints, nil
}

func (r *WebhookRepository) ListActive(ctx context.Context) ([]models.WebhookEndpoint, error) {
	var endpoints []models.WebhookEndpoint
	err := r.db.NewSelect().
		Model(&endpoints).
		Where("is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return endpoints, nil
}

// RecordSuccess resets the consecutive-failure counter.
func (r *WebhookRepository) RecordSuccess(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model(&models.WebhookEndpoint{}).
		Where("id = ?", id).
		Set("failure_count = 0").
		Set("last_triggered_at = ?", time.Now()).
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	return err
}

// RecordFailure increments the counter and deactivates the endpoint once it
// reaches deactivateAt consecutive failures.
func (r *WebhookRepository) RecordFailure(ctx context.Context, id string, deactivateAt int) error {
	_, err := r.db.NewUpdate().
		Model(&models.WebhookEndpoint{}).
		Where("id = ?", id).
		Set("failure_count = failure_count + 1").
		Set("is_active = (failure_count + 1 < ?)", deactivateAt).
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	return err
}

func (r *WebhookRepository) WithTx(tx *bun.Tx) IWebhookRepository {
	return &WebhookRepository{db: tx}
}

func (r *WebhookRepository) WithDB(db *bun.DB) IWebhookRepository {
	return &WebhookRepository{db: db}
}
