package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/renderiq/render-server/internal/db/models"
	"github.com/uptrace/bun"
)

type IOutboxRepository interface {
	WithTx(tx *bun.Tx) IOutboxRepository
	WithDB(db *bun.DB) IOutboxRepository
	Enqueue(ctx context.Context, entry *models.NotificationOutbox) (*models.NotificationOutbox, error)
	ClaimQueued(ctx context.Context, limit int) ([]models.NotificationOutbox, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string) error
}

type OutboxRepository struct {
	db bun.IDB
}

func NewOutboxRepository(db *bun.DB) IOutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, entry *models.NotificationOutbox) (*models.NotificationOutbox, error) {
	if entry == nil {
		return nil, fmt.Errorf("outbox entry is nil")
	}

	if err := r.db.NewInsert().Model(entry).Returning("*").Scan(ctx); err != nil {
		return nil, err
	}

	return entry, nil
}

// reclaimAfter is how long a claimed entry may sit before it is treated as
// abandoned by a crashed worker and picked up again.
const reclaimAfter = 5 * time.Minute

// ClaimQueued moves up to limit entries oldest-first into the claimed state
// and bumps their attempt count, so overlapping drains do not dispatch the
// same entry twice. Stale claims are reclaimed, keeping delivery
// at-least-once.
func (r *OutboxRepository) ClaimQueued(ctx context.Context, limit int) ([]models.NotificationOutbox, error) {
	var entries []models.NotificationOutbox
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := claimSelectQuery(tx, &entries, limit, time.Now()).Scan(ctx); err != nil {
			return err
		}

		for i := range entries {
			entries[i].Attempts++
			entries[i].Status = models.OutboxStatusClaimed
			_, err := tx.NewUpdate().
				Model(&entries[i]).
				Where("id = ?", entries[i].ID).
				Set("status = ?", models.OutboxStatusClaimed).
				Set("attempts = ?", entries[i].Attempts).
				Set("updated_at = ?", time.Now()).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func claimSelectQuery(idb bun.IDB, entries *[]models.NotificationOutbox, limit int, now time.Time) *bun.SelectQuery {
	return idb.NewSelect().
		Model(entries).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("status = ?", models.OutboxStatusQueued).
				WhereOr("status = ? AND updated_at < ?", models.OutboxStatusClaimed, now.Add(-reclaimAfter))
		}).
		Order("created_at ASC").
		Limit(limit)
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.OutboxStatusDelivered, true)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.OutboxStatusFailed, false)
}

func (r *OutboxRepository) Requeue(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.OutboxStatusQueued, false)
}

func (r *OutboxRepository) setStatus(ctx context.Context, id string, status models.OutboxStatus, delivered bool) error {
	q := r.db.NewUpdate().
		Model(&models.NotificationOutbox{}).
		Where("id = ?", id).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now())
	if delivered {
		q = q.Set("delivered_at = ?", time.Now())
	}

	_, err := q.Exec(ctx)
	return err
}

func (r *OutboxRepository) WithTx(tx *bun.Tx) IOutboxRepository {
	return &OutboxRepository{db: tx}
}

func (r *OutboxRepository) WithDB(db *bun.DB) IOutboxRepository {
	return &OutboxRepository{db: db}
}
