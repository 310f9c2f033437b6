package chainsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/db/repository"
	"github.com/uptrace/bun"
)

const defaultChainName = "Default Chain"

// Service owns chain membership: resolving which chain a render belongs to,
// creating default chains on first use, and inserting renders at the next
// gap-free position together with their notification intent.
type Service struct {
	db        *bun.DB
	renders   repository.IRenderRepository
	chains    repository.IChainRepository
	outbox    repository.IOutboxRepository
	allocator *Allocator
}

func NewService(db *bun.DB, renders repository.IRenderRepository, chains repository.IChainRepository, outbox repository.IOutboxRepository) *Service {
	return &Service{
		db:        db,
		renders:   renders,
		chains:    chains,
		outbox:    outbox,
		allocator: NewAllocator(),
	}
}

// GetOrCreateDefaultChain returns the project's default chain, creating it if
// this is the project's first render. Safe to call concurrently; the unique
// index on (project_id, is_default) collapses races to a single row.
func (s *Service) GetOrCreateDefaultChain(ctx context.Context, projectID uuid.UUID) (*models.Chain, error) {
	chain, err := s.chains.GetDefaultByProjectID(ctx, projectID.String())
	if err == nil {
		return chain, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up default chain: %w", err)
	}

	return s.chains.UpsertDefault(ctx, &models.Chain{
		ProjectID: projectID,
		Name:      defaultChainName,
	})
}

// ResolveChain returns the chain a request targets. An explicit chain id must
// exist and belong to the project; otherwise the project's default chain is
// used, created on demand.
func (s *Service) ResolveChain(ctx context.Context, projectID uuid.UUID, chainID string) (*models.Chain, error) {
	if chainID == "" {
		return s.GetOrCreateDefaultChain(ctx, projectID)
	}

	chain, err := s.chains.GetByID(ctx, chainID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chain %s not found", chainID)
		}
		return nil, err
	}

	if chain.ProjectID != projectID {
		return nil, fmt.Errorf("chain %s does not belong to project %s", chainID, projectID)
	}

	return chain, nil
}

// CreateRenderInChain assigns the render the next position in its chain and
// inserts it. The per-chain lock plus the in-transaction position read keep
// positions contiguous and collision-free under concurrent requests.
func (s *Service) CreateRenderInChain(ctx context.Context, render *models.Render) (*models.Render, error) {
	if render.ChainID == uuid.Nil {
		return nil, fmt.Errorf("render has no chain")
	}
	if render.ID == uuid.Nil {
		render.ID = uuid.Must(uuid.NewRandom())
	}

	unlock := s.allocator.Lock(render.ChainID.String())
	defer unlock()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		position, err := s.renders.WithTx(&tx).NextChainPosition(ctx, render.ChainID.String())
		if err != nil {
			return fmt.Errorf("failed to allocate chain position: %w", err)
		}
		render.ChainPosition = position

		if _, err := s.renders.WithTx(&tx).Create(ctx, render); err != nil {
			return fmt.Errorf("failed to insert render: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return render, nil
}

// UpdateRenderAndNotify persists a render state change atomically with its
// outbox entry, so a delivered notification always reflects a committed row.
func (s *Service) UpdateRenderAndNotify(ctx context.Context, render *models.Render, event string, data any) (*models.Render, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.renders.WithTx(&tx).UpdateByID(ctx, render.ID.String(), render); err != nil {
			return fmt.Errorf("failed to update render: %w", err)
		}

		entry, err := models.NewOutboxEntry(render.ID, event, data)
		if err != nil {
			return fmt.Errorf("failed to build outbox entry: %w", err)
		}
		if _, err := s.outbox.WithTx(&tx).Enqueue(ctx, entry); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return render, nil
}
