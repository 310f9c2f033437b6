package memorysvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/db/repository"
)

// Service exposes pipeline memory to the orchestrator: the accumulated design
// context a chain carries between renders.
type Service struct {
	memories repository.IMemoryRepository
}

func NewService(memories repository.IMemoryRepository) *Service {
	return &Service{memories: memories}
}

// GetContext returns the chain's memory payload as a map. A chain with no
// memory yet yields an empty map, never an error.
func (s *Service) GetContext(ctx context.Context, chainID string) (map[string]any, error) {
	memory, err := s.memories.GetByChainID(ctx, chainID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if len(memory.Payload) > 0 {
		if err := json.Unmarshal(memory.Payload, &payload); err != nil {
			return nil, fmt.Errorf("corrupt memory payload for chain %s: %w", chainID, err)
		}
	}

	return payload, nil
}

// Merge folds a delta into the chain's memory and returns the updated row.
func (s *Service) Merge(ctx context.Context, chainID string, delta map[string]any) (*models.PipelineMemory, error) {
	if len(delta) == 0 {
		return s.memories.GetByChainID(ctx, chainID)
	}

	return s.memories.Merge(ctx, chainID, delta)
}

// Clear drops the chain's memory entirely.
func (s *Service) Clear(ctx context.Context, chainID string) error {
	return s.memories.Clear(ctx, chainID)
}
