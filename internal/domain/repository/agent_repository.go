package repository

import (
	"context"

	"github.com/aria-ai/aria/internal/domain/entity"
)

// AgentRepository is the agents persistence port. Defined in the domain
// layer, implemented in the infrastructure layer.
type AgentRepository interface {
	// FindByID finds an agent by id.
	FindByID(ctx context.Context, id string) (*entity.Agent, error)

	// FindBySlug finds an agent by its unique slug.
	FindBySlug(ctx context.Context, slug string) (*entity.Agent, error)

	// FindDefault finds the agent with is_default=true.
	FindDefault(ctx context.Context) (*entity.Agent, error)

	// FindAll lists agents, newest first.
	FindAll(ctx context.Context) ([]entity.Agent, error)

	// Create inserts a new agent. A slug conflict is an AlreadyExists error.
	Create(ctx context.Context, agent *entity.Agent) error

	// Update applies a partial update and returns the updated agent.
	Update(ctx context.Context, id string, patch map[string]any) (*entity.Agent, error)

	// Delete removes an agent. Deleting the default agent is an error.
	Delete(ctx context.Context, id string) error
}
