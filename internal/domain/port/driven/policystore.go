package driven

import (
	"context"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// PolicyStore defines the driven port for loading and persisting policy
// documents by scope. Save replaces the stored document wholesale.
// Load returns model.NewPolicy() for a scope that was never configured.
type PolicyStore interface {
	Load(ctx context.Context, scope model.ScopeKey) (model.Policy, error)
	Save(ctx context.Context, scope model.ScopeKey, policy model.Policy) error
}
