package driven

import (
	"context"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// Directory defines the driven port for identity lookups on the host platform.
type Directory interface {
	// SearchUsers returns licensed accounts whose name, display name or email
	// partially matches filter.
	SearchUsers(ctx context.Context, filter string) ([]model.User, error)
	// SearchGroups returns group names starting with filter.
	SearchGroups(ctx context.Context, filter string) ([]string, error)
	// GroupMembers returns the user names belonging to group.
	GroupMembers(ctx context.Context, group string) ([]string, error)
	// LookupUser resolves a single user name. Returns (nil, nil) if unknown.
	LookupUser(ctx context.Context, name string) (*model.User, error)
}
