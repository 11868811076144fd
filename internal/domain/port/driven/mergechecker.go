package driven

import (
	"context"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// MergeChecker defines the driven port that asks the host platform to
// recompute a pull request's merge eligibility.
type MergeChecker interface {
	Recompute(ctx context.Context, pr model.PullRequestRef) (model.MergeStatus, error)
}
