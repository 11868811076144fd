package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// MergeGate re-runs the host's merge check whenever the host reports that its
// approval control was rendered. It keeps no state; a repeated event simply
// triggers another recomputation.
type MergeGate struct {
	bus     *EventBus
	checker driven.MergeChecker
	metrics driven.Metrics
	logger  *slog.Logger
}

// NewMergeGate creates a MergeGate. metrics may be nil.
func NewMergeGate(bus *EventBus, checker driven.MergeChecker, metrics driven.Metrics, logger *slog.Logger) *MergeGate {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &MergeGate{
		bus:     bus,
		checker: checker,
		metrics: metrics,
		logger:  logger,
	}
}

// Start subscribes to the bus and handles events until ctx is canceled.
func (g *MergeGate) Start(ctx context.Context) {
	events := g.bus.Subscribe(ctx)
	g.logger.Info("merge gate started")

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("merge gate stopped")
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			pr := evt.PullRequest
			status, err := g.checker.Recompute(ctx, pr)
			if err != nil {
				g.metrics.ObserveMergeCheck("error")
				g.logger.Error("merge check failed", "pull_request", pr.String(), "error", err)
				continue
			}
			g.metrics.ObserveMergeCheck("ok")
			g.logger.Info("merge check recomputed",
				"pull_request", pr.String(),
				"can_merge", status.CanMerge,
				"conflicted", status.Conflicted,
				"vetoes", len(status.Vetoes),
			)
		}
	}
}
