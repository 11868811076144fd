package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// ReviewerService resolves the effective reviewers of a scope by expanding
// reviewer groups into their members.
type ReviewerService struct {
	store     driven.PolicyStore
	directory driven.Directory
	logger    *slog.Logger
}

// NewReviewerService creates a ReviewerService.
func NewReviewerService(store driven.PolicyStore, directory driven.Directory, logger *slog.Logger) *ReviewerService {
	return &ReviewerService{store: store, directory: directory, logger: logger}
}

// Resolve returns the required review count plus the required and default
// reviewers of scope. Group members come first, then explicit users; each
// user appears once and unknown names are dropped.
func (s *ReviewerService) Resolve(ctx context.Context, scope model.ScopeKey) (model.ReviewerSummary, error) {
	policy, err := s.store.Load(ctx, scope)
	if err != nil {
		return model.ReviewerSummary{}, fmt.Errorf("load policy for %s: %w", scope, err)
	}

	required, err := s.expand(ctx, policy.RequiredReviewerGroups, policy.RequiredReviewers)
	if err != nil {
		return model.ReviewerSummary{}, err
	}

	defaults, err := s.expand(ctx, policy.DefaultReviewerGroups, policy.DefaultReviewers)
	if err != nil {
		return model.ReviewerSummary{}, err
	}

	return model.ReviewerSummary{
		RequiredReviews:   policy.RequiredReviews,
		RequiredReviewers: required,
		DefaultReviewers:  defaults,
	}, nil
}

func (s *ReviewerService) expand(ctx context.Context, groups, users []string) ([]model.User, error) {
	var names []string
	for _, group := range groups {
		members, err := s.directory.GroupMembers(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", group, err)
		}
		names = append(names, members...)
	}
	names = append(names, users...)

	seen := make(map[string]struct{}, len(names))
	out := []model.User{}
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		user, err := s.directory.LookupUser(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("lookup user %s: %w", name, err)
		}
		if user == nil {
			s.logger.Debug("dropping unknown reviewer", "name", name)
			continue
		}
		out = append(out, *user)
	}
	return out, nil
}
