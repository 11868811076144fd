package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.LookupProvider = (*UserLookup)(nil)
	_ driven.LookupProvider = (*GroupLookup)(nil)
)

// Lookup defaults used when no explicit settings are configured.
const (
	defaultMinimumQueryLength = 2
	defaultQuietPeriod        = 250 * time.Millisecond
)

// LookupSettings holds the typing thresholds shared by all providers.
type LookupSettings struct {
	MinimumQueryLength int
	QuietPeriod        time.Duration
}

// DefaultLookupSettings returns a two-character minimum and a 250ms quiet period.
func DefaultLookupSettings() LookupSettings {
	return LookupSettings{
		MinimumQueryLength: defaultMinimumQueryLength,
		QuietPeriod:        defaultQuietPeriod,
	}
}

// UserLookup searches licensed user accounts. The selection value is the
// canonical user name.
type UserLookup struct {
	directory driven.Directory
	settings  LookupSettings
}

// NewUserLookup creates a user provider backed by directory.
func NewUserLookup(directory driven.Directory, settings LookupSettings) *UserLookup {
	return &UserLookup{directory: directory, settings: settings}
}

func (u *UserLookup) Kind() string               { return "user" }
func (u *UserLookup) MinimumQueryLength() int    { return u.settings.MinimumQueryLength }
func (u *UserLookup) QuietPeriod() time.Duration { return u.settings.QuietPeriod }

// Search matches query against names and email-like text.
func (u *UserLookup) Search(ctx context.Context, query string) ([]model.SelectableEntity, error) {
	users, err := u.directory.SearchUsers(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search users %q: %w", query, err)
	}

	out := make([]model.SelectableEntity, 0, len(users))
	for _, user := range users {
		out = append(out, model.SelectableEntity{
			ID:             user.Name,
			PrimaryLabel:   user.DisplayName,
			SecondaryLabel: user.EmailAddress,
		})
	}
	return out, nil
}

// FormatResult renders "Display Name (email)", falling back to the user name.
func (u *UserLookup) FormatResult(e model.SelectableEntity) string {
	label := e.PrimaryLabel
	if label == "" {
		label = e.ID
	}
	if e.SecondaryLabel == "" {
		return label
	}
	return label + " (" + e.SecondaryLabel + ")"
}

// FormatSelection renders the user name.
func (u *UserLookup) FormatSelection(e model.SelectableEntity) string {
	return e.ID
}

// GroupLookup searches groups by name prefix. Groups have no separate id:
// id and label are both the group name.
type GroupLookup struct {
	directory driven.Directory
	settings  LookupSettings
}

// NewGroupLookup creates a group provider backed by directory.
func NewGroupLookup(directory driven.Directory, settings LookupSettings) *GroupLookup {
	return &GroupLookup{directory: directory, settings: settings}
}

func (g *GroupLookup) Kind() string               { return "group" }
func (g *GroupLookup) MinimumQueryLength() int    { return g.settings.MinimumQueryLength }
func (g *GroupLookup) QuietPeriod() time.Duration { return g.settings.QuietPeriod }

// Search returns groups whose name starts with query.
func (g *GroupLookup) Search(ctx context.Context, query string) ([]model.SelectableEntity, error) {
	groups, err := g.directory.SearchGroups(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search groups %q: %w", query, err)
	}

	out := make([]model.SelectableEntity, 0, len(groups))
	for _, name := range groups {
		out = append(out, model.SelectableEntity{ID: name, PrimaryLabel: name})
	}
	return out, nil
}

func (g *GroupLookup) FormatResult(e model.SelectableEntity) string    { return g.label(e) }
func (g *GroupLookup) FormatSelection(e model.SelectableEntity) string { return g.label(e) }

func (g *GroupLookup) label(e model.SelectableEntity) string {
	if e.PrimaryLabel != "" {
		return e.PrimaryLabel
	}
	return e.ID
}
