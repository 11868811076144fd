package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/prharmony/internal/application"
	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// mockDirectory is an in-memory Directory.
type mockDirectory struct {
	mu         sync.Mutex
	users      map[string]model.User
	groups     map[string][]string
	searchErr  error
	lookups    []string
	userSearch []string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		users: map[string]model.User{
			"alice": {Name: "alice", DisplayName: "Alice Liddell", EmailAddress: "alice@example.com"},
			"bob":   {Name: "bob", DisplayName: "Bob Builder"},
			"carol": {Name: "carol", DisplayName: "Carol Danvers", EmailAddress: "carol@example.com"},
		},
		groups: map[string][]string{
			"core":  {"bob", "alice"},
			"ops":   {"carol", "ghost"},
			"empty": {},
		},
	}
}

func (d *mockDirectory) SearchUsers(_ context.Context, filter string) ([]model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userSearch = append(d.userSearch, filter)
	if d.searchErr != nil {
		return nil, d.searchErr
	}
	var out []model.User
	for _, name := range []string{"alice", "bob", "carol"} {
		if name[:1] == filter[:1] {
			out = append(out, d.users[name])
		}
	}
	return out, nil
}

func (d *mockDirectory) SearchGroups(_ context.Context, filter string) ([]string, error) {
	if d.searchErr != nil {
		return nil, d.searchErr
	}
	var out []string
	for _, name := range []string{"core", "empty", "ops"} {
		if len(name) >= len(filter) && name[:len(filter)] == filter {
			out = append(out, name)
		}
	}
	return out, nil
}

func (d *mockDirectory) GroupMembers(_ context.Context, group string) ([]string, error) {
	members, ok := d.groups[group]
	if !ok {
		return nil, errors.New("no such group")
	}
	return members, nil
}

func (d *mockDirectory) LookupUser(_ context.Context, name string) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups = append(d.lookups, name)
	u, ok := d.users[name]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func TestDefaultLookupSettings(t *testing.T) {
	s := application.DefaultLookupSettings()
	assert.Equal(t, 2, s.MinimumQueryLength)
	assert.Equal(t, 250*time.Millisecond, s.QuietPeriod)
}

func TestUserLookup_SearchMapsUsers(t *testing.T) {
	u := application.NewUserLookup(newMockDirectory(), application.DefaultLookupSettings())

	assert.Equal(t, "user", u.Kind())
	got, err := u.Search(context.Background(), "al")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.SelectableEntity{
		ID:             "alice",
		PrimaryLabel:   "Alice Liddell",
		SecondaryLabel: "alice@example.com",
	}, got[0])
}

func TestUserLookup_Formatting(t *testing.T) {
	u := application.NewUserLookup(newMockDirectory(), application.DefaultLookupSettings())

	full := model.SelectableEntity{ID: "alice", PrimaryLabel: "Alice Liddell", SecondaryLabel: "alice@example.com"}
	assert.Equal(t, "Alice Liddell (alice@example.com)", u.FormatResult(full))
	assert.Equal(t, "alice", u.FormatSelection(full))

	assert.Equal(t, "Bob Builder", u.FormatResult(model.SelectableEntity{ID: "bob", PrimaryLabel: "Bob Builder"}))
	assert.Equal(t, "dave", u.FormatResult(model.EntityFromToken("dave")))
}

func TestUserLookup_SearchError(t *testing.T) {
	dir := newMockDirectory()
	dir.searchErr = errors.New("401 unauthorized")
	u := application.NewUserLookup(dir, application.DefaultLookupSettings())

	_, err := u.Search(context.Background(), "al")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 unauthorized")
}

func TestGroupLookup_IDEqualsLabel(t *testing.T) {
	g := application.NewGroupLookup(newMockDirectory(), application.LookupSettings{MinimumQueryLength: 1})

	assert.Equal(t, "group", g.Kind())
	assert.Equal(t, 1, g.MinimumQueryLength())
	assert.Zero(t, g.QuietPeriod())

	got, err := g.Search(context.Background(), "co")
	require.NoError(t, err)
	assert.Equal(t, []model.SelectableEntity{{ID: "core", PrimaryLabel: "core"}}, got)
	assert.Equal(t, "core", g.FormatResult(got[0]))
	assert.Equal(t, "core", g.FormatSelection(got[0]))
}

func TestGroupLookup_DrivesMultiSelectWithoutDebounce(t *testing.T) {
	g := application.NewGroupLookup(newMockDirectory(), application.LookupSettings{MinimumQueryLength: 1})
	ms := application.NewMultiSelect(g, "")
	t.Cleanup(ms.Close)

	ms.Type("o")
	snap := settle(t, ms)
	assert.Equal(t, "o", snap.Query)
	assert.Equal(t, []string{"ops"}, ids(snap.Suggestions))
}
