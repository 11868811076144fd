package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Directory = (*Client)(nil)

const (
	// suggestionLimit is the page size requested for search suggestions.
	suggestionLimit = 25
	memberPageSize  = 100
	// maxMemberPages bounds GroupMembers against a server that never
	// reports a last page.
	maxMemberPages = 500
)

// userJSON is a Bitbucket user as returned by the users endpoints.
type userJSON struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

func (u userJSON) toModel() model.User {
	display := u.DisplayName
	if display == "" {
		display = u.Name
	}
	return model.User{Name: u.Name, DisplayName: display, EmailAddress: u.EmailAddress}
}

// SearchUsers returns licensed users whose name, display name or email
// matches filter. Only the first page of suggestions is fetched.
func (c *Client) SearchUsers(ctx context.Context, filter string) ([]model.User, error) {
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("permission.1", "LICENSED_USER")
	q.Set("avatarSize", "32")
	q.Set("start", "0")
	q.Set("limit", strconv.Itoa(suggestionLimit))

	var p page[userJSON]
	if err := c.getJSON(ctx, "/rest/api/1.0/users", q, &p); err != nil {
		return nil, fmt.Errorf("search users %q: %w", filter, err)
	}

	users := make([]model.User, 0, len(p.Values))
	for _, u := range p.Values {
		users = append(users, u.toModel())
	}
	return users, nil
}

// SearchGroups returns group names matching filter.
func (c *Client) SearchGroups(ctx context.Context, filter string) ([]string, error) {
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("limit", strconv.Itoa(suggestionLimit))

	var p page[string]
	if err := c.getJSON(ctx, "/rest/api/1.0/groups", q, &p); err != nil {
		return nil, fmt.Errorf("search groups %q: %w", filter, err)
	}

	groups := make([]string, 0, len(p.Values))
	groups = append(groups, p.Values...)
	return groups, nil
}

// GroupMembers returns every member of group, following pagination.
func (c *Client) GroupMembers(ctx context.Context, group string) ([]string, error) {
	members := []string{}
	start := 0

	for pages := 0; ; pages++ {
		if pages == maxMemberPages {
			return nil, fmt.Errorf("list members of %s: more than %d pages: %w", group, maxMemberPages, ErrPagingStalled)
		}

		q := url.Values{}
		q.Set("context", group)
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(memberPageSize))

		var p page[userJSON]
		if err := c.getJSON(ctx, "/rest/api/1.0/admin/groups/more-members", q, &p); err != nil {
			return nil, fmt.Errorf("list members of %s (start %d): %w", group, start, err)
		}
		for _, u := range p.Values {
			members = append(members, u.Name)
		}

		if p.IsLastPage || len(p.Values) == 0 {
			break
		}
		if p.NextPageStart <= start {
			return nil, fmt.Errorf("list members of %s (start %d, next %d): %w", group, start, p.NextPageStart, ErrPagingStalled)
		}
		start = p.NextPageStart
	}
	return members, nil
}

// LookupUser fetches a user by name. Returns (nil, nil) if the user does not exist.
func (c *Client) LookupUser(ctx context.Context, name string) (*model.User, error) {
	var u userJSON
	err := c.getJSON(ctx, "/rest/api/1.0/users/"+url.PathEscape(name), nil, &u)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", name, err)
	}

	user := u.toModel()
	return &user, nil
}
