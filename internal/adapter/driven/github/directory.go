package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Directory = (*Client)(nil)

// maxUserMatches caps how many matching members are expanded with a profile
// request per search.
const maxUserMatches = 25

// SearchUsers returns organization members whose login partially matches
// filter, case-insensitively. Organization membership stands in for a
// licensed account.
func (c *Client) SearchUsers(ctx context.Context, filter string) ([]model.User, error) {
	needle := strings.ToLower(filter)
	opts := &gh.ListMembersOptions{ListOptions: gh.ListOptions{PerPage: 100}}

	var logins []string
	for len(logins) < maxUserMatches {
		members, resp, err := c.gh.Organizations.ListMembers(ctx, c.org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing members of %s (page %d): %w", c.org, opts.Page, err)
		}
		logRateLimit(resp, c.org+"/members", opts.Page, len(members))

		for _, m := range members {
			if strings.Contains(strings.ToLower(m.GetLogin()), needle) {
				logins = append(logins, m.GetLogin())
				if len(logins) == maxUserMatches {
					break
				}
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	users := make([]model.User, 0, len(logins))
	for _, login := range logins {
		u, err := c.LookupUser(ctx, login)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

// SearchGroups returns team slugs of the organization starting with filter.
func (c *Client) SearchGroups(ctx context.Context, filter string) ([]string, error) {
	prefix := strings.ToLower(filter)
	opts := &gh.ListOptions{PerPage: 100}

	groups := []string{}
	for {
		teams, resp, err := c.gh.Teams.ListTeams(ctx, c.org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing teams of %s (page %d): %w", c.org, opts.Page, err)
		}
		logRateLimit(resp, c.org+"/teams", opts.Page, len(teams))

		for _, team := range teams {
			if strings.HasPrefix(strings.ToLower(team.GetSlug()), prefix) {
				groups = append(groups, team.GetSlug())
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return groups, nil
}

// GroupMembers returns the logins of the team identified by slug.
func (c *Client) GroupMembers(ctx context.Context, group string) ([]string, error) {
	opts := &gh.TeamListTeamMembersOptions{ListOptions: gh.ListOptions{PerPage: 100}}

	members := []string{}
	for {
		users, resp, err := c.gh.Teams.ListTeamMembersBySlug(ctx, c.org, group, opts)
		if err != nil {
			return nil, fmt.Errorf("listing members of team %s/%s (page %d): %w", c.org, group, opts.Page, err)
		}
		logRateLimit(resp, c.org+"/teams/"+group+"/members", opts.Page, len(users))

		for _, u := range users {
			members = append(members, u.GetLogin())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return members, nil
}

// LookupUser fetches a user profile by login. Returns (nil, nil) on 404.
func (c *Client) LookupUser(ctx context.Context, name string) (*model.User, error) {
	u, resp, err := c.gh.Users.Get(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching user %s: %w", name, err)
	}
	logRateLimit(resp, "users/"+name, 0, 1)

	display := u.GetName()
	if display == "" {
		display = u.GetLogin()
	}

	return &model.User{
		Name:         u.GetLogin(),
		DisplayName:  display,
		EmailAddress: u.GetEmail(),
	}, nil
}
