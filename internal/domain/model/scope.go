package model

import (
	"errors"
	"net/url"
	"strings"
)

// ErrMissingProjectKey is returned when a scope is built without a project.
var ErrMissingProjectKey = errors.New("project key is required")

// ScopeKey selects which Policy to load or save. An empty RepoSlug denotes
// the project-wide default.
type ScopeKey struct {
	ProjectKey string
	RepoSlug   string
}

// NewScopeKey validates and builds a ScopeKey.
func NewScopeKey(projectKey, repoSlug string) (ScopeKey, error) {
	projectKey = strings.TrimSpace(projectKey)
	if projectKey == "" {
		return ScopeKey{}, ErrMissingProjectKey
	}
	return ScopeKey{ProjectKey: projectKey, RepoSlug: strings.TrimSpace(repoSlug)}, nil
}

// IsProjectWide reports whether the scope addresses the project default.
func (s ScopeKey) IsProjectWide() bool {
	return s.RepoSlug == ""
}

// Path returns the escaped "project[/repo]" path suffix used by the store.
func (s ScopeKey) Path() string {
	if s.IsProjectWide() {
		return url.PathEscape(s.ProjectKey)
	}
	return url.PathEscape(s.ProjectKey) + "/" + url.PathEscape(s.RepoSlug)
}

// String returns a human-readable form for logs.
func (s ScopeKey) String() string {
	if s.IsProjectWide() {
		return s.ProjectKey
	}
	return s.ProjectKey + "/" + s.RepoSlug
}
