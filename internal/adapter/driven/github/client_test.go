package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/prharmony/internal/adapter/driven/github"
	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler, token string) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/", "acme", token)
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func directoryMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/acme/members", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"login": "alice"},
			{"login": "Malice"},
			{"login": "bob"},
		})
	})
	mux.HandleFunc("GET /users/{login}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("login") {
		case "alice":
			writeJSON(t, w, map[string]any{"login": "alice", "name": "Alice Liddell", "email": "alice@example.com"})
		case "Malice":
			writeJSON(t, w, map[string]any{"login": "Malice"})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(t, w, map[string]any{"message": "Not Found"})
		}
	})
	mux.HandleFunc("GET /orgs/acme/teams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"slug": "core"},
			{"slug": "core-infra"},
			{"slug": "docs"},
		})
	})
	mux.HandleFunc("GET /orgs/acme/teams/core/members", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{{"login": "bob"}, {"login": "alice"}})
	})
	return mux
}

func TestSearchUsers_FiltersMembersAndExpandsProfiles(t *testing.T) {
	client := newTestClient(t, directoryMux(t), "test-token")

	users, err := client.SearchUsers(context.Background(), "ALI")
	require.NoError(t, err)
	assert.Equal(t, []model.User{
		{Name: "alice", DisplayName: "Alice Liddell", EmailAddress: "alice@example.com"},
		{Name: "Malice", DisplayName: "Malice"},
	}, users)
}

func TestSearchGroups_PrefixMatchOnSlug(t *testing.T) {
	client := newTestClient(t, directoryMux(t), "test-token")

	groups, err := client.SearchGroups(context.Background(), "co")
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "core-infra"}, groups)

	none, err := client.SearchGroups(context.Background(), "zz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGroupMembers(t *testing.T) {
	client := newTestClient(t, directoryMux(t), "test-token")

	members, err := client.GroupMembers(context.Background(), "core")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, members)
}

func TestLookupUser_NotFoundIsNil(t *testing.T) {
	client := newTestClient(t, directoryMux(t), "test-token")

	u, err := client.LookupUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSearchUsers_PropagatesAPIErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(t, w, map[string]any{"message": "Resource not accessible"})
	}), "test-token")

	_, err := client.SearchUsers(context.Background(), "al")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing members of acme")
}

func TestRecompute_GraphQL(t *testing.T) {
	tests := []struct {
		name       string
		state      map[string]any
		wantStatus model.MergeStatus
	}{
		{
			name:       "clean and approved",
			state:      map[string]any{"mergeable": "MERGEABLE", "mergeStateStatus": "CLEAN", "reviewDecision": "APPROVED"},
			wantStatus: model.MergeStatus{CanMerge: true, Vetoes: []string{}},
		},
		{
			name:  "blocked pending review",
			state: map[string]any{"mergeable": "MERGEABLE", "mergeStateStatus": "BLOCKED", "reviewDecision": "REVIEW_REQUIRED"},
			wantStatus: model.MergeStatus{
				Vetoes: []string{"blocked by branch protection", "review required"},
			},
		},
		{
			name:       "conflicting",
			state:      map[string]any{"mergeable": "CONFLICTING", "mergeStateStatus": "DIRTY"},
			wantStatus: model.MergeStatus{Conflicted: true, Vetoes: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/graphql", r.URL.Path)
				assert.Equal(t, "bearer test-token", r.Header.Get("Authorization"))

				var req struct {
					Variables map[string]any `json:"variables"`
				}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "acme", req.Variables["owner"])
				assert.Equal(t, "widgets", req.Variables["repo"])
				assert.Equal(t, float64(12), req.Variables["pr"])

				writeJSON(t, w, map[string]any{
					"data": map[string]any{
						"repository": map[string]any{"pullRequest": tt.state},
					},
				})
			}), "test-token")

			status, err := client.Recompute(context.Background(), model.PullRequestRef{ProjectKey: "acme", RepoSlug: "widgets", ID: 12})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestRecompute_GraphQLErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"errors": []map[string]any{{"message": "Could not resolve to a Repository"}},
		})
	}), "test-token")

	_, err := client.Recompute(context.Background(), model.PullRequestRef{ProjectKey: "acme", RepoSlug: "gone", ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not resolve to a Repository")
}

func TestRecompute_RESTWithoutToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls/3", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{
			"number":          3,
			"mergeable":       true,
			"mergeable_state": "behind",
		})
	}), "")

	status, err := client.Recompute(context.Background(), model.PullRequestRef{ProjectKey: "acme", RepoSlug: "widgets", ID: 3})
	require.NoError(t, err)
	assert.Equal(t, model.MergeStatus{Vetoes: []string{"head branch is behind the base branch"}}, status)
}

func TestAuthenticated(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		writeJSON(t, w, map[string]any{"login": "policy-bot"})
	}), "test-token")

	login, err := client.Authenticated(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "policy-bot", login)
	assert.Equal(t, "acme", client.Org())
}
