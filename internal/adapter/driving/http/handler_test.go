package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/prharmony/internal/adapter/driving/http"
	"github.com/ericfisherdev/prharmony/internal/application"
	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// --- Mock implementations ---

type mockStore struct {
	mu       sync.Mutex
	policies map[model.ScopeKey]model.Policy
	loadErr  error
	saveErr  error
	saves    int
}

func newMockStore() *mockStore {
	return &mockStore{policies: make(map[model.ScopeKey]model.Policy)}
}

func (m *mockStore) Load(_ context.Context, scope model.ScopeKey) (model.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return model.Policy{}, m.loadErr
	}
	if p, ok := m.policies[scope]; ok {
		return p, nil
	}
	return model.NewPolicy(), nil
}

func (m *mockStore) Save(_ context.Context, scope model.ScopeKey, p model.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.policies[scope] = p
	return nil
}

func (m *mockStore) ListScopes(_ context.Context) ([]model.ScopeKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ScopeKey{}
	for s := range m.policies {
		out = append(out, s)
	}
	return out, nil
}

type mockDirectory struct{}

func (mockDirectory) SearchUsers(context.Context, string) ([]model.User, error) { return nil, nil }
func (mockDirectory) SearchGroups(context.Context, string) ([]string, error)    { return nil, nil }
func (mockDirectory) GroupMembers(_ context.Context, group string) ([]string, error) {
	if group == "core" {
		return []string{"bob"}, nil
	}
	return nil, errors.New("group lookup failed")
}
func (mockDirectory) LookupUser(_ context.Context, name string) (*model.User, error) {
	return &model.User{Name: name, DisplayName: strings.ToUpper(name)}, nil
}

type recordingMetrics struct {
	mu     sync.Mutex
	routes []string
}

func (m *recordingMetrics) ObserveLookup(string, string) {}
func (m *recordingMetrics) ObserveSave(string)           {}
func (m *recordingMetrics) ObserveMergeCheck(string)     {}
func (m *recordingMetrics) ObserveRequest(method, route, status string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, method+" "+route+" "+status)
}

// --- Helpers ---

type testEnv struct {
	store   *mockStore
	bus     *application.EventBus
	health  *application.HealthService
	metrics *recordingMetrics
	handler http.Handler
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   newMockStore(),
		bus:     application.NewEventBus(),
		health:  application.NewHealthService(time.Second),
		metrics: &recordingMetrics{},
	}

	reviewers := application.NewReviewerService(env.store, mockDirectory{}, slog.Default())
	h := httphandler.NewHandler(env.store, env.store, reviewers, env.bus, env.health, slog.Default())

	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, h, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	}))
	env.handler = httphandler.ApplyMiddleware(mux, slog.Default(), env.metrics)
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

// --- Tests ---

func TestGetPolicy_UnconfiguredScopeReturnsEmptyDocument(t *testing.T) {
	env := setup(t)

	rec := env.do(http.MethodGet, "/rest/prharmony/1.0/config/PROJ/repo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	decodeJSON(t, rec, &doc)
	assert.Equal(t, float64(0), doc["requiredReviews"])
	assert.Equal(t, []any{}, doc["requiredReviewers"])
	assert.NotContains(t, doc, "autoUnapprove")
}

func TestPutPolicy_ThenGet(t *testing.T) {
	env := setup(t)

	rec := env.do(http.MethodPut, "/rest/prharmony/1.0/config/PROJ/repo",
		`{"requiredReviews":1,"requiredReviewers":["alice"],"blockedPRs":"feature/x, hotfix/y","autoUnapprove":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/rest/prharmony/1.0/config/PROJ/repo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	decodeJSON(t, rec, &doc)
	assert.Equal(t, []any{"alice"}, doc["requiredReviewers"])
	assert.Equal(t, []any{"feature/x", "hotfix/y"}, doc["blockedPRs"])
	assert.Equal(t, true, doc["autoUnapprove"])
}

func TestPolicyScopeRoutes(t *testing.T) {
	env := setup(t)

	for _, target := range []string{
		"/rest/prharmony/1.0/config/PROJ",
		"/rest/prharmony/1.0/config/PROJ/",
	} {
		t.Run(target, func(t *testing.T) {
			rec := env.do(http.MethodPut, target, `{"excludedUsers":["ci-bot"]}`)
			require.Equal(t, http.StatusNoContent, rec.Code)

			project, _ := model.NewScopeKey("PROJ", "")
			p, err := env.store.Load(context.Background(), project)
			require.NoError(t, err)
			assert.Equal(t, []string{"ci-bot"}, p.ExcludedUsers)
		})
	}

	// Project and repository scopes are independent.
	repo, _ := model.NewScopeKey("PROJ", "repo")
	p, err := env.store.Load(context.Background(), repo)
	require.NoError(t, err)
	assert.Empty(t, p.ExcludedUsers)
}

func TestPutPolicy_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed json",
			body:       `{"requiredReviews":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "unsatisfiable",
			body:       `{"requiredReviews":2,"requiredReviewers":["u1"],"requiredReviewerGroups":[]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "please add required reviewers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)

			rec := env.do(http.MethodPut, "/rest/prharmony/1.0/config/PROJ/repo", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]string
			decodeJSON(t, rec, &resp)
			assert.Contains(t, resp["error"], tt.wantError)
			assert.Equal(t, 0, env.store.saves)
		})
	}
}

func TestPolicy_StoreErrors(t *testing.T) {
	env := setup(t)
	env.store.loadErr = errors.New("disk I/O error")
	env.store.saveErr = errors.New("database is locked")

	rec := env.do(http.MethodGet, "/rest/prharmony/1.0/config/PROJ/repo", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = env.do(http.MethodPut, "/rest/prharmony/1.0/config/PROJ/repo", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}

func TestListScopes(t *testing.T) {
	env := setup(t)
	require.Equal(t, http.StatusNoContent, env.do(http.MethodPut, "/rest/prharmony/1.0/config/PROJ/repo", `{}`).Code)

	rec := env.do(http.MethodGet, "/rest/prharmony/1.0/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var scopes []map[string]string
	decodeJSON(t, rec, &scopes)
	assert.Equal(t, []map[string]string{{"projectKey": "PROJ", "repoSlug": "repo"}}, scopes)
}

func TestGetReviewers(t *testing.T) {
	env := setup(t)

	scope, _ := model.NewScopeKey("PROJ", "repo")
	p := model.NewPolicy()
	p.RequiredReviews = 1
	p.RequiredReviewerGroups = []string{"core"}
	p.RequiredReviewers = []string{"alice", "bob"}
	require.NoError(t, env.store.Save(context.Background(), scope, p))

	rec := env.do(http.MethodGet, "/rest/prharmony/1.0/users/PROJ/repo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httphandler.ReviewersResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 1, resp.RequiredReviews)
	assert.Equal(t, []httphandler.UserResponse{
		{Name: "bob", DisplayName: "BOB"},
		{Name: "alice", DisplayName: "ALICE"},
	}, resp.RequiredReviewers)
	assert.Equal(t, []httphandler.UserResponse{}, resp.DefaultReviewers)
}

func TestGetReviewers_DirectoryFailure(t *testing.T) {
	env := setup(t)

	scope, _ := model.NewScopeKey("PROJ", "repo")
	p := model.NewPolicy()
	p.DefaultReviewerGroups = []string{"missing"}
	require.NoError(t, env.store.Save(context.Background(), scope, p))

	rec := env.do(http.MethodGet, "/rest/prharmony/1.0/users/PROJ/repo", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestApprovalRendered_PublishesEvent(t *testing.T) {
	env := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events := env.bus.Subscribe(ctx)

	rec := env.do(http.MethodPost, "/rest/prharmony/1.0/hooks/approval-rendered",
		`{"projectKey":"PROJ","repoSlug":"repo","pullRequestId":7}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case evt := <-events:
		assert.Equal(t, model.PullRequestRef{ProjectKey: "PROJ", RepoSlug: "repo", ID: 7}, evt.PullRequest)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestApprovalRendered_NoSubscriberIsUnavailable(t *testing.T) {
	env := setup(t)
	require.Equal(t, 0, env.bus.Subscribers())

	rec := env.do(http.MethodPost, "/rest/prharmony/1.0/hooks/approval-rendered",
		`{"projectKey":"PROJ","repoSlug":"repo","pullRequestId":7}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "merge gate is not running")
}

func TestApprovalRendered_Validation(t *testing.T) {
	env := setup(t)

	for _, body := range []string{
		`not json`,
		`{"projectKey":"PROJ","repoSlug":"repo"}`,
		`{"projectKey":" ","repoSlug":"repo","pullRequestId":1}`,
	} {
		rec := env.do(http.MethodPost, "/rest/prharmony/1.0/hooks/approval-rendered", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHealth(t *testing.T) {
	env := setup(t)
	env.health.Register("database", func(context.Context) error { return nil })

	rec := env.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["time"])
	assert.Equal(t, []any{"database"}, resp["checks"])
}

func TestHealth_Degraded(t *testing.T) {
	env := setup(t)
	env.health.Register("platform", func(context.Context) error { return errors.New("401 unauthorized") })

	rec := env.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp httphandler.HealthResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]string{"platform": "401 unauthorized"}, resp.Failures)
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	env := setup(t)

	env.do(http.MethodGet, "/rest/prharmony/1.0/config/PROJ/repo", "")
	env.do(http.MethodGet, "/metrics", "")
	env.do(http.MethodGet, "/nope", "")

	env.metrics.mu.Lock()
	defer env.metrics.mu.Unlock()
	assert.Equal(t, []string{
		"GET GET /rest/prharmony/1.0/config/{projectKey}/{repoSlug} 200",
		"GET GET /metrics 200",
		"GET unmatched 404",
	}, env.metrics.routes)
}

func TestRecoveryMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	handler := httphandler.ApplyMiddleware(mux, slog.Default(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}
