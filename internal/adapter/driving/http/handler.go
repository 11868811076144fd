// Package httphandler is the REST driving adapter: the policy store
// resource, reviewer resolution, the merge gate hook and operational
// endpoints.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/prharmony/internal/application"
	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// APIPrefix is the path prefix of every policy resource.
const APIPrefix = "/rest/prharmony/1.0"

// maxPolicyBytes bounds a PUT body.
const maxPolicyBytes = 1 << 20

// ScopeLister lists configured scopes. Implemented by the SQLite policy repo.
type ScopeLister interface {
	ListScopes(ctx context.Context) ([]model.ScopeKey, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	store     driven.PolicyStore
	scopes    ScopeLister
	reviewers *application.ReviewerService
	bus       *application.EventBus
	health    *application.HealthService
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	store driven.PolicyStore,
	scopes ScopeLister,
	reviewers *application.ReviewerService,
	bus *application.EventBus,
	health *application.HealthService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		store:     store,
		scopes:    scopes,
		reviewers: reviewers,
		bus:       bus,
		health:    health,
		logger:    logger,
	}
}

// RegisterAPIRoutes registers every REST route on mux. metricsHandler may be nil.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler, metricsHandler http.Handler) {
	mux.HandleFunc("GET "+APIPrefix+"/config", h.ListScopes)
	mux.HandleFunc("GET "+APIPrefix+"/config/{projectKey}", h.GetPolicy)
	mux.HandleFunc("GET "+APIPrefix+"/config/{projectKey}/{$}", h.GetPolicy)
	mux.HandleFunc("GET "+APIPrefix+"/config/{projectKey}/{repoSlug}", h.GetPolicy)
	mux.HandleFunc("PUT "+APIPrefix+"/config/{projectKey}", h.PutPolicy)
	mux.HandleFunc("PUT "+APIPrefix+"/config/{projectKey}/{$}", h.PutPolicy)
	mux.HandleFunc("PUT "+APIPrefix+"/config/{projectKey}/{repoSlug}", h.PutPolicy)
	mux.HandleFunc("GET "+APIPrefix+"/users/{projectKey}/{repoSlug}", h.GetReviewers)
	mux.HandleFunc("POST "+APIPrefix+"/hooks/approval-rendered", h.ApprovalRendered)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

// scopeFromPath builds the scope from the projectKey and optional repoSlug
// path values. An empty repoSlug means project-wide.
func scopeFromPath(r *http.Request) (model.ScopeKey, error) {
	return model.NewScopeKey(r.PathValue("projectKey"), r.PathValue("repoSlug"))
}

// ListScopes returns every configured scope.
func (h *Handler) ListScopes(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.scopes.ListScopes(r.Context())
	if err != nil {
		h.logger.Error("failed to list scopes", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toScopeResponses(scopes))
}

// GetPolicy returns the policy document of a project or repository scope.
// An unconfigured scope yields the empty document.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy, err := h.store.Load(r.Context(), scope)
	if err != nil {
		h.logger.Error("failed to load policy", "scope", scope.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	doc, err := model.EncodePolicy(policy)
	if err != nil {
		h.logger.Error("failed to encode policy", "scope", scope.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeRawJSON(w, http.StatusOK, doc)
}

// PutPolicy replaces the policy document of a scope. Documents that could
// never allow a merge are rejected with 422.
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPolicyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	policy := model.DecodePolicy(body)
	if err := model.ValidatePolicy(policy); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.store.Save(r.Context(), scope, policy); err != nil {
		h.logger.Error("failed to save policy", "scope", scope.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("policy updated", "scope", scope.String())
	w.WriteHeader(http.StatusNoContent)
}

// GetReviewers returns the effective required and default reviewers of a
// repository, with groups expanded into their members.
func (h *Handler) GetReviewers(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.reviewers.Resolve(r.Context(), scope)
	if err != nil {
		h.logger.Error("failed to resolve reviewers", "scope", scope.String(), "error", err)
		writeError(w, http.StatusBadGateway, "failed to resolve reviewers")
		return
	}

	writeJSON(w, http.StatusOK, toReviewersResponse(summary))
}

// ApprovalRendered accepts the host's approval-control-rendered event and
// queues a merge check recomputation.
func (h *Handler) ApprovalRendered(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRenderedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.ProjectKey) == "" || strings.TrimSpace(req.RepoSlug) == "" || req.PullRequestID <= 0 {
		writeError(w, http.StatusBadRequest, "projectKey, repoSlug and pullRequestId are required")
		return
	}

	evt := model.ApprovalRendered{PullRequest: model.PullRequestRef{
		ProjectKey: req.ProjectKey,
		RepoSlug:   req.RepoSlug,
		ID:         req.PullRequestID,
	}}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.bus.Publish(ctx, evt); err != nil {
		switch {
		case errors.Is(err, application.ErrNoSubscribers):
			h.logger.Warn("approval event dropped, merge gate not running", "pull_request", evt.PullRequest.String())
			writeError(w, http.StatusServiceUnavailable, "merge gate is not running")
			return
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "merge gate is busy")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Health reports the status of every registered dependency check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status, code := "ok", http.StatusOK
	if !report.Healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:   status,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Checks:   report.Checked,
		Failures: report.Failures,
	})
}
