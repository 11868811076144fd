package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	writeRawJSON(w, status, data)
}

// writeRawJSON writes already-encoded JSON.
func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// UserResponse is the JSON representation of a reviewer.
type UserResponse struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// ReviewersResponse is the JSON representation of a scope's effective reviewers.
type ReviewersResponse struct {
	RequiredReviews   int            `json:"requiredReviews"`
	RequiredReviewers []UserResponse `json:"requiredReviewers"`
	DefaultReviewers  []UserResponse `json:"defaultReviewers"`
}

// ApprovalRenderedRequest is the JSON body of the approval-rendered hook.
type ApprovalRenderedRequest struct {
	ProjectKey    string `json:"projectKey"`
	RepoSlug      string `json:"repoSlug"`
	PullRequestID int    `json:"pullRequestId"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string            `json:"status"`
	Time     string            `json:"time"`
	Checks   []string          `json:"checks"`
	Failures map[string]string `json:"failures,omitempty"`
}

// ScopeResponse identifies a configured scope.
type ScopeResponse struct {
	ProjectKey string `json:"projectKey"`
	RepoSlug   string `json:"repoSlug,omitempty"`
}

func toUserResponses(users []model.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{
			Name:         u.Name,
			DisplayName:  u.DisplayName,
			EmailAddress: u.EmailAddress,
		})
	}
	return out
}

func toReviewersResponse(s model.ReviewerSummary) ReviewersResponse {
	return ReviewersResponse{
		RequiredReviews:   s.RequiredReviews,
		RequiredReviewers: toUserResponses(s.RequiredReviewers),
		DefaultReviewers:  toUserResponses(s.DefaultReviewers),
	}
}

func toScopeResponses(scopes []model.ScopeKey) []ScopeResponse {
	out := make([]ScopeResponse, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, ScopeResponse{ProjectKey: s.ProjectKey, RepoSlug: s.RepoSlug})
	}
	return out
}
