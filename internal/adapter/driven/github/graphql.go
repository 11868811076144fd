package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MergeChecker = (*Client)(nil)

// graphqlHTTPClient is the HTTP client used for GraphQL requests.
// It enforces a 30-second timeout alongside context cancellation.
var graphqlHTTPClient = &http.Client{Timeout: 30 * time.Second}

const mergeStateQuery = `query($owner: String!, $repo: String!, $pr: Int!) {
	repository(owner: $owner, name: $repo) {
		pullRequest(number: $pr) {
			mergeable
			mergeStateStatus
			reviewDecision
		}
	}
}`

// graphqlRequest is the JSON body sent to the GitHub GraphQL API.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// mergeStateResponse is the shape of the merge state query response.
type mergeStateResponse struct {
	Data struct {
		Repository struct {
			PullRequest *struct {
				Mergeable        string `json:"mergeable"`
				MergeStateStatus string `json:"mergeStateStatus"`
				ReviewDecision   string `json:"reviewDecision"`
			} `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Recompute asks GitHub for the pull request's current merge state. The
// project key is the repository owner and the repo slug the repository name.
// GraphQL is used when a token is configured since it exposes the review
// decision; otherwise the REST pull request endpoint is used.
func (c *Client) Recompute(ctx context.Context, pr model.PullRequestRef) (model.MergeStatus, error) {
	if c.token == "" {
		return c.recomputeREST(ctx, pr)
	}

	reqBody := graphqlRequest{
		Query: mergeStateQuery,
		Variables: map[string]any{
			"owner": pr.ProjectKey,
			"repo":  pr.RepoSlug,
			"pr":    pr.ID,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return model.MergeStatus{}, fmt.Errorf("marshaling merge state query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return model.MergeStatus{}, fmt.Errorf("creating merge state request: %w", err)
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("bearer %s", c.token))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := graphqlHTTPClient.Do(httpReq)
	if err != nil {
		return model.MergeStatus{}, fmt.Errorf("merge state query for %s: %w", pr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return model.MergeStatus{}, fmt.Errorf("merge state query for %s: HTTP %d", pr, resp.StatusCode)
	}

	var gqlResp mergeStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return model.MergeStatus{}, fmt.Errorf("decoding merge state for %s: %w", pr, err)
	}
	if len(gqlResp.Errors) > 0 {
		return model.MergeStatus{}, fmt.Errorf("merge state query for %s: %s", pr, gqlResp.Errors[0].Message)
	}

	state := gqlResp.Data.Repository.PullRequest
	if state == nil {
		return model.MergeStatus{}, fmt.Errorf("merge state query for %s: pull request not found", pr)
	}

	return mergeStatus(state.Mergeable == "CONFLICTING", state.MergeStateStatus, state.ReviewDecision), nil
}

func (c *Client) recomputeREST(ctx context.Context, pr model.PullRequestRef) (model.MergeStatus, error) {
	p, resp, err := c.gh.PullRequests.Get(ctx, pr.ProjectKey, pr.RepoSlug, pr.ID)
	if err != nil {
		return model.MergeStatus{}, fmt.Errorf("fetching pull request %s: %w", pr, err)
	}
	logRateLimit(resp, pr.String(), 0, 1)

	conflicted := p.Mergeable != nil && !p.GetMergeable()
	return mergeStatus(conflicted, strings.ToUpper(p.GetMergeableState()), ""), nil
}

// mergeStatus maps GitHub's merge state status and review decision onto a
// MergeStatus. Only CLEAN, HAS_HOOKS and UNSTABLE allow merging.
func mergeStatus(conflicted bool, state, reviewDecision string) model.MergeStatus {
	status := model.MergeStatus{Conflicted: conflicted, Vetoes: []string{}}

	switch state {
	case "CLEAN", "HAS_HOOKS", "UNSTABLE":
		status.CanMerge = true
	case "BLOCKED":
		status.Vetoes = append(status.Vetoes, "blocked by branch protection")
	case "BEHIND":
		status.Vetoes = append(status.Vetoes, "head branch is behind the base branch")
	case "DRAFT":
		status.Vetoes = append(status.Vetoes, "pull request is a draft")
	case "DIRTY":
		status.Conflicted = true
	}

	switch reviewDecision {
	case "REVIEW_REQUIRED":
		status.Vetoes = append(status.Vetoes, "review required")
	case "CHANGES_REQUESTED":
		status.Vetoes = append(status.Vetoes, "changes requested")
	}

	if status.Conflicted {
		status.CanMerge = false
	}
	return status
}
