package bitbucket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MergeChecker = (*Client)(nil)

type mergeJSON struct {
	CanMerge   bool `json:"canMerge"`
	Conflicted bool `json:"conflicted"`
	Vetoes     []struct {
		SummaryMessage  string `json:"summaryMessage"`
		DetailedMessage string `json:"detailedMessage"`
	} `json:"vetoes"`
}

// Recompute runs the server's merge check for pr. Bitbucket evaluates every
// merge check, including policy hooks, on this request.
func (c *Client) Recompute(ctx context.Context, pr model.PullRequestRef) (model.MergeStatus, error) {
	path := fmt.Sprintf("/rest/api/1.0/projects/%s/repos/%s/pull-requests/%s/merge",
		url.PathEscape(pr.ProjectKey), url.PathEscape(pr.RepoSlug), strconv.Itoa(pr.ID))

	var m mergeJSON
	if err := c.getJSON(ctx, path, nil, &m); err != nil {
		return model.MergeStatus{}, fmt.Errorf("merge check for %s: %w", pr, err)
	}

	status := model.MergeStatus{
		CanMerge:   m.CanMerge,
		Conflicted: m.Conflicted,
		Vetoes:     make([]string, 0, len(m.Vetoes)),
	}
	for _, v := range m.Vetoes {
		msg := v.SummaryMessage
		if v.DetailedMessage != "" {
			msg += ": " + v.DetailedMessage
		}
		status.Vetoes = append(status.Vetoes, msg)
	}
	return status, nil
}
