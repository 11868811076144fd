package model

import "fmt"

// PullRequestRef identifies a pull request on the host platform. For GitHub
// ProjectKey is the owner and RepoSlug the repository name.
type PullRequestRef struct {
	ProjectKey string
	RepoSlug   string
	ID         int
}

// String returns "project/repo#id".
func (r PullRequestRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.ProjectKey, r.RepoSlug, r.ID)
}

// MergeStatus is the outcome of a merge-eligibility recomputation.
type MergeStatus struct {
	CanMerge   bool
	Conflicted bool
	Vetoes     []string
}

// ApprovalRendered is emitted when the host platform renders its approval
// control for a pull request.
type ApprovalRendered struct {
	PullRequest PullRequestRef
}
