package model

// User is a platform account as returned by a directory search.
type User struct {
	Name         string // Canonical identifier (Bitbucket user slug, GitHub login).
	DisplayName  string
	EmailAddress string
}

// ReviewerSummary is the resolved reviewer view of a policy: group
// memberships expanded to users and merged with the explicit user lists.
type ReviewerSummary struct {
	RequiredReviews   int
	RequiredReviewers []User
	DefaultReviewers  []User
}
