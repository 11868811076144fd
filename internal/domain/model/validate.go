package model

import (
	"errors"
	"fmt"
)

// ErrUnsatisfiable is returned when a policy demands more approvals than its
// required reviewers can ever provide.
var ErrUnsatisfiable = errors.New("required reviews exceed required reviewers")

// ValidatePolicy checks the save-time invariant: with no required reviewer
// groups, the required review count may not exceed the number of required
// reviewers. It is the only client-side check; every other field is accepted
// as-is.
func ValidatePolicy(p Policy) error {
	if p.RequiredReviews > len(p.RequiredReviewers) && len(p.RequiredReviewerGroups) == 0 {
		return fmt.Errorf(
			"%w: %d reviews required but only %d required reviewers configured; "+
				"pull requests could never be merged, please add required reviewers",
			ErrUnsatisfiable, p.RequiredReviews, len(p.RequiredReviewers),
		)
	}
	return nil
}
