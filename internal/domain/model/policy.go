package model

// FlagValue is a platform-defined switch value (for example "true" or
// "false"). The editor passes it through without interpreting it.
type FlagValue string

// Policy is the persisted set of review and merge rules for one scope.
// Sequence fields hold identifiers in the order the user entered them;
// duplicates are kept as-is.
type Policy struct {
	RequiredReviews        int
	RequiredReviewers      []string
	RequiredReviewerGroups []string
	DefaultReviewers       []string
	DefaultReviewerGroups  []string
	ExcludedUsers          []string
	ExcludedGroups         []string
	BlockedCommits         []string
	BlockedPRs             []string
	AutomergePRs           []string
	AutomergePRsFrom       []string
	AutoUnapprove          FlagValue
	BlockByDefaultReviewer FlagValue
}

// PolicyField names a sequence field of a Policy. Values match the wire keys.
type PolicyField string

const (
	FieldRequiredReviewers      PolicyField = "requiredReviewers"
	FieldRequiredReviewerGroups PolicyField = "requiredReviewerGroups"
	FieldDefaultReviewers       PolicyField = "defaultReviewers"
	FieldDefaultReviewerGroups  PolicyField = "defaultReviewerGroups"
	FieldExcludedUsers          PolicyField = "excludedUsers"
	FieldExcludedGroups         PolicyField = "excludedGroups"
	FieldBlockedCommits         PolicyField = "blockedCommits"
	FieldBlockedPRs             PolicyField = "blockedPRs"
	FieldAutomergePRs           PolicyField = "automergePRs"
	FieldAutomergePRsFrom       PolicyField = "automergePRsFrom"
)

// ListFields returns every sequence field in display order.
func ListFields() []PolicyField {
	return []PolicyField{
		FieldRequiredReviewers,
		FieldRequiredReviewerGroups,
		FieldDefaultReviewers,
		FieldDefaultReviewerGroups,
		FieldExcludedUsers,
		FieldExcludedGroups,
		FieldBlockedCommits,
		FieldBlockedPRs,
		FieldAutomergePRs,
		FieldAutomergePRsFrom,
	}
}

// NewPolicy returns an empty policy with non-nil sequences, which is what a
// never-configured scope looks like.
func NewPolicy() Policy {
	p := Policy{}
	for _, f := range ListFields() {
		p.SetList(f, []string{})
	}
	return p
}

// List returns the sequence stored under field, or nil for an unknown field.
func (p *Policy) List(field PolicyField) []string {
	if ptr := p.listPtr(field); ptr != nil {
		return *ptr
	}
	return nil
}

// SetList replaces the sequence stored under field. Unknown fields are ignored.
func (p *Policy) SetList(field PolicyField, values []string) {
	if ptr := p.listPtr(field); ptr != nil {
		*ptr = values
	}
}

func (p *Policy) listPtr(field PolicyField) *[]string {
	switch field {
	case FieldRequiredReviewers:
		return &p.RequiredReviewers
	case FieldRequiredReviewerGroups:
		return &p.RequiredReviewerGroups
	case FieldDefaultReviewers:
		return &p.DefaultReviewers
	case FieldDefaultReviewerGroups:
		return &p.DefaultReviewerGroups
	case FieldExcludedUsers:
		return &p.ExcludedUsers
	case FieldExcludedGroups:
		return &p.ExcludedGroups
	case FieldBlockedCommits:
		return &p.BlockedCommits
	case FieldBlockedPRs:
		return &p.BlockedPRs
	case FieldAutomergePRs:
		return &p.AutomergePRs
	case FieldAutomergePRsFrom:
		return &p.AutomergePRsFrom
	default:
		return nil
	}
}
