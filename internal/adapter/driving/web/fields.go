package web

import (
	"sync"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

// Form names of the inputs that are not multi-select controls. List inputs
// use their PolicyField value.
const (
	fieldRequiredReviews        = "requiredReviews"
	fieldAutoUnapprove          = "autoUnapprove"
	fieldBlockByDefaultReviewer = "blockByDefaultReviewer"
)

var fieldLabels = map[string]string{
	fieldRequiredReviews:                      "Required approvals",
	string(model.FieldRequiredReviewers):      "Required reviewers",
	string(model.FieldRequiredReviewerGroups): "Required reviewer groups",
	string(model.FieldDefaultReviewers):       "Default reviewers",
	string(model.FieldDefaultReviewerGroups):  "Default reviewer groups",
	string(model.FieldExcludedUsers):          "Excluded users",
	string(model.FieldExcludedGroups):         "Excluded groups",
	string(model.FieldBlockedCommits):         "Blocked commits",
	string(model.FieldBlockedPRs):             "Blocked pull requests",
	string(model.FieldAutomergePRs):           "Auto-merge pull requests",
	string(model.FieldAutomergePRsFrom):       "Auto-merge from branches",
	fieldAutoUnapprove:                        "Auto-unapprove on change",
	fieldBlockByDefaultReviewer:               "Block until default reviewers approve",
}

// Help texts are markdown, rendered once.
var fieldHelpMarkdown = map[string]string{
	fieldRequiredReviews:                      "Number of approvals from **required reviewers** before a pull request can merge. `0` disables the check.",
	string(model.FieldRequiredReviewers):      "Users whose approval counts toward the required number.",
	string(model.FieldRequiredReviewerGroups): "Every member of these groups counts as a required reviewer.",
	string(model.FieldDefaultReviewers):       "Users added as reviewers to every new pull request.",
	string(model.FieldDefaultReviewerGroups):  "Groups whose members are added as reviewers to every new pull request.",
	string(model.FieldExcludedUsers):          "Users never added automatically, even when a group includes them.",
	string(model.FieldExcludedGroups):         "Members of these groups are never added automatically.",
	string(model.FieldBlockedCommits):         "Comma-separated commit hashes that may not be merged.",
	string(model.FieldBlockedPRs):             "Comma-separated pull request ids that may not be merged.",
	string(model.FieldAutomergePRs):           "Comma-separated pull request ids merged as soon as every check passes.",
	string(model.FieldAutomergePRsFrom):       "Source branch patterns, such as `release/.*`, whose pull requests merge automatically.",
	fieldAutoUnapprove:                        "Withdraw approvals when new commits are pushed.",
	fieldBlockByDefaultReviewer:               "Veto the merge until every default reviewer has approved.",
}

var (
	helpOnce sync.Once
	helpHTML map[string]string
)

func fieldLabel(f model.PolicyField) string {
	return fieldLabels[string(f)]
}

// fieldHelpHTML returns the sanitized help markup for a form field.
func fieldHelpHTML(name string) string {
	helpOnce.Do(func() {
		helpHTML = make(map[string]string, len(fieldHelpMarkdown))
		for k, md := range fieldHelpMarkdown {
			helpHTML[k] = RenderMarkdown(md)
		}
	})
	return helpHTML[name]
}
