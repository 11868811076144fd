// Package viewmodel defines presentation-ready structs for the editor views.
// View models decouple rendering from application and domain types.
package viewmodel

// EditorViewModel is everything the policy editor page renders.
type EditorViewModel struct {
	Title      string
	ScopeLabel string
	State      string
	// Error is shown above the form, e.g. a validation or save failure.
	Error string
	// Notice is a non-error status line such as "Saved".
	Notice    string
	SubmitURL string
	ReloadURL string
	// LoadFailed hides the form and shows only the retry action.
	LoadFailed bool

	RequiredReviews TextFieldViewModel
	Controls        []ControlViewModel
	Lists           []TextFieldViewModel
	Flags           []FlagViewModel
}

// TextFieldViewModel is a plain text input.
type TextFieldViewModel struct {
	Name     string
	Label    string
	Value    string
	HelpHTML string
}

// FlagViewModel is a select for a platform switch value.
type FlagViewModel struct {
	Name     string
	Label    string
	Value    string
	Options  []string
	HelpHTML string
}

// ControlViewModel is one searchable multi-select.
type ControlViewModel struct {
	Field    string
	Label    string
	Kind     string
	HelpHTML string
	// DOMID is the id of the element swapped by fragment responses.
	DOMID       string
	Text        string
	Tags        []TagViewModel
	Query       string
	Suggestions []SuggestionViewModel
	LookupError string
	Searching   bool
	SuggestURL  string
	TagsURL     string
}

// TagViewModel is one selected entity.
type TagViewModel struct {
	ID        string
	Label     string
	RemoveURL string
}

// SuggestionViewModel is one lookup result offered for selection.
type SuggestionViewModel struct {
	ID             string
	Label          string
	PrimaryLabel   string
	SecondaryLabel string
}
