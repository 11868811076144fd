// Package web implements the HTML policy editor driving adapter using templ
// components and htmx fragments.
package web

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/a-h/templ"

	"github.com/ericfisherdev/prharmony/internal/adapter/driving/web/templates/components"
	"github.com/ericfisherdev/prharmony/internal/adapter/driving/web/templates/pages"
	vm "github.com/ericfisherdev/prharmony/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/prharmony/internal/application"
	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

const (
	editorTitle          = "Merge policy"
	defaultSettleTimeout = 5 * time.Second
)

// textListFields are the list fields edited as plain comma text.
var textListFields = []model.PolicyField{
	model.FieldBlockedCommits,
	model.FieldBlockedPRs,
	model.FieldAutomergePRs,
	model.FieldAutomergePRsFrom,
}

// Handler serves the policy editor. Each page load opens an editor session
// held in the SessionRegistry; later requests address it by id.
type Handler struct {
	editor        *application.EditorService
	sessions      *SessionRegistry
	storeBaseURL  string
	settleTimeout time.Duration
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	editor *application.EditorService,
	sessions *SessionRegistry,
	storeBaseURL string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		editor:        editor,
		sessions:      sessions,
		storeBaseURL:  storeBaseURL,
		settleTimeout: defaultSettleTimeout,
		logger:        logger,
	}
}

// OpenEditor opens a session for the project or repository in the path and
// renders the full editor page. A failed load still renders, with a retry.
func (h *Handler) OpenEditor(w http.ResponseWriter, r *http.Request) {
	scope, err := model.NewScopeKey(r.PathValue("projectKey"), r.PathValue("repoSlug"))
	if err != nil {
		h.render(w, r, http.StatusBadRequest, pages.ErrorPage(editorTitle, err.Error()))
		return
	}

	csrfToken(w, r)

	sess, loadErr := h.editor.Open(r.Context(), application.EditorEnv{
		Scope:        scope,
		StoreBaseURL: h.storeBaseURL,
	})
	id := h.sessions.Add(sess)

	status := http.StatusOK
	if loadErr != nil {
		h.logger.Error("failed to load policy", "scope", scope.String(), "error", loadErr)
		status = http.StatusBadGateway
	}
	h.render(w, r, status, pages.EditorPage(h.editorViewModel(id, sess)))
}

// Suggest feeds the typed text to a control and renders its suggestions once
// the control settles. A control still searching after the settle timeout
// renders its in-progress state.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	id, ctl, ok := h.control(w, r)
	if !ok {
		return
	}
	field := model.PolicyField(r.PathValue("field"))

	ctl.Type(r.URL.Query().Get("q"))

	ctx, cancel := context.WithTimeout(r.Context(), h.settleTimeout)
	defer cancel()

	snap, err := ctl.Settle(ctx)
	switch {
	case errors.Is(err, application.ErrControlClosed):
		http.Error(w, "editor session was reset", http.StatusGone)
		return
	case err != nil:
		snap = ctl.Snapshot()
	}

	h.render(w, r, http.StatusOK, components.Suggestions(controlViewModel(id, field, ctl, snap)))
}

// AddTag selects a suggestion (id plus labels) or, on free-form controls,
// appends a typed token.
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	id, ctl, ok := h.control(w, r)
	if !ok {
		return
	}
	field := model.PolicyField(r.PathValue("field"))

	if entityID := r.PostFormValue("id"); entityID != "" {
		ctl.Select(model.SelectableEntity{
			ID:             entityID,
			PrimaryLabel:   r.PostFormValue("primary"),
			SecondaryLabel: r.PostFormValue("secondary"),
		})
	} else if err := ctl.AddToken(r.PostFormValue("token")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.render(w, r, http.StatusOK, components.Control(controlViewModel(id, field, ctl, ctl.Snapshot())))
}

// RemoveTag drops a selected tag and re-renders the control.
func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	id, ctl, ok := h.control(w, r)
	if !ok {
		return
	}
	field := model.PolicyField(r.PathValue("field"))

	ctl.Remove(r.PathValue("id"))
	h.render(w, r, http.StatusOK, components.Control(controlViewModel(id, field, ctl, ctl.Snapshot())))
}

// Submit validates and saves the form. On success the editor is re-rendered
// from the reloaded policy.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	sess, ok := h.sessions.Get(id)
	if !ok {
		http.Error(w, "editor session not found", http.StatusNotFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	err := sess.Submit(r.Context(), textFieldsFromForm(r))

	status := http.StatusOK
	m := h.editorViewModel(id, sess)
	switch {
	case err == nil:
		m.Notice = "Saved"
	case errors.Is(err, model.ErrUnsatisfiable):
		status = http.StatusUnprocessableEntity
		m.Error = err.Error()
	case errors.Is(err, application.ErrSaveInProgress), errors.Is(err, application.ErrNotLoaded):
		status = http.StatusConflict
		m.Error = err.Error()
	case errors.Is(err, application.ErrReloadFailed):
		h.logger.Error("policy reload after save failed", "session", id, "error", err)
		status = http.StatusBadGateway
		m.Notice = "Saved"
	default:
		h.logger.Error("policy save failed", "session", id, "error", err)
		status = http.StatusBadGateway
		m.Error = "Save failed: " + err.Error()
	}

	h.render(w, r, status, pages.Editor(m))
}

// Reload retries loading the policy, discarding any unsaved edits.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	sess, ok := h.sessions.Get(id)
	if !ok {
		http.Error(w, "editor session not found", http.StatusNotFound)
		return
	}

	status := http.StatusOK
	if err := sess.Load(r.Context()); err != nil {
		h.logger.Error("failed to reload policy", "session", id, "error", err)
		status = http.StatusBadGateway
		if errors.Is(err, application.ErrSaveInProgress) {
			status = http.StatusConflict
		}
	}
	h.render(w, r, status, pages.Editor(h.editorViewModel(id, sess)))
}

// control resolves the session and control named in the path, writing a 404
// when either is unknown.
func (h *Handler) control(w http.ResponseWriter, r *http.Request) (string, *application.MultiSelect, bool) {
	id := r.PathValue("session")
	sess, ok := h.sessions.Get(id)
	if !ok {
		http.Error(w, "editor session not found", http.StatusNotFound)
		return "", nil, false
	}

	ctl, ok := sess.Control(model.PolicyField(r.PathValue("field")))
	if !ok {
		http.Error(w, "unknown field", http.StatusNotFound)
		return "", nil, false
	}
	return id, ctl, true
}

// render buffers the component so a render failure can still produce a 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(r.Context(), &buf); err != nil {
		h.logger.Error("failed to render view", "path", r.URL.Path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func textFieldsFromForm(r *http.Request) application.TextFields {
	return application.TextFields{
		RequiredReviews:        r.PostFormValue(fieldRequiredReviews),
		BlockedCommits:         r.PostFormValue(string(model.FieldBlockedCommits)),
		BlockedPRs:             r.PostFormValue(string(model.FieldBlockedPRs)),
		AutomergePRs:           r.PostFormValue(string(model.FieldAutomergePRs)),
		AutomergePRsFrom:       r.PostFormValue(string(model.FieldAutomergePRsFrom)),
		AutoUnapprove:          model.FlagValue(r.PostFormValue(fieldAutoUnapprove)),
		BlockByDefaultReviewer: model.FlagValue(r.PostFormValue(fieldBlockByDefaultReviewer)),
	}
}

func (h *Handler) editorViewModel(id string, sess *application.EditorSession) vm.EditorViewModel {
	base := "/editor/" + url.PathEscape(id)
	state := sess.State()
	fields := sess.Fields()

	m := vm.EditorViewModel{
		Title:      editorTitle,
		ScopeLabel: scopeLabel(sess.Env().Scope),
		State:      state.String(),
		SubmitURL:  base + "/submit",
		ReloadURL:  base + "/reload",
		LoadFailed: state == application.EditorLoadFailed,
	}
	if m.LoadFailed {
		if err := sess.LoadErr(); err != nil {
			m.Error = "Could not load policy: " + err.Error()
		}
		return m
	}

	m.RequiredReviews = vm.TextFieldViewModel{
		Name:     fieldRequiredReviews,
		Label:    fieldLabels[fieldRequiredReviews],
		Value:    fields.RequiredReviews,
		HelpHTML: fieldHelpHTML(fieldRequiredReviews),
	}

	for _, f := range application.ControlFields() {
		ctl, ok := sess.Control(f)
		if !ok {
			continue
		}
		m.Controls = append(m.Controls, controlViewModel(id, f, ctl, ctl.Snapshot()))
	}

	for _, f := range textListFields {
		m.Lists = append(m.Lists, vm.TextFieldViewModel{
			Name:     string(f),
			Label:    fieldLabel(f),
			Value:    listText(fields, f),
			HelpHTML: fieldHelpHTML(string(f)),
		})
	}

	m.Flags = []vm.FlagViewModel{
		flagViewModel(fieldAutoUnapprove, fields.AutoUnapprove),
		flagViewModel(fieldBlockByDefaultReviewer, fields.BlockByDefaultReviewer),
	}
	return m
}

func listText(fields application.TextFields, f model.PolicyField) string {
	switch f {
	case model.FieldBlockedCommits:
		return fields.BlockedCommits
	case model.FieldBlockedPRs:
		return fields.BlockedPRs
	case model.FieldAutomergePRs:
		return fields.AutomergePRs
	case model.FieldAutomergePRsFrom:
		return fields.AutomergePRsFrom
	default:
		return ""
	}
}

// flagViewModel offers unset, true and false, plus the current value when the
// platform stored something else.
func flagViewModel(name string, value model.FlagValue) vm.FlagViewModel {
	options := []string{"", "true", "false"}
	switch value {
	case "", "true", "false":
	default:
		options = append(options, string(value))
	}
	return vm.FlagViewModel{
		Name:     name,
		Label:    fieldLabels[name],
		Value:    string(value),
		Options:  options,
		HelpHTML: fieldHelpHTML(name),
	}
}

func controlViewModel(sessionID string, field model.PolicyField, ctl *application.MultiSelect, snap application.Snapshot) vm.ControlViewModel {
	base := "/editor/" + url.PathEscape(sessionID) + "/" + url.PathEscape(string(field))
	provider := ctl.Provider()

	c := vm.ControlViewModel{
		Field:      string(field),
		Label:      fieldLabel(field),
		Kind:       provider.Kind(),
		HelpHTML:   fieldHelpHTML(string(field)),
		DOMID:      "ctl-" + string(field),
		Text:       snap.Text,
		Searching:  snap.State != application.ControlIdle,
		SuggestURL: base + "/suggest",
		TagsURL:    base + "/tags",
	}
	// Text too short to search has no result list, not an empty one.
	if utf8.RuneCountInString(snap.Query) >= provider.MinimumQueryLength() {
		c.Query = snap.Query
	}
	if snap.Err != nil {
		c.LookupError = snap.Err.Error()
	}

	for _, tag := range snap.Tags {
		c.Tags = append(c.Tags, vm.TagViewModel{
			ID:        tag.ID,
			Label:     provider.FormatSelection(tag),
			RemoveURL: base + "/tags/" + url.PathEscape(tag.ID),
		})
	}
	for _, s := range snap.Suggestions {
		c.Suggestions = append(c.Suggestions, vm.SuggestionViewModel{
			ID:             s.ID,
			Label:          provider.FormatResult(s),
			PrimaryLabel:   s.PrimaryLabel,
			SecondaryLabel: s.SecondaryLabel,
		})
	}
	return c
}

func scopeLabel(scope model.ScopeKey) string {
	if scope.IsProjectWide() {
		return "Project " + scope.ProjectKey
	}
	return "Repository " + scope.String()
}
