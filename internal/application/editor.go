package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

var (
	// ErrSaveInProgress is returned when Submit is called while a save is running.
	ErrSaveInProgress = errors.New("a save is already in progress")
	// ErrNotLoaded is returned when Submit is called before a successful Load.
	ErrNotLoaded = errors.New("policy has not been loaded")
	// ErrReloadFailed wraps the load error when a save succeeded but the
	// follow-up reload did not.
	ErrReloadFailed = errors.New("policy saved but reload failed")
)

// EditorState is the lifecycle state of an EditorSession.
type EditorState int

const (
	EditorLoading EditorState = iota
	EditorEditing
	EditorSaving
	EditorReloading
	EditorLoadFailed
)

// String returns a human-readable name for the state.
func (s EditorState) String() string {
	switch s {
	case EditorLoading:
		return "loading"
	case EditorEditing:
		return "editing"
	case EditorSaving:
		return "saving"
	case EditorReloading:
		return "reloading"
	case EditorLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// userFields and groupFields are the policy fields edited through
// multi-select controls.
var (
	userFields = []model.PolicyField{
		model.FieldRequiredReviewers,
		model.FieldDefaultReviewers,
		model.FieldExcludedUsers,
	}
	groupFields = []model.PolicyField{
		model.FieldRequiredReviewerGroups,
		model.FieldDefaultReviewerGroups,
		model.FieldExcludedGroups,
	}
)

// EditorEnv is the immutable environment an editor session is opened with.
// It is built once by the hosting surface and never mutated.
type EditorEnv struct {
	Scope        model.ScopeKey
	StoreBaseURL string
}

// TextFields holds the editor inputs that are not multi-select controls, in
// their edit representation.
type TextFields struct {
	RequiredReviews        string
	BlockedCommits         string
	BlockedPRs             string
	AutomergePRs           string
	AutomergePRsFrom       string
	AutoUnapprove          model.FlagValue
	BlockByDefaultReviewer model.FlagValue
}

// textFieldsFromPolicy converts a loaded policy into edit text.
func textFieldsFromPolicy(p model.Policy) TextFields {
	return TextFields{
		RequiredReviews:        strconv.Itoa(p.RequiredReviews),
		BlockedCommits:         model.JoinList(p.BlockedCommits),
		BlockedPRs:             model.JoinList(p.BlockedPRs),
		AutomergePRs:           model.JoinList(p.AutomergePRs),
		AutomergePRsFrom:       model.JoinList(p.AutomergePRsFrom),
		AutoUnapprove:          p.AutoUnapprove,
		BlockByDefaultReviewer: p.BlockByDefaultReviewer,
	}
}

// parseReviewCount reads the review count input. Blank, non-numeric and
// negative input count as zero.
func parseReviewCount(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// EditorService creates editor sessions wired to the policy store and the
// lookup providers.
type EditorService struct {
	store   driven.PolicyStore
	users   driven.LookupProvider
	groups  driven.LookupProvider
	clock   clockwork.Clock
	metrics driven.Metrics
	logger  *slog.Logger
}

// EditorOption configures an EditorService.
type EditorOption func(*EditorService)

// WithEditorClock sets the clock handed to every multi-select control.
func WithEditorClock(clock clockwork.Clock) EditorOption {
	return func(s *EditorService) { s.clock = clock }
}

// WithEditorMetrics sets the metrics sink.
func WithEditorMetrics(metrics driven.Metrics) EditorOption {
	return func(s *EditorService) { s.metrics = metrics }
}

// WithEditorLogger sets the logger.
func WithEditorLogger(logger *slog.Logger) EditorOption {
	return func(s *EditorService) { s.logger = logger }
}

// NewEditorService creates an EditorService.
func NewEditorService(store driven.PolicyStore, users, groups driven.LookupProvider, opts ...EditorOption) *EditorService {
	s := &EditorService{
		store:   store,
		users:   users,
		groups:  groups,
		clock:   clockwork.NewRealClock(),
		metrics: nopMetrics{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSession creates an unloaded session for env. Call Load before use.
func (s *EditorService) NewSession(env EditorEnv) *EditorSession {
	return &EditorSession{
		svc:      s,
		env:      env,
		state:    EditorLoading,
		controls: make(map[model.PolicyField]*MultiSelect),
	}
}

// Open creates a session and loads it. The session is returned even when the
// load fails so the caller can offer a retry.
func (s *EditorService) Open(ctx context.Context, env EditorEnv) (*EditorSession, error) {
	sess := s.NewSession(env)
	return sess, sess.Load(ctx)
}

// EditorSession is one editing pass over a scope's policy. It sequences
// load, validate, save and reload; a successful save discards every control
// and rebuilds the view from the store, so no local state survives a commit.
type EditorSession struct {
	svc *EditorService
	env EditorEnv

	mu       sync.Mutex
	state    EditorState
	loadErr  error
	fields   TextFields
	controls map[model.PolicyField]*MultiSelect
}

// Env returns the environment the session was opened with.
func (e *EditorSession) Env() EditorEnv {
	return e.env
}

// Load fetches the policy and (re)builds every field and control from it.
// On failure the session enters EditorLoadFailed; Load may be retried.
func (e *EditorSession) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.state == EditorSaving || e.state == EditorReloading {
		e.mu.Unlock()
		return ErrSaveInProgress
	}
	e.state = EditorLoading
	e.mu.Unlock()

	policy, err := e.svc.store.Load(ctx, e.env.Scope)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.failLocked(err)
		return fmt.Errorf("load policy for %s: %w", e.env.Scope, err)
	}

	e.populateLocked(policy)
	e.svc.logger.Debug("policy loaded", "scope", e.env.Scope.String())
	return nil
}

// Submit replaces the text fields, assembles the document and saves it.
// Validation failure aborts before the store is called. A save failure keeps
// every edit in place and returns the session to EditorEditing. A second
// Submit while one is running returns ErrSaveInProgress.
func (e *EditorSession) Submit(ctx context.Context, fields TextFields) error {
	e.mu.Lock()
	switch e.state {
	case EditorEditing:
	case EditorSaving, EditorReloading:
		e.mu.Unlock()
		e.svc.metrics.ObserveSave("refused")
		return ErrSaveInProgress
	default:
		e.mu.Unlock()
		return ErrNotLoaded
	}

	e.fields = fields
	policy := e.assembleLocked()
	if err := model.ValidatePolicy(policy); err != nil {
		e.mu.Unlock()
		e.svc.metrics.ObserveSave("unsatisfiable")
		return err
	}
	e.state = EditorSaving
	e.mu.Unlock()

	scope := e.env.Scope
	if err := e.svc.store.Save(ctx, scope, policy); err != nil {
		e.mu.Lock()
		e.state = EditorEditing
		e.mu.Unlock()

		e.svc.metrics.ObserveSave("error")
		e.svc.logger.Error("policy save failed", "scope", scope.String(), "error", err)
		return fmt.Errorf("save policy for %s: %w", scope, err)
	}
	e.svc.metrics.ObserveSave("ok")
	e.svc.logger.Info("policy saved", "scope", scope.String())

	e.mu.Lock()
	e.state = EditorReloading
	e.mu.Unlock()

	fresh, err := e.svc.store.Load(ctx, scope)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.failLocked(err)
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}

	e.populateLocked(fresh)
	return nil
}

// assembleLocked builds the document from the text fields and the controls.
func (e *EditorSession) assembleLocked() model.Policy {
	p := model.NewPolicy()
	p.RequiredReviews = parseReviewCount(e.fields.RequiredReviews)
	p.BlockedCommits = model.ParseList(e.fields.BlockedCommits)
	p.BlockedPRs = model.ParseList(e.fields.BlockedPRs)
	p.AutomergePRs = model.ParseList(e.fields.AutomergePRs)
	p.AutomergePRsFrom = model.ParseList(e.fields.AutomergePRsFrom)
	p.AutoUnapprove = e.fields.AutoUnapprove
	p.BlockByDefaultReviewer = e.fields.BlockByDefaultReviewer

	for field, ctl := range e.controls {
		p.SetList(field, ctl.IDs())
	}
	return p
}

// populateLocked discards the current view and rebuilds it from p.
func (e *EditorSession) populateLocked(p model.Policy) {
	e.closeControlsLocked()

	e.fields = textFieldsFromPolicy(p)

	opts := []MultiSelectOption{
		WithClock(e.svc.clock),
		WithMetrics(e.svc.metrics),
		WithLogger(e.svc.logger),
	}
	for _, f := range userFields {
		e.controls[f] = NewMultiSelect(e.svc.users, model.JoinList(p.List(f)), opts...)
	}
	for _, f := range groupFields {
		e.controls[f] = NewMultiSelect(e.svc.groups, model.JoinList(p.List(f)), opts...)
	}

	e.state = EditorEditing
	e.loadErr = nil
}

func (e *EditorSession) failLocked(err error) {
	e.closeControlsLocked()
	e.fields = TextFields{}
	e.state = EditorLoadFailed
	e.loadErr = err
}

func (e *EditorSession) closeControlsLocked() {
	for f, ctl := range e.controls {
		ctl.Close()
		delete(e.controls, f)
	}
}

// State returns the current lifecycle state.
func (e *EditorSession) State() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LoadErr returns the error that put the session into EditorLoadFailed.
func (e *EditorSession) LoadErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// Fields returns the current text field values.
func (e *EditorSession) Fields() TextFields {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fields
}

// Control returns the multi-select bound to field. The control is replaced
// on every load, so callers should not hold on to it across a Submit.
func (e *EditorSession) Control(field model.PolicyField) (*MultiSelect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctl, ok := e.controls[field]
	return ctl, ok
}

// ControlFields returns the fields edited through multi-select controls in
// display order.
func ControlFields() []model.PolicyField {
	out := make([]model.PolicyField, 0, len(userFields)+len(groupFields))
	for i := range userFields {
		out = append(out, userFields[i], groupFields[i])
	}
	return out
}

// Close releases every control.
func (e *EditorSession) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeControlsLocked()
}
