package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

var (
	// ErrControlClosed is returned by Settle once the control has been closed.
	ErrControlClosed = errors.New("multi-select control closed")
	// ErrFreeFormDisabled is returned by AddToken on controls that only
	// accept provider suggestions.
	ErrFreeFormDisabled = errors.New("free-form tokens are not accepted by this control")
)

// ControlState is the lifecycle state of a MultiSelect.
type ControlState int

const (
	// ControlIdle means no keystroke is waiting and the newest query (if any)
	// has been applied.
	ControlIdle ControlState = iota
	// ControlDebouncing means a keystroke is waiting for the quiet period to elapse.
	ControlDebouncing
	// ControlQuerying means the newest query is in flight.
	ControlQuerying
)

// String returns a human-readable name for the state.
func (s ControlState) String() string {
	switch s {
	case ControlIdle:
		return "idle"
	case ControlDebouncing:
		return "debouncing"
	case ControlQuerying:
		return "querying"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of what a MultiSelect displays.
type Snapshot struct {
	State ControlState
	Text  string
	Tags  []model.SelectableEntity
	// Query is the text the suggestions were produced for.
	Query       string
	Suggestions []model.SelectableEntity
	// Err is set when the lookup for Query failed. Suggestions is then empty.
	Err error
}

// pendingQuery is an issued lookup. seq orders queries within one control;
// a completion is applied only while seq is the newest issued.
type pendingQuery struct {
	seq  uint64
	text string
}

// MultiSelectOption configures a MultiSelect.
type MultiSelectOption func(*MultiSelect)

// WithClock sets the clock used for the debounce timer.
func WithClock(clock clockwork.Clock) MultiSelectOption {
	return func(m *MultiSelect) { m.clock = clock }
}

// WithMetrics sets the metrics sink for lookup outcomes.
func WithMetrics(metrics driven.Metrics) MultiSelectOption {
	return func(m *MultiSelect) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) MultiSelectOption {
	return func(m *MultiSelect) { m.logger = logger }
}

// WithFreeForm lets AddToken append tokens that did not come from the provider.
func WithFreeForm() MultiSelectOption {
	return func(m *MultiSelect) { m.freeForm = true }
}

// MultiSelect is a tag-style input backed by a debounced asynchronous lookup
// provider. Every keystroke restarts the quiet-period timer; only the newest
// query's results are ever displayed, whatever order responses arrive in.
// Results are memoized by exact query text for the lifetime of the control.
type MultiSelect struct {
	provider driven.LookupProvider
	clock    clockwork.Clock
	metrics  driven.Metrics
	logger   *slog.Logger
	freeForm bool

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	tags        []model.SelectableEntity
	text        string
	timer       clockwork.Timer
	keystrokes  uint64
	issued      uint64
	applied     uint64
	query       string
	suggestions []model.SelectableEntity
	lookupErr   error
	cache       map[string][]model.SelectableEntity
	changed     chan struct{}
	closed      bool
}

// NewMultiSelect creates a control seeded from comma text. One tag is created
// per token with the token itself as label; the provider is not consulted.
func NewMultiSelect(provider driven.LookupProvider, seed string, opts ...MultiSelectOption) *MultiSelect {
	m := &MultiSelect{
		provider: provider,
		clock:    clockwork.NewRealClock(),
		metrics:  nopMetrics{},
		logger:   slog.Default(),
		cache:    make(map[string][]model.SelectableEntity),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	for _, tok := range model.ParseList(seed) {
		m.tags = append(m.tags, model.EntityFromToken(tok))
	}

	return m
}

// Provider returns the lookup provider backing the control.
func (m *MultiSelect) Provider() driven.LookupProvider {
	return m.provider
}

// Type records the current input text and (re)starts the quiet-period timer.
// A previously armed timer is cancelled.
func (m *MultiSelect) Type(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.text = text
	m.keystrokes++
	m.stopTimerLocked()

	quiet := m.provider.QuietPeriod()
	if quiet <= 0 {
		m.dispatchLocked()
		m.notifyLocked()
		return
	}

	gen := m.keystrokes
	m.timer = m.clock.AfterFunc(quiet, func() { m.fire(gen) })
	m.notifyLocked()
}

// fire runs when the quiet period elapses. gen identifies the keystroke that
// armed the timer so a timer that lost a race with Stop does nothing.
func (m *MultiSelect) fire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.timer == nil || gen != m.keystrokes {
		return
	}
	m.timer = nil

	m.dispatchLocked()
	m.notifyLocked()
}

// dispatchLocked issues a query for the current text. Short text and cache
// hits are applied immediately; both still take a sequence number so that
// any in-flight lookup is superseded.
func (m *MultiSelect) dispatchLocked() {
	m.issued++
	pq := pendingQuery{seq: m.issued, text: m.text}
	kind := m.provider.Kind()

	if utf8.RuneCountInString(pq.text) < m.provider.MinimumQueryLength() {
		m.metrics.ObserveLookup(kind, "skipped")
		m.applyLocked(pq, nil, nil)
		return
	}

	if cached, ok := m.cache[pq.text]; ok {
		m.metrics.ObserveLookup(kind, "cache_hit")
		m.applyLocked(pq, cached, nil)
		return
	}

	m.logger.Debug("lookup dispatched", "kind", kind, "query", pq.text, "seq", pq.seq)
	go m.run(pq)
}

func (m *MultiSelect) run(pq pendingQuery) {
	results, err := m.provider.Search(m.ctx, pq.text)
	m.complete(pq, results, err)
}

// complete is the continuation of a lookup. It is the only writer of the cache.
func (m *MultiSelect) complete(pq pendingQuery, results []model.SelectableEntity, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	kind := m.provider.Kind()
	if err == nil {
		m.cache[pq.text] = results
	}

	if pq.seq != m.issued {
		m.metrics.ObserveLookup(kind, "stale")
		m.logger.Debug("stale lookup discarded", "kind", kind, "query", pq.text, "seq", pq.seq, "newest", m.issued)
		return
	}

	if err != nil {
		m.metrics.ObserveLookup(kind, "error")
		m.logger.Warn("lookup failed", "kind", kind, "query", pq.text, "error", err)
	} else {
		m.metrics.ObserveLookup(kind, "network")
	}

	m.applyLocked(pq, results, err)
	m.notifyLocked()
}

func (m *MultiSelect) applyLocked(pq pendingQuery, results []model.SelectableEntity, err error) {
	m.applied = pq.seq
	m.query = pq.text
	m.suggestions = append([]model.SelectableEntity{}, results...)
	m.lookupErr = err
}

// Select appends entity as a tag and returns the control to Idle.
func (m *MultiSelect) Select(entity model.SelectableEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.tags = append(m.tags, entity)
	m.resetInputLocked()
	m.notifyLocked()
}

// AddToken appends free-form tokens typed by the user. The text may hold
// several comma-separated tokens.
func (m *MultiSelect) AddToken(text string) error {
	if !m.freeForm {
		return ErrFreeFormDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrControlClosed
	}

	for _, tok := range model.ParseList(text) {
		m.tags = append(m.tags, model.EntityFromToken(tok))
	}
	m.resetInputLocked()
	m.notifyLocked()
	return nil
}

// Remove drops the first tag with the given id. Reports whether a tag was removed.
func (m *MultiSelect) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, tag := range m.tags {
		if tag.ID == id {
			m.tags = append(m.tags[:i:i], m.tags[i+1:]...)
			m.notifyLocked()
			return true
		}
	}
	return false
}

// resetInputLocked clears the input, cancels a pending timer and supersedes
// any in-flight query.
func (m *MultiSelect) resetInputLocked() {
	m.stopTimerLocked()
	m.keystrokes++
	m.text = ""
	m.issued++
	m.applyLocked(pendingQuery{seq: m.issued}, nil, nil)
}

// Tags returns a copy of the selected tags.
func (m *MultiSelect) Tags() []model.SelectableEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SelectableEntity{}, m.tags...)
}

// IDs returns the identifiers of the selected tags in order.
func (m *MultiSelect) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.tags))
	for _, tag := range m.tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

// Value returns the selected identifiers as comma text.
func (m *MultiSelect) Value() string {
	return model.JoinList(m.IDs())
}

// State returns the current lifecycle state.
func (m *MultiSelect) State() ControlState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *MultiSelect) stateLocked() ControlState {
	switch {
	case m.timer != nil:
		return ControlDebouncing
	case m.applied < m.issued:
		return ControlQuerying
	default:
		return ControlIdle
	}
}

// Snapshot returns the current visible state.
func (m *MultiSelect) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *MultiSelect) snapshotLocked() Snapshot {
	return Snapshot{
		State:       m.stateLocked(),
		Text:        m.text,
		Tags:        append([]model.SelectableEntity{}, m.tags...),
		Query:       m.query,
		Suggestions: append([]model.SelectableEntity{}, m.suggestions...),
		Err:         m.lookupErr,
	}
}

// Settle blocks until the control is Idle and returns its snapshot.
func (m *MultiSelect) Settle(ctx context.Context) (Snapshot, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Snapshot{}, ErrControlClosed
		}
		if m.stateLocked() == ControlIdle {
			snap := m.snapshotLocked()
			m.mu.Unlock()
			return snap, nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

// Close stops the timer, cancels in-flight lookups and drops the cache.
// Close is idempotent.
func (m *MultiSelect) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.stopTimerLocked()
	m.cache = nil
	m.cancel()
	m.notifyLocked()
}

func (m *MultiSelect) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// notifyLocked wakes every Settle waiter.
func (m *MultiSelect) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}
