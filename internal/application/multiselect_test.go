package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/prharmony/internal/application"
	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

const testQuiet = 250 * time.Millisecond

// --- Mock implementations ---

// fakeProvider is a LookupProvider whose Search can be held open per query
// text to control response arrival order.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]model.SelectableEntity
	gates   map[string]chan struct{}
	err     error
	started chan string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results: make(map[string][]model.SelectableEntity),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 16),
	}
}

func (p *fakeProvider) Kind() string               { return "user" }
func (p *fakeProvider) MinimumQueryLength() int    { return 2 }
func (p *fakeProvider) QuietPeriod() time.Duration { return testQuiet }
func (p *fakeProvider) FormatResult(e model.SelectableEntity) string {
	return e.PrimaryLabel
}
func (p *fakeProvider) FormatSelection(e model.SelectableEntity) string { return e.ID }

func (p *fakeProvider) Search(ctx context.Context, query string) ([]model.SelectableEntity, error) {
	p.mu.Lock()
	p.calls = append(p.calls, query)
	gate := p.gates[query]
	results := p.results[query]
	err := p.err
	p.mu.Unlock()

	p.started <- query

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, err
}

func (p *fakeProvider) hold(query string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	gate := make(chan struct{})
	p.gates[query] = gate
	return gate
}

func (p *fakeProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

// recordingMetrics counts outcomes passed to the Metrics port.
type recordingMetrics struct {
	mu       sync.Mutex
	lookups  map[string]int
	saves    map[string]int
	mergeOut map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		lookups:  make(map[string]int),
		saves:    make(map[string]int),
		mergeOut: make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveLookup(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[outcome]++
}

func (m *recordingMetrics) ObserveSave(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[outcome]++
}

func (m *recordingMetrics) ObserveMergeCheck(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeOut[outcome]++
}

func (m *recordingMetrics) ObserveRequest(string, string, string, float64) {}

func (m *recordingMetrics) lookupCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups[outcome]
}

func (m *recordingMetrics) saveCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[outcome]
}

// --- Helpers ---

func settle(t *testing.T, ms *application.MultiSelect) application.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := ms.Settle(ctx)
	require.NoError(t, err)
	return snap
}

func waitStarted(t *testing.T, p *fakeProvider, query string) {
	t.Helper()
	select {
	case got := <-p.started:
		require.Equal(t, query, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("search for %q never started", query)
	}
}

func ids(entities []model.SelectableEntity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

// --- Tests ---

func TestMultiSelect_HydratesFromSeedWithoutLookup(t *testing.T) {
	p := newFakeProvider()

	ms := application.NewMultiSelect(p, "alice, bob", application.WithClock(clockwork.NewFakeClock()))
	t.Cleanup(ms.Close)

	tags := ms.Tags()
	require.Len(t, tags, 2)
	assert.Equal(t, model.SelectableEntity{ID: "alice", PrimaryLabel: "alice"}, tags[0])
	assert.Equal(t, model.SelectableEntity{ID: "bob", PrimaryLabel: "bob"}, tags[1])
	assert.Equal(t, "alice,bob", ms.Value())
	assert.Equal(t, application.ControlIdle, ms.State())
	assert.Empty(t, p.callLog())
}

func TestMultiSelect_DebounceFiresOnceAfterQuietPeriod(t *testing.T) {
	p := newFakeProvider()
	p.results["ali"] = []model.SelectableEntity{{ID: "alice", PrimaryLabel: "Alice"}}
	clock := clockwork.NewFakeClock()

	ms := application.NewMultiSelect(p, "", application.WithClock(clock))
	t.Cleanup(ms.Close)

	ms.Type("a")
	clock.Advance(100 * time.Millisecond)
	ms.Type("al")
	clock.Advance(100 * time.Millisecond)
	ms.Type("ali")

	clock.Advance(testQuiet - time.Millisecond)
	assert.Equal(t, application.ControlDebouncing, ms.State())
	assert.Empty(t, p.callLog())

	clock.Advance(time.Millisecond)
	snap := settle(t, ms)

	assert.Equal(t, []string{"ali"}, p.callLog())
	assert.Equal(t, "ali", snap.Query)
	assert.Equal(t, []string{"alice"}, ids(snap.Suggestions))
	assert.NoError(t, snap.Err)
}

func TestMultiSelect_BelowMinimumLengthSkipsLookup(t *testing.T) {
	p := newFakeProvider()
	clock := clockwork.NewFakeClock()
	metrics := newRecordingMetrics()

	ms := application.NewMultiSelect(p, "", application.WithClock(clock), application.WithMetrics(metrics))
	t.Cleanup(ms.Close)

	ms.Type("a")
	clock.Advance(testQuiet)
	snap := settle(t, ms)

	assert.Empty(t, p.callLog())
	assert.Empty(t, snap.Suggestions)
	assert.Equal(t, application.ControlIdle, snap.State)
	assert.Equal(t, 1, metrics.lookupCount("skipped"))
}

func TestMultiSelect_StaleResponseIsDiscarded(t *testing.T) {
	p := newFakeProvider()
	p.results["al"] = []model.SelectableEntity{{ID: "alan"}, {ID: "alice"}}
	p.results["ali"] = []model.SelectableEntity{{ID: "alice"}}
	slow := p.hold("al")
	fast := p.hold("ali")
	clock := clockwork.NewFakeClock()
	metrics := newRecordingMetrics()

	ms := application.NewMultiSelect(p, "", application.WithClock(clock), application.WithMetrics(metrics))
	t.Cleanup(ms.Close)

	ms.Type("al")
	clock.Advance(testQuiet)
	waitStarted(t, p, "al")

	ms.Type("ali")
	clock.Advance(testQuiet)
	waitStarted(t, p, "ali")

	// Query #2 resolves first.
	close(fast)
	snap := settle(t, ms)
	assert.Equal(t, "ali", snap.Query)
	assert.Equal(t, []string{"alice"}, ids(snap.Suggestions))

	// Query #1 resolves late and must not replace #2's results.
	close(slow)
	require.Eventually(t, func() bool { return metrics.lookupCount("stale") == 1 },
		2*time.Second, 5*time.Millisecond)

	snap = ms.Snapshot()
	assert.Equal(t, "ali", snap.Query)
	assert.Equal(t, []string{"alice"}, ids(snap.Suggestions))
}

func TestMultiSelect_CachesByExactQueryText(t *testing.T) {
	p := newFakeProvider()
	p.results["bob"] = []model.SelectableEntity{{ID: "bob"}}
	clock := clockwork.NewFakeClock()
	metrics := newRecordingMetrics()

	ms := application.NewMultiSelect(p, "", application.WithClock(clock), application.WithMetrics(metrics))
	t.Cleanup(ms.Close)

	for _, text := range []string{"bob", "bo", "bob"} {
		ms.Type(text)
		clock.Advance(testQuiet)
		settle(t, ms)
	}

	assert.Equal(t, []string{"bob", "bo"}, p.callLog())
	assert.Equal(t, 1, metrics.lookupCount("cache_hit"))
	assert.Equal(t, []string{"bob"}, ids(ms.Snapshot().Suggestions))
}

func TestMultiSelect_LookupErrorIsDistinctFromNoResults(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("directory unavailable")
	clock := clockwork.NewFakeClock()

	ms := application.NewMultiSelect(p, "", application.WithClock(clock))
	t.Cleanup(ms.Close)

	ms.Type("carol")
	clock.Advance(testQuiet)
	snap := settle(t, ms)

	require.Error(t, snap.Err)
	assert.Empty(t, snap.Suggestions)

	// Failures are not cached.
	ms.Type("caro")
	clock.Advance(testQuiet)
	settle(t, ms)
	ms.Type("carol")
	clock.Advance(testQuiet)
	settle(t, ms)

	assert.Equal(t, []string{"carol", "caro", "carol"}, p.callLog())
}

func TestMultiSelect_SelectCancelsPendingTimer(t *testing.T) {
	p := newFakeProvider()
	clock := clockwork.NewFakeClock()

	ms := application.NewMultiSelect(p, "dave", application.WithClock(clock))
	t.Cleanup(ms.Close)

	ms.Type("eve")
	ms.Select(model.SelectableEntity{ID: "eve", PrimaryLabel: "Eve Smith"})

	assert.Equal(t, application.ControlIdle, ms.State())
	clock.Advance(2 * testQuiet)

	snap := settle(t, ms)
	assert.Empty(t, p.callLog())
	assert.Equal(t, "", snap.Text)
	assert.Equal(t, []string{"dave", "eve"}, ids(snap.Tags))
}

func TestMultiSelect_SelectSupersedesInFlightQuery(t *testing.T) {
	p := newFakeProvider()
	p.results["fra"] = []model.SelectableEntity{{ID: "frank"}}
	gate := p.hold("fra")
	clock := clockwork.NewFakeClock()
	metrics := newRecordingMetrics()

	ms := application.NewMultiSelect(p, "", application.WithClock(clock), application.WithMetrics(metrics))
	t.Cleanup(ms.Close)

	ms.Type("fra")
	clock.Advance(testQuiet)
	waitStarted(t, p, "fra")
	assert.Equal(t, application.ControlQuerying, ms.State())

	ms.Select(model.SelectableEntity{ID: "francine"})
	assert.Equal(t, application.ControlIdle, ms.State())

	close(gate)
	require.Eventually(t, func() bool { return metrics.lookupCount("stale") == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Empty(t, ms.Snapshot().Suggestions)
}

func TestMultiSelect_RemoveDropsFirstMatchingTag(t *testing.T) {
	ms := application.NewMultiSelect(newFakeProvider(), "a,b,a", application.WithClock(clockwork.NewFakeClock()))
	t.Cleanup(ms.Close)

	assert.True(t, ms.Remove("a"))
	assert.Equal(t, []string{"b", "a"}, ms.IDs())
	assert.False(t, ms.Remove("zzz"))
}

func TestMultiSelect_AddToken(t *testing.T) {
	strict := application.NewMultiSelect(newFakeProvider(), "", application.WithClock(clockwork.NewFakeClock()))
	t.Cleanup(strict.Close)
	assert.ErrorIs(t, strict.AddToken("x"), application.ErrFreeFormDisabled)

	free := application.NewMultiSelect(newFakeProvider(), "w",
		application.WithClock(clockwork.NewFakeClock()), application.WithFreeForm())
	t.Cleanup(free.Close)

	require.NoError(t, free.AddToken(" x, ,y"))
	assert.Equal(t, "w,x,y", free.Value())
}

func TestMultiSelect_CloseCancelsInFlightLookup(t *testing.T) {
	p := newFakeProvider()
	p.hold("gra")
	clock := clockwork.NewFakeClock()

	ms := application.NewMultiSelect(p, "", application.WithClock(clock))

	ms.Type("gra")
	clock.Advance(testQuiet)
	waitStarted(t, p, "gra")

	ms.Close()
	ms.Close()

	_, err := ms.Settle(context.Background())
	assert.ErrorIs(t, err, application.ErrControlClosed)

	ms.Type("grace")
	assert.Equal(t, "gra", ms.Snapshot().Text)
}
