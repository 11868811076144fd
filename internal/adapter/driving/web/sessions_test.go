package web

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/prharmony/internal/application"
	"github.com/ericfisherdev/prharmony/internal/domain/model"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*SessionRegistry, *clockwork.FakeClock, *application.EditorService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClock()
	users := &stubProvider{kind: "user"}
	groups := &stubProvider{kind: "group"}
	editor := application.NewEditorService(&memoryStore{policy: model.NewPolicy()}, users, groups)
	return NewSessionRegistry(clock, ttl, logger), clock, editor
}

func openSession(t *testing.T, editor *application.EditorService) *application.EditorSession {
	t.Helper()
	scope, err := model.NewScopeKey("PROJ", "")
	require.NoError(t, err)
	sess, err := editor.Open(context.Background(), application.EditorEnv{Scope: scope})
	require.NoError(t, err)
	return sess
}

func TestSessionRegistry_AddAndGet(t *testing.T) {
	reg, _, editor := newTestRegistry(t, time.Minute)
	sess := openSession(t, editor)

	id := reg.Add(sess)

	got, ok := reg.Get(id)
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = reg.Get("unknown")
	assert.False(t, ok)
}

func TestSessionRegistry_SweepClosesIdleSessions(t *testing.T) {
	reg, clock, editor := newTestRegistry(t, time.Minute)
	idle := openSession(t, editor)
	active := openSession(t, editor)

	idleID := reg.Add(idle)
	activeID := reg.Add(active)

	clock.Advance(45 * time.Second)
	_, ok := reg.Get(activeID)
	require.True(t, ok)
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, reg.Sweep())
	assert.Equal(t, 1, reg.Len())

	_, ok = reg.Get(idleID)
	assert.False(t, ok)

	ctl, ok := idle.Control(model.FieldRequiredReviewers)
	assert.False(t, ok, "closed session drops its controls")
	assert.Nil(t, ctl)
}

func TestSessionRegistry_RunSweepsOnTickAndClosesOnCancel(t *testing.T) {
	reg, clock, editor := newTestRegistry(t, time.Minute)
	reg.Add(openSession(t, editor))
	reg.Add(openSession(t, editor))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)

	reg.Add(openSession(t, editor))
	cancel()
	<-done
	assert.Equal(t, 0, reg.Len())
}
