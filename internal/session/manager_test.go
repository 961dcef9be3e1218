package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/persona"
	"github.com/ashureev/agentdesk/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newManager(t *testing.T) (*Manager, store.Repository) {
	t.Helper()
	cat, err := persona.New([]domain.Persona{
		{ID: "pm", Title: "Product Manager"},
		{ID: "architect", Title: "Architect"},
	}, "", "")
	require.NoError(t, err)
	repo := store.NewMemory()
	return NewManager(repo, cat), repo
}

func userMsg(content string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: content}
}

func transcript(t *testing.T, m *Manager, id string) []string {
	t.Helper()
	sess, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	out := make([]string, len(sess.Transcript))
	for i, msg := range sess.Transcript {
		out[i] = msg.Content
	}
	return out
}

func TestSetActivePersona(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SetActivePersona(ctx, "s1", "pm"))
	sess, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "pm", sess.ActivePersona)

	err = m.SetActivePersona(ctx, "s1", "nope123")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	sess, err = m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "pm", sess.ActivePersona)
	assert.Equal(t, int64(1), sess.PersonaEpoch)

	require.NoError(t, m.SetActivePersona(ctx, "s1", ""))
	sess, err = m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sess.ActivePersona)
}

func TestInvalidSessionID(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)

	_, err := m.Begin(context.Background(), "bad id/with slash")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = m.GetOrCreate(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestTurnsRunInArrivalOrder(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	first, err := m.Begin(ctx, "order")
	require.NoError(t, err)

	secondDone := make(chan error, 1)
	go func() {
		second, err := m.Begin(ctx, "order")
		if err != nil {
			secondDone <- err
			return
		}
		defer second.Release()
		secondDone <- second.Commit(ctx, Mutation{Messages: []domain.Message{userMsg("second")}})
	}()

	select {
	case err := <-secondDone:
		t.Fatalf("second turn ran before the first finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Commit(ctx, Mutation{Messages: []domain.Message{userMsg("first")}}))
	first.Release()
	require.NoError(t, <-secondDone)

	assert.Equal(t, []string{"first", "second"}, transcript(t, m, "order"))
	require.Eventually(t, func() bool { return m.activeSessions() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSnapshotSeesEarlierTurns(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	switcher, err := m.Begin(ctx, "seen")
	require.NoError(t, err)

	snap := make(chan domain.Session, 1)
	go func() {
		next, err := m.Begin(ctx, "seen")
		if !assert.NoError(t, err) {
			close(snap)
			return
		}
		defer next.Release()
		snap <- next.Snapshot()
	}()

	require.NoError(t, switcher.Commit(ctx, Mutation{
		Messages: []domain.Message{userMsg("*agent pm")},
		Persona:  &store.PersonaChange{ID: "pm"},
	}))
	switcher.Release()

	got, ok := <-snap
	require.True(t, ok)
	assert.Equal(t, "pm", got.ActivePersona)
	assert.Equal(t, int64(1), got.PersonaEpoch)
	require.Len(t, got.Transcript, 1)
}

func TestReleasedTurnHandsOnSlot(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	abandoned, err := m.Begin(ctx, "skip")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		next, err := m.Begin(ctx, "skip")
		if err != nil {
			done <- err
			return
		}
		defer next.Release()
		done <- next.Commit(ctx, Mutation{Messages: []domain.Message{userMsg("kept")}})
	}()

	abandoned.Release()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"kept"}, transcript(t, m, "skip"))
}

func TestPersonaChangeConflicts(t *testing.T) {
	t.Parallel()
	m, repo := newManager(t)
	ctx := context.Background()

	chat, err := m.Begin(ctx, "race")
	require.NoError(t, err)
	defer chat.Release()

	// A write that bypasses the manager, as another process on the same
	// store would make.
	require.NoError(t, repo.CommitTurn(ctx, "race", store.TurnCommit{
		Persona:   &store.PersonaChange{ID: "pm"},
		UpdatedAt: time.Now(),
	}))

	err = chat.Commit(ctx, Mutation{
		Messages:   []domain.Message{userMsg("hello")},
		CheckEpoch: true,
	})
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
	assert.Empty(t, transcript(t, m, "race"))
}

func TestCancelledWaitWritesNothing(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	first, err := m.Begin(ctx, "cancel")
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Begin(cctx, "cancel")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	require.NoError(t, first.Commit(ctx, Mutation{Messages: []domain.Message{userMsg("kept")}}))
	first.Release()

	assert.Equal(t, []string{"kept"}, transcript(t, m, "cancel"))
	require.Eventually(t, func() bool { return m.activeSessions() == 0 }, time.Second, 5*time.Millisecond)

	// The abandoned slot does not hold up later turns.
	require.NoError(t, m.AppendTranscript(ctx, "cancel", userMsg("after")))
}

func TestCancelledCommitWritesNothing(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	turn, err := m.Begin(ctx, "cancel-commit")
	require.NoError(t, err)
	defer turn.Release()

	// Hold the session lock so the commit has to wait for it.
	turn.e.sem <- struct{}{}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = turn.Commit(cctx, Mutation{Messages: []domain.Message{userMsg("lost")}})
	<-turn.e.sem
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, transcript(t, m, "cancel-commit"))
}

func TestTurnClosedAfterCommit(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	turn, err := m.Begin(ctx, "closed")
	require.NoError(t, err)
	defer turn.Release()
	require.NoError(t, turn.Commit(ctx, Mutation{}))
	assert.ErrorIs(t, turn.Commit(ctx, Mutation{}), ErrTurnClosed)
}

func TestConcurrentAppendsKeepEveryMessage(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.AppendTranscript(ctx, "busy", userMsg(fmt.Sprintf("m%d", i))))
		}(i)
	}
	wg.Wait()

	got := transcript(t, m, "busy")
	require.Len(t, got, n)
	seen := make(map[string]bool, n)
	for _, c := range got {
		assert.False(t, seen[c], "duplicate %s", c)
		seen[c] = true
	}
	assert.Equal(t, 0, m.activeSessions())
}

func TestSessionsDoNotBlockEachOther(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	held, err := m.Begin(ctx, "a")
	require.NoError(t, err)
	defer held.Release()

	done := make(chan error, 1)
	go func() { done <- m.AppendTranscript(ctx, "b", userMsg("independent")) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session b blocked behind session a")
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	_, err := m.FetchCredential(ctx, "vault", "figma")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, m.StoreCredential(ctx, "vault", "Figma", map[string]string{"token": "one"}))
	require.NoError(t, m.StoreCredential(ctx, "vault", "figma", map[string]string{"token": "two", "email": "x@y.z"}))

	payload, err := m.FetchCredential(ctx, "vault", "FIGMA")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"token": "two", "email": "x@y.z"}, payload)

	err = m.StoreCredential(ctx, "vault", "figma", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, transcript(t, m, "vault"))
}

func TestCommitValidatesDocuments(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	ctx := context.Background()

	turn, err := m.Begin(ctx, "docs")
	require.NoError(t, err)
	defer turn.Release()

	err = turn.Commit(ctx, Mutation{Documents: []domain.ManagedDocument{{
		ID: "d1", SessionID: "docs", Metadata: domain.Metadata{"bad": []string{"x"}},
	}}})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	docs, err := m.ListDocuments(ctx, "docs")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
