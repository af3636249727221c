package quiz

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	h := newHarness(t)

	s, err := h.engine.CreateSession(h.ctx, CreateRequest{QuizRef: "capitals", HostIdentity: "host"})
	require.NoError(t, err)
	assert.Len(t, s.Pin, minPinDigits)

	view, err := h.engine.Snapshot(h.ctx, s.Pin)
	require.NoError(t, err)

	want := SessionView{
		Pin:            s.Pin,
		QuizRef:        "capitals",
		HostIdentity:   "host",
		Players:        []Player{{Identity: "host", DisplayName: "Host", IsHost: true}},
		Phase:          PhaseLobby,
		TotalQuestions: 2,
		Joinable:       true,
		CreatedAt:      h.clock.Now(),
		LastActiveAt:   h.clock.Now(),
	}
	if diff := cmp.Diff(want, view, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestAnonymousSnapshotHidesIdentities(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")
	h.join(t, pin, "bob")

	view, err := h.engine.Snapshot(h.ctx, pin)
	require.NoError(t, err)
	anon := view.Anonymous()

	assert.Empty(t, anon.HostIdentity)
	require.Len(t, anon.Players, 2)
	for _, p := range anon.Players {
		assert.Empty(t, p.Identity)
		assert.NotEmpty(t, p.DisplayName)
	}
	assert.Equal(t, "bob", view.Players[1].Identity, "the original view is left alone")
}

func TestCreateSessionErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.CreateSession(h.ctx, CreateRequest{QuizRef: "capitals"})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = h.engine.CreateSession(h.ctx, CreateRequest{QuizRef: "missing", HostIdentity: "host"})
	assert.ErrorIs(t, err, ErrQuizNotFound)

	empty := NewEngine(Options{Quizzes: NewLibrary(&Quiz{Ref: "empty"})})
	_, err = empty.CreateSession(h.ctx, CreateRequest{QuizRef: "empty", HostIdentity: "host"})
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestEndGame(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")
	bob := h.join(t, pin, "bob")

	assert.ErrorIs(t, h.engine.EndGame(h.ctx, pin, "bob"), ErrNotHost)

	require.NoError(t, h.engine.EndGame(h.ctx, pin, "host"))

	ev, ok := bob.last(KindGameEnded)
	require.True(t, ok)
	ended := ev.(GameEndedEvent)
	assert.Equal(t, "ended", ended.Reason)
	require.Len(t, ended.Standings, 1)
	assert.Equal(t, "bob", ended.Standings[0].Identity)

	_, err := h.store.Get(h.ctx, pin)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, h.engine.EndGame(h.ctx, pin, "host"), ErrRoomNotFound)

	// A close arriving after the session is gone is harmless.
	h.engine.Disconnect(h.ctx, bob.ID())
}

func TestStandingsShareRanks(t *testing.T) {
	got := standings([]Player{
		{Identity: "a", Score: 500},
		{Identity: "b", Score: 900},
		{Identity: "c", Score: 500},
		{Identity: "d", Score: 100},
	})

	ranks := make(map[string]int)
	for _, s := range got {
		ranks[s.Identity] = s.Rank
	}
	assert.Equal(t, map[string]int{"b": 1, "a": 2, "c": 2, "d": 4}, ranks)
}
