package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	s := newSession("123456", testQuiz(), "host", "Hosty", false, time.Now())

	require.NoError(t, m.Create(ctx, s))
	assert.ErrorIs(t, m.Create(ctx, s), ErrPinTaken)

	got, err := m.Get(ctx, "123456")
	require.NoError(t, err)
	got.Players[0].Score = 999
	got.Answers["host"] = Submission{}

	again, err := m.Get(ctx, "123456")
	require.NoError(t, err)
	assert.Zero(t, again.Players[0].Score, "unsaved edits must not leak into the store")
	assert.Empty(t, again.Answers)

	require.NoError(t, m.Save(ctx, got))
	again, err = m.Get(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, 999, again.Players[0].Score)
}

func TestMemoryStoreMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.Get(ctx, "000000")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, m.Save(ctx, &Session{Pin: "000000"}), ErrRoomNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "000000"), ErrRoomNotFound)
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, pin := range []string{"222222", "111111"} {
		require.NoError(t, m.Create(ctx, newSession(pin, testQuiz(), "host", "", false, time.Now())))
	}

	pins, err := m.Pins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"111111", "222222"}, pins)

	require.NoError(t, m.Reset(ctx))
	pins, err = m.Pins(ctx)
	require.NoError(t, err)
	assert.Empty(t, pins)
}

func TestSessionExpectedAnswerers(t *testing.T) {
	s := newSession("123456", testQuiz(), "host", "Hosty", false, time.Now())
	s.Players = append(s.Players, Player{Identity: "bob"}, Player{Identity: "bot-1", IsBot: true})

	assert.Equal(t, []string{"bob", "bot-1"}, s.expected())
	assert.Equal(t, []string{"host", "bob"}, s.humans())

	s.Solo = true
	assert.Equal(t, []string{"host", "bob", "bot-1"}, s.expected())

	s.Players = s.Players[:1]
	s.Solo = false
	assert.False(t, s.allAnswered(), "nobody to wait for is not the same as everyone answered")
}
