package quiz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceFullGame(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")
	bob := h.join(t, pin, "bob")

	steps := []struct {
		from  Phase
		index int
		to    Phase
		next  int
	}{
		{PhaseLobby, 0, PhaseQuestionIntro, 0},
		{PhaseQuestionIntro, 0, PhaseQuestionActive, 0},
		{PhaseQuestionActive, 0, PhaseAnswerReveal, 0},
		{PhaseAnswerReveal, 0, PhaseLeaderboard, 0},
		{PhaseLeaderboard, 0, PhaseQuestionIntro, 1},
		{PhaseQuestionIntro, 1, PhaseQuestionActive, 1},
		{PhaseQuestionActive, 1, PhaseAnswerReveal, 1},
		{PhaseAnswerReveal, 1, PhaseLeaderboard, 1},
		{PhaseLeaderboard, 1, PhasePodium, 1},
	}

	for _, st := range steps {
		h.advance(t, pin, st.from, st.index)
		s := h.session(t, pin)
		assert.Equal(t, st.to, s.Phase)
		assert.Equal(t, st.next, s.QuestionIndex)

		ev, ok := bob.last(KindPhase)
		require.True(t, ok)
		assert.Equal(t, st.to, ev.(PhaseEvent).Phase)
		assert.Equal(t, s.PhaseSeq, ev.(PhaseEvent).Seq)
	}

	assert.Equal(t, len(steps), bob.count(KindPhase))

	moved, err := h.engine.Advance(h.ctx, pin, "host", Proposal{From: PhasePodium, Index: 1})
	require.NoError(t, err)
	assert.False(t, moved, "podium is terminal")
}

func TestAdvanceFlipsJoinable(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")

	assert.True(t, h.session(t, pin).Joinable)
	h.advance(t, pin, PhaseLobby, 0)
	assert.False(t, h.session(t, pin).Joinable)
}

func TestDuplicateProposalIsNoop(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")
	bob := h.join(t, pin, "bob")
	eve := h.join(t, pin, "eve")
	h.advance(t, pin, PhaseLobby, 0)

	before := bob.count(KindPhase)
	h.clock.Advance(defaultIntroDelay)

	// Every client's intro timer fires at once.
	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for _, who := range []string{"host", "bob", "eve"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			moved, err := h.engine.Advance(h.ctx, pin, who, Proposal{From: PhaseQuestionIntro, Index: 0})
			assert.NoError(t, err)
			results <- moved
		}()
	}
	wg.Wait()
	close(results)

	moves := 0
	for moved := range results {
		if moved {
			moves++
		}
	}
	assert.Equal(t, 1, moves)
	assert.Equal(t, before+1, bob.count(KindPhase), "one transition, one broadcast")
	assert.Equal(t, before+1, eve.count(KindPhase))
	assert.Equal(t, PhaseQuestionActive, h.session(t, pin).Phase)
}

func TestStaleProposalIgnored(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")
	h.startQuestion(t, pin)

	seq := h.session(t, pin).PhaseSeq
	moved, err := h.engine.Advance(h.ctx, pin, "host", Proposal{From: PhaseLobby, Index: 0})
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, seq, h.session(t, pin).PhaseSeq)
}

func TestHostDrivenPhases(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")
	h.join(t, pin, "bob")

	_, err := h.engine.Advance(h.ctx, pin, "bob", Proposal{From: PhaseLobby, Index: 0})
	assert.ErrorIs(t, err, ErrNotHost)

	h.advance(t, pin, PhaseLobby, 0)

	h.clock.Advance(defaultIntroDelay)
	moved, err := h.engine.Advance(h.ctx, pin, "bob", Proposal{From: PhaseQuestionIntro, Index: 0})
	require.NoError(t, err)
	assert.True(t, moved, "timer phases may be left by any seated player")

	_, err = h.engine.Advance(h.ctx, pin, "stranger", Proposal{From: PhaseQuestionActive, Index: 0})
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestEarlyTimerIgnored(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	h.join(t, pin, "host")
	bob := h.join(t, pin, "bob")
	h.advance(t, pin, PhaseLobby, 0)

	propose := func(from Phase) bool {
		t.Helper()
		moved, err := h.engine.Advance(h.ctx, pin, "bob", Proposal{From: from, Index: 0})
		require.NoError(t, err)
		return moved
	}

	assert.False(t, propose(PhaseQuestionIntro), "intro cannot be skipped")
	assert.Equal(t, PhaseQuestionIntro, h.session(t, pin).Phase)

	h.clock.Advance(defaultIntroDelay - timerSkew)
	require.True(t, propose(PhaseQuestionIntro), "a timer within the skew is honoured")

	before := bob.count(KindPhase)
	h.clock.Advance(time.Second)
	assert.False(t, propose(PhaseQuestionActive), "20s question closed after 1s")
	assert.Equal(t, PhaseQuestionActive, h.session(t, pin).Phase)
	assert.Equal(t, before, bob.count(KindPhase))

	h.clock.Advance(19 * time.Second)
	assert.True(t, propose(PhaseQuestionActive))
	assert.Equal(t, PhaseAnswerReveal, h.session(t, pin).Phase)
}

func TestPhaseEventDeadlines(t *testing.T) {
	h := newHarness(t)
	pin := h.create(t, false)
	host := h.join(t, pin, "host")

	h.advance(t, pin, PhaseLobby, 0)
	ev, _ := host.last(KindPhase)
	intro := ev.(PhaseEvent)
	require.NotNil(t, intro.Deadline)
	assert.Equal(t, h.clock.Now().Add(defaultIntroDelay), *intro.Deadline)
	require.NotNil(t, intro.Question)
	assert.Nil(t, intro.Question.Correct, "answers stay hidden until the reveal")

	h.clock.Advance(5 * time.Second)
	h.advance(t, pin, PhaseQuestionIntro, 0)
	ev, _ = host.last(KindPhase)
	active := ev.(PhaseEvent)
	require.NotNil(t, active.Deadline)
	assert.Equal(t, h.clock.Now().Add(20*time.Second), *active.Deadline)

	h.advance(t, pin, PhaseQuestionActive, 0)
	ev, _ = host.last(KindPhase)
	reveal := ev.(PhaseEvent)
	require.NotNil(t, reveal.Question.Correct)
	assert.Equal(t, []int{1}, reveal.Question.Correct.Indices)
}

func TestPodiumRewardsOnce(t *testing.T) {
	sink := &recordingSink{}
	c := newClock()
	store := NewMemoryStore()
	h := &harness{
		engine: NewEngine(Options{Store: store, Quizzes: NewLibrary(testQuiz()), Now: c.Now, Rewards: sink}),
		clock:  c,
		store:  store,
		ctx:    t.Context(),
	}

	pin := h.create(t, false)
	h.join(t, pin, "host")
	h.join(t, pin, "bob")

	for _, p := range []Proposal{
		{PhaseLobby, 0}, {PhaseQuestionIntro, 0}, {PhaseQuestionActive, 0}, {PhaseAnswerReveal, 0},
		{PhaseLeaderboard, 0}, {PhaseQuestionIntro, 1}, {PhaseQuestionActive, 1}, {PhaseAnswerReveal, 1},
		{PhaseLeaderboard, 1},
	} {
		h.advance(t, pin, p.From, p.Index)
	}

	require.Len(t, sink.calls, 1)
	require.Len(t, sink.calls[0], 1, "a host who does not answer is not ranked")
	assert.Equal(t, "bob", sink.calls[0][0].Identity)

	require.NoError(t, h.engine.EndGame(h.ctx, pin, "host"))
	assert.Len(t, sink.calls, 1, "ending after the podium does not reward twice")
}

type recordingSink struct {
	mu    sync.Mutex
	calls [][]Standing
}

func (r *recordingSink) ApplyRewards(_ context.Context, _ string, standings []Standing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, standings)
	return nil
}
