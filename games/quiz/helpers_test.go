package quiz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var transportSeq atomic.Int64

type fakeTransport struct {
	id TransportID

	mu     sync.Mutex
	events []Event
	dead   bool
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: TransportID(id)}
}

func (f *fakeTransport) ID() TransportID { return f.id }

func (f *fakeTransport) Send(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dead {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeTransport) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return !f.dead
}

func (f *fakeTransport) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dead = true
}

func (f *fakeTransport) count(kind EventKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, ev := range f.events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func (f *fakeTransport) last(kind EventKind) (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Kind() == kind {
			return f.events[i], true
		}
	}
	return nil, false
}

func (f *fakeTransport) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func testQuiz() *Quiz {
	return &Quiz{
		Ref:        "capitals",
		Title:      "Capitals",
		Owner:      "alice",
		Visibility: VisibilityPublic,
		Questions: []Question{
			{
				Type:             QuestionChoice,
				Prompt:           "Capital of France?",
				Options:          []string{"Berlin", "Paris", "Rome", "Madrid"},
				Correct:          CorrectSpec{Indices: []int{1}},
				TimeLimitSeconds: 20,
				Points:           PointsNormal,
			},
			{
				Type:             QuestionMulti,
				Prompt:           "Which are in Italy?",
				Options:          []string{"Rome", "Lyon", "Milan", "Porto"},
				Correct:          CorrectSpec{Indices: []int{0, 2}},
				TimeLimitSeconds: 30,
				Points:           PointsNormal,
			},
		},
	}
}

type harness struct {
	engine *Engine
	clock  *clock
	store  *MemoryStore
	ctx    context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	c := newClock()
	store := NewMemoryStore()
	e := NewEngine(Options{
		Store:   store,
		Quizzes: NewLibrary(testQuiz()),
		Now:     c.Now,
	})
	return &harness{engine: e, clock: c, store: store, ctx: context.Background()}
}

// create opens a session hosted by "host" and returns its pin.
func (h *harness) create(t *testing.T, solo bool) string {
	t.Helper()

	s, err := h.engine.CreateSession(h.ctx, CreateRequest{
		QuizRef:      "capitals",
		HostIdentity: "host",
		HostName:     "Hosty",
		Solo:         solo,
	})
	require.NoError(t, err)
	return s.Pin
}

func (h *harness) join(t *testing.T, pin, identity string) *fakeTransport {
	t.Helper()

	tr := newFakeTransport(fmt.Sprintf("%s-%d", identity, transportSeq.Add(1)))
	_, err := h.engine.Join(h.ctx, JoinRequest{
		Pin:         pin,
		Identity:    identity,
		DisplayName: identity,
		Host:        identity == "host",
		Transport:   tr,
	})
	require.NoError(t, err)
	return tr
}

func (h *harness) advance(t *testing.T, pin string, from Phase, index int) {
	t.Helper()

	moved, err := h.engine.Advance(h.ctx, pin, "host", Proposal{From: from, Index: index})
	require.NoError(t, err)
	require.True(t, moved)
}

func (h *harness) session(t *testing.T, pin string) *Session {
	t.Helper()

	s, err := h.store.Get(h.ctx, pin)
	require.NoError(t, err)
	return s
}

// startQuestion moves a fresh lobby to QUESTION_ACTIVE on question 0.
func (h *harness) startQuestion(t *testing.T, pin string) {
	t.Helper()

	h.advance(t, pin, PhaseLobby, 0)
	h.advance(t, pin, PhaseQuestionIntro, 0)
}
