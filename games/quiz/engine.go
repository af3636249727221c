package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultIntroDelay = 5 * time.Second

// Options configures an Engine. Zero values get in-memory defaults so tests
// can build isolated engines cheaply.
type Options struct {
	Store      Store
	Registry   *Registry
	Outbox     *Outbox
	Quizzes    QuizSource
	Rewards    RewardSink
	Logger     *zerolog.Logger
	Now        func() time.Time
	IntroDelay time.Duration
	PinDigits  int
}

// Engine keeps every connected client of a session converged on the
// session's state. All mutation of one session is serialised on that
// session's lock; different sessions never contend.
type Engine struct {
	store      Store
	registry   *Registry
	outbox     *Outbox
	bcast      *Broadcaster
	quizzes    QuizSource
	rewards    RewardSink
	log        zerolog.Logger
	now        func() time.Time
	introDelay time.Duration
	pinDigits  int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(opts Options) *Engine {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	e := &Engine{
		store:      opts.Store,
		registry:   opts.Registry,
		outbox:     opts.Outbox,
		quizzes:    opts.Quizzes,
		rewards:    opts.Rewards,
		log:        log,
		now:        opts.Now,
		introDelay: opts.IntroDelay,
		pinDigits:  opts.PinDigits,
		locks:      make(map[string]*sync.Mutex),
	}

	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.outbox == nil {
		e.outbox = NewOutbox()
	}
	if e.quizzes == nil {
		e.quizzes = NewLibrary()
	}
	if e.rewards == nil {
		e.rewards = LogRewardSink{Log: log}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.introDelay <= 0 {
		e.introDelay = defaultIntroDelay
	}
	if e.pinDigits == 0 {
		e.pinDigits = minPinDigits
	}

	e.bcast = NewBroadcaster(e.registry, e.outbox, log)
	return e
}

func (e *Engine) Registry() *Registry       { return e.registry }
func (e *Engine) Outbox() *Outbox           { return e.outbox }
func (e *Engine) Broadcaster() *Broadcaster { return e.bcast }

// Reset wipes every session. Nothing survives a restart, so the server
// calls this once before it starts accepting connections.
func (e *Engine) Reset(ctx context.Context) error {
	pins, err := e.store.Pins(ctx)
	if err != nil {
		return err
	}
	if err := e.store.Reset(ctx); err != nil {
		return err
	}
	for _, pin := range pins {
		e.registry.DropSession(pin)
		e.outbox.DropSession(pin)
	}

	e.mu.Lock()
	clear(e.locks)
	e.mu.Unlock()
	return nil
}

// lock acquires pin's session lock. It fails with ErrRoomNotFound when the
// session does not exist or was deleted while waiting.
func (e *Engine) lock(pin string) (func(), error) {
	e.mu.Lock()
	l, ok := e.locks[pin]
	e.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}

	l.Lock()

	e.mu.Lock()
	cur, ok := e.locks[pin]
	e.mu.Unlock()
	if !ok || cur != l {
		l.Unlock()
		return nil, ErrRoomNotFound
	}
	return l.Unlock, nil
}

// load reads the session and its quiz. Must hold pin's lock.
func (e *Engine) load(ctx context.Context, pin string) (*Session, *Quiz, error) {
	s, err := e.store.Get(ctx, pin)
	if err != nil {
		return nil, nil, err
	}
	q, err := e.quizzes.GetQuiz(ctx, s.QuizRef)
	if err != nil {
		return nil, nil, fmt.Errorf("load quiz %s: %w", s.QuizRef, err)
	}
	return s, q, nil
}

// save persists s. On failure nothing has been broadcast yet and the
// stored copy is still the last good state.
func (e *Engine) save(ctx context.Context, s *Session) error {
	if err := e.store.Save(ctx, s); err != nil {
		e.log.Error().Err(err).Str("pin", s.Pin).Msg("save session")
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// CreateRequest asks for a new session. Visibility must already have been
// checked with CheckHostable.
type CreateRequest struct {
	QuizRef      string
	HostIdentity string
	HostName     string
	Solo         bool
}

// CreateSession allocates a PIN and opens a lobby for the quiz. PINs are
// retried on collision with any open session.
func (e *Engine) CreateSession(ctx context.Context, req CreateRequest) (*Session, error) {
	if strings.TrimSpace(req.HostIdentity) == "" {
		return nil, fmt.Errorf("%w: missing host identity", ErrInvalidCommand)
	}

	q, err := e.quizzes.GetQuiz(ctx, req.QuizRef)
	if err != nil {
		return nil, err
	}
	if len(q.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	hostName := strings.TrimSpace(req.HostName)
	if hostName == "" {
		hostName = "Host"
	}

	for _, width := range pinWidths(e.pinDigits) {
		pin, err := NewPin(width)
		if err != nil {
			return nil, err
		}

		l := &sync.Mutex{}
		e.mu.Lock()
		if _, taken := e.locks[pin]; taken {
			e.mu.Unlock()
			continue
		}
		e.locks[pin] = l
		l.Lock()
		e.mu.Unlock()

		s := newSession(pin, q, req.HostIdentity, hostName, req.Solo, e.now())
		err = e.store.Create(ctx, s)
		if err != nil {
			e.mu.Lock()
			delete(e.locks, pin)
			e.mu.Unlock()
			l.Unlock()
			if errors.Is(err, ErrPinTaken) {
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		l.Unlock()

		e.log.Info().
			Str("pin", pin).
			Str("quiz", q.Ref).
			Str("host", req.HostIdentity).
			Msg("session created")
		return s, nil
	}
	return nil, ErrPinsExhausted
}

// Snapshot returns the read-only projection of the session at pin.
func (e *Engine) Snapshot(ctx context.Context, pin string) (SessionView, error) {
	unlock, err := e.lock(pin)
	if err != nil {
		return SessionView{}, err
	}
	defer unlock()

	s, q, err := e.load(ctx, pin)
	if err != nil {
		return SessionView{}, err
	}
	return viewOf(s, len(q.Questions)), nil
}

// EndGame lets the host close the session explicitly.
func (e *Engine) EndGame(ctx context.Context, pin, actor string) error {
	unlock, err := e.lock(pin)
	if err != nil {
		return err
	}

	s, err := e.store.Get(ctx, pin)
	if err != nil {
		unlock()
		return err
	}
	if actor != s.HostIdentity {
		unlock()
		return ErrNotHost
	}

	final := e.finalStandings(s)
	emit := !s.RewardsEmitted
	if err := e.deleteLocked(ctx, pin, GameEndedEvent{Pin: pin, Reason: "ended", Standings: final}); err != nil {
		unlock()
		return err
	}
	unlock()

	if emit {
		e.applyRewards(ctx, pin, final)
	}
	return nil
}

// deleteLocked removes the session and everything keyed by its pin. The
// caller holds pin's lock and releases it afterwards.
func (e *Engine) deleteLocked(ctx context.Context, pin string, farewell GameEndedEvent) error {
	if err := e.store.Delete(ctx, pin); err != nil && !errors.Is(err, ErrRoomNotFound) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	e.bcast.BroadcastAll(pin, farewell)
	e.registry.DropSession(pin)
	e.outbox.DropSession(pin)

	e.mu.Lock()
	delete(e.locks, pin)
	e.mu.Unlock()

	e.log.Info().Str("pin", pin).Str("reason", farewell.Reason).Msg("session deleted")
	return nil
}

// Ack consumes the pending critical event for identity if seq covers it.
func (e *Engine) Ack(pin, identity string, seq uint64) bool {
	return e.outbox.Acknowledge(pin, identity, seq)
}

func (e *Engine) finalStandings(s *Session) []Standing {
	players := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		if s.answersExpected(p) {
			players = append(players, p)
		}
	}
	return standings(players)
}

func (e *Engine) applyRewards(ctx context.Context, pin string, final []Standing) {
	if err := e.rewards.ApplyRewards(ctx, pin, final); err != nil {
		e.log.Error().Err(err).Str("pin", pin).Msg("apply rewards")
	}
}

func (e *Engine) broadcastRoster(s *Session) {
	e.bcast.BroadcastAll(s.Pin, RosterEvent{
		Pin:     s.Pin,
		Players: append([]Player(nil), s.Players...),
	})
}
