package quiz

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

// Phase is a state of the game state machine.
type Phase string

const (
	PhaseLobby          Phase = "LOBBY"
	PhaseQuestionIntro  Phase = "QUESTION_INTRO"
	PhaseQuestionActive Phase = "QUESTION_ACTIVE"
	PhaseAnswerReveal   Phase = "ANSWER_REVEAL"
	PhaseLeaderboard    Phase = "LEADERBOARD"
	PhasePodium         Phase = "PODIUM"
)

type Player struct {
	Identity          string `json:"identity,omitempty"`
	DisplayName       string `json:"displayName"`
	IsBot             bool   `json:"isBot"`
	IsHost            bool   `json:"isHost"`
	Score             int    `json:"score"`
	Streak            int    `json:"streak"`
	LastAnswerCorrect bool   `json:"lastAnswerCorrect"`
	LastPoints        int    `json:"lastPoints"`
	Connected         bool   `json:"connected"`

	// TransportHandle is the last transport that joined as this identity.
	TransportHandle TransportID `json:"-"`
}

// Submission is an answer held for the active question.
type Submission struct {
	Answer    Answer        `json:"answer"`
	Remaining time.Duration `json:"remaining"`
}

// Session is the record kept per PIN. Stores hand out copies; callers
// mutate their copy and Save it back.
type Session struct {
	Pin           string   `json:"pin"`
	QuizRef       string   `json:"quizRef"`
	HostIdentity  string   `json:"hostIdentity"`
	Solo          bool     `json:"solo"`
	Players       []Player `json:"players"`
	Phase         Phase    `json:"phase"`
	QuestionIndex int      `json:"questionIndex"`
	Joinable      bool     `json:"joinable"`

	// PhaseSeq increases with every phase write and is what clients ack.
	PhaseSeq          uint64                `json:"phaseSeq"`
	PhaseStartedAt    time.Time             `json:"phaseStartedAt"`
	QuestionStartedAt time.Time             `json:"questionStartedAt"`
	Answers           map[string]Submission `json:"-"`
	Departed          map[string]Player     `json:"-"`
	Kicked            map[string]bool       `json:"-"`
	RewardsEmitted    bool                  `json:"-"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

func newSession(pin string, q *Quiz, host, hostName string, solo bool, now time.Time) *Session {
	return &Session{
		Pin:          pin,
		QuizRef:      q.Ref,
		HostIdentity: host,
		Solo:         solo,
		Players: []Player{{
			Identity:    host,
			DisplayName: hostName,
			IsHost:      true,
		}},
		Phase:          PhaseLobby,
		Joinable:       true,
		Answers:        make(map[string]Submission),
		Departed:       make(map[string]Player),
		Kicked:         make(map[string]bool),
		PhaseStartedAt: now,
		CreatedAt:      now,
		LastActiveAt:   now,
	}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	c.Players = slices.Clone(s.Players)
	c.Answers = maps.Clone(s.Answers)
	c.Departed = maps.Clone(s.Departed)
	c.Kicked = maps.Clone(s.Kicked)
	if c.Answers == nil {
		c.Answers = make(map[string]Submission)
	}
	if c.Departed == nil {
		c.Departed = make(map[string]Player)
	}
	if c.Kicked == nil {
		c.Kicked = make(map[string]bool)
	}
	return &c
}

// Player returns the index of identity in the roster, or -1.
func (s *Session) Player(identity string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool {
		return p.Identity == identity
	})
}

// answersExpected reports whether p must answer before the question closes.
func (s *Session) answersExpected(p Player) bool {
	return !p.IsHost || s.Solo
}

// expected lists the identities whose answers close the active question.
func (s *Session) expected() []string {
	ids := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if s.answersExpected(p) {
			ids = append(ids, p.Identity)
		}
	}
	return ids
}

func (s *Session) allAnswered() bool {
	ids := s.expected()
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := s.Answers[id]; !ok {
			return false
		}
	}
	return true
}

// humans lists the roster identities that can hold a transport.
func (s *Session) humans() []string {
	ids := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.IsBot {
			ids = append(ids, p.Identity)
		}
	}
	return ids
}

// replayTargets lists everyone who should be able to catch up on a missed
// phase change: seated humans plus players who left and may come back.
func (s *Session) replayTargets() []string {
	ids := s.humans()
	for id, p := range s.Departed {
		if !p.IsBot {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Session) touch(now time.Time) {
	if now.After(s.LastActiveAt) {
		s.LastActiveAt = now
	}
}

// Store keeps sessions for the lifetime of the process.
type Store interface {
	// Create inserts s, failing with ErrPinTaken if its PIN is in use.
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, pin string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, pin string) error
	Pins(ctx context.Context) ([]string, error)
	// Reset drops every session; called once at startup.
	Reset(ctx context.Context) error
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.Pin]; exists {
		return ErrPinTaken
	}
	m.sessions[s.Pin] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, pin string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[pin]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.Pin]; !ok {
		return ErrRoomNotFound
	}
	m.sessions[s.Pin] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, pin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[pin]; !ok {
		return ErrRoomNotFound
	}
	delete(m.sessions, pin)
	return nil
}

func (m *MemoryStore) Pins(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pins := make([]string, 0, len(m.sessions))
	for pin := range m.sessions {
		pins = append(pins, pin)
	}
	sort.Strings(pins)
	return pins, nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.sessions)
	return nil
}
