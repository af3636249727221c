package quiz

import (
	"slices"
	"time"
)

// EventKind tags every server-to-client event.
type EventKind string

const (
	KindSnapshot     EventKind = "SESSION_SNAPSHOT"
	KindRoster       EventKind = "ROSTER_UPDATED"
	KindPhase        EventKind = "PHASE_CHANGED"
	KindAnswer       EventKind = "ANSWER_SUBMITTED"
	KindScores       EventKind = "SCORES_UPDATED"
	KindDisconnected EventKind = "PLAYER_DISCONNECTED"
	KindError        EventKind = "ROOM_ERROR"
	KindKicked       EventKind = "KICKED"
	KindGameEnded    EventKind = "GAME_ENDED"
)

// criticalKinds is the closed set of kinds the outbox may hold.
var criticalKinds = map[EventKind]bool{
	KindPhase: true,
}

// IsCritical reports whether events of kind k are replayed on rejoin.
func IsCritical(k EventKind) bool {
	return criticalKinds[k]
}

// Event is implemented by each payload type below and nothing else.
type Event interface {
	Kind() EventKind
	event()
}

// SessionView is the read-only projection of a Session sent to clients.
type SessionView struct {
	Pin            string    `json:"pin"`
	QuizRef        string    `json:"quizRef"`
	HostIdentity   string    `json:"hostIdentity,omitempty"`
	Solo           bool      `json:"solo"`
	Players        []Player  `json:"players"`
	Phase          Phase     `json:"phase"`
	QuestionIndex  int       `json:"questionIndex"`
	TotalQuestions int       `json:"totalQuestions"`
	Joinable       bool      `json:"joinable"`
	PhaseSeq       uint64    `json:"phaseSeq"`
	Answered       int       `json:"answered"`
	Expected       int       `json:"expected"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActiveAt   time.Time `json:"lastActiveAt"`
}

func viewOf(s *Session, total int) SessionView {
	return SessionView{
		Pin:            s.Pin,
		QuizRef:        s.QuizRef,
		HostIdentity:   s.HostIdentity,
		Solo:           s.Solo,
		Players:        append([]Player(nil), s.Players...),
		Phase:          s.Phase,
		QuestionIndex:  s.QuestionIndex,
		TotalQuestions: total,
		Joinable:       s.Joinable,
		PhaseSeq:       s.PhaseSeq,
		Answered:       len(s.Answers),
		Expected:       len(s.expected()),
		CreatedAt:      s.CreatedAt,
		LastActiveAt:   s.LastActiveAt,
	}
}

// Anonymous strips identities from v for readers outside the session.
// Identities double as seat credentials, so they are never published.
func (v SessionView) Anonymous() SessionView {
	v.HostIdentity = ""
	v.Players = slices.Clone(v.Players)
	for i := range v.Players {
		v.Players[i].Identity = ""
	}
	return v
}

// QuestionView is a question as shown to players. Correct is only filled
// in once the answer has been revealed.
type QuestionView struct {
	Type             QuestionType `json:"type"`
	Prompt           string       `json:"prompt"`
	Options          []string     `json:"options,omitempty"`
	TimeLimitSeconds int          `json:"timeLimit"`
	Points           PointWeight  `json:"points"`
	Correct          *CorrectSpec `json:"correct,omitempty"`
}

func questionView(q Question, reveal bool) *QuestionView {
	v := &QuestionView{
		Type:             q.Type,
		Prompt:           q.Prompt,
		Options:          q.Options,
		TimeLimitSeconds: q.TimeLimitSeconds,
		Points:           q.Points,
	}
	if reveal {
		c := q.Correct
		v.Correct = &c
	}
	return v
}

type SnapshotEvent struct {
	You     string      `json:"you"`
	Session SessionView `json:"session"`
}

type RosterEvent struct {
	Pin     string   `json:"pin"`
	Players []Player `json:"players"`
}

type PhaseEvent struct {
	Pin      string        `json:"pin"`
	Seq      uint64        `json:"seq"`
	Phase    Phase         `json:"phase"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Question *QuestionView `json:"question,omitempty"`
	// Deadline is when the current phase's client timer fires, if it has one.
	Deadline *time.Time `json:"deadline,omitempty"`
}

type AnswerEvent struct {
	Identity string `json:"identity"`
	Index    int    `json:"index"`
	Answer   Answer `json:"answer"`
	Answered int    `json:"answered"`
	Expected int    `json:"expected"`
}

type ScoreLine struct {
	Identity string `json:"identity"`
	Award
	Total    int  `json:"total"`
	Answered bool `json:"answered"`
}

type ScoresEvent struct {
	Index   int         `json:"index"`
	Results []ScoreLine `json:"results"`
}

type DisconnectedEvent struct {
	Identity string `json:"identity"`
}

type ErrorEvent struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type KickedEvent struct {
	Pin string `json:"pin"`
}

type GameEndedEvent struct {
	Pin       string     `json:"pin"`
	Reason    string     `json:"reason"`
	Standings []Standing `json:"standings,omitempty"`
}

func (SnapshotEvent) Kind() EventKind     { return KindSnapshot }
func (RosterEvent) Kind() EventKind       { return KindRoster }
func (PhaseEvent) Kind() EventKind        { return KindPhase }
func (AnswerEvent) Kind() EventKind       { return KindAnswer }
func (ScoresEvent) Kind() EventKind       { return KindScores }
func (DisconnectedEvent) Kind() EventKind { return KindDisconnected }
func (ErrorEvent) Kind() EventKind        { return KindError }
func (KickedEvent) Kind() EventKind       { return KindKicked }
func (GameEndedEvent) Kind() EventKind    { return KindGameEnded }

func (SnapshotEvent) event()     {}
func (RosterEvent) event()       {}
func (PhaseEvent) event()        {}
func (AnswerEvent) event()       {}
func (ScoresEvent) event()       {}
func (DisconnectedEvent) event() {}
func (ErrorEvent) event()        {}
func (KickedEvent) event()       {}
func (GameEndedEvent) event()    {}
