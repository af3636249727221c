package quiz

import (
	"context"
	"time"
)

// Proposal asks to move the session out of phase From at question Index.
// Proposals that no longer match the session are dropped silently, so
// several peers whose timers fire together collapse into one transition.
type Proposal struct {
	From  Phase
	Index int
}

// timerSkew is how early a player's timer may fire and still be honoured.
const timerSkew = time.Second

// hostDriven lists the phases only the host may leave. The others are left
// on a client timer, which any seated player may report.
var hostDriven = map[Phase]bool{
	PhaseLobby:        true,
	PhaseAnswerReveal: true,
	PhaseLeaderboard:  true,
}

// Advance applies a transition proposal from actor. It reports whether the
// session actually moved.
func (e *Engine) Advance(ctx context.Context, pin, actor string, p Proposal) (bool, error) {
	unlock, err := e.lock(pin)
	if err != nil {
		return false, err
	}

	s, q, err := e.load(ctx, pin)
	if err != nil {
		unlock()
		return false, err
	}

	if s.Phase != p.From || s.QuestionIndex != p.Index {
		unlock()
		e.log.Debug().
			Str("pin", pin).
			Str("identity", actor).
			Str("proposed", string(p.From)).
			Int("index", p.Index).
			Str("phase", string(s.Phase)).
			Int("current", s.QuestionIndex).
			Msg("ignoring outdated transition")
		return false, nil
	}

	if hostDriven[s.Phase] && actor != s.HostIdentity {
		unlock()
		return false, ErrNotHost
	}
	if actor != s.HostIdentity && s.Player(actor) < 0 {
		unlock()
		return false, ErrUnknownPlayer
	}
	if deadline, ok := e.timerDeadline(s, q); ok && actor != s.HostIdentity && e.now().Before(deadline.Add(-timerSkew)) {
		unlock()
		e.log.Debug().
			Str("pin", pin).
			Str("identity", actor).
			Str("phase", string(s.Phase)).
			Time("deadline", deadline).
			Msg("ignoring early timer")
		return false, nil
	}

	var next Phase
	index := s.QuestionIndex
	switch s.Phase {
	case PhaseLobby:
		next, index = PhaseQuestionIntro, 0
	case PhaseQuestionIntro:
		next = PhaseQuestionActive
	case PhaseQuestionActive:
		next = PhaseAnswerReveal
	case PhaseAnswerReveal:
		next = PhaseLeaderboard
	case PhaseLeaderboard:
		if index+1 < len(q.Questions) {
			next, index = PhaseQuestionIntro, index+1
		} else {
			next = PhasePodium
		}
	default:
		unlock()
		return false, nil
	}

	final, err := e.enterPhase(ctx, s, q, next, index)
	unlock()
	if err != nil {
		return false, err
	}
	if final != nil {
		e.applyRewards(ctx, pin, final)
	}
	return true, nil
}

// enterPhase writes a phase change: persist, broadcast, then record the
// broadcast for every roster identity. Entering the podium returns the
// final standings the caller hands to the reward sink once unlocked.
func (e *Engine) enterPhase(ctx context.Context, s *Session, q *Quiz, next Phase, index int) ([]Standing, error) {
	now := e.now()
	from := s.Phase

	var results []ScoreLine
	var final []Standing

	switch next {
	case PhaseQuestionIntro:
		s.Joinable = false
		s.Answers = make(map[string]Submission)
	case PhaseQuestionActive:
		s.QuestionStartedAt = now
		s.Answers = make(map[string]Submission)
	case PhaseAnswerReveal:
		results = e.score(s, q.Questions[s.QuestionIndex])
		s.touch(now)
	case PhasePodium:
		if !s.RewardsEmitted {
			s.RewardsEmitted = true
			final = e.finalStandings(s)
		}
	}

	s.Phase = next
	s.PhaseStartedAt = now
	if index > s.QuestionIndex {
		s.QuestionIndex = index
	}
	s.PhaseSeq++

	if err := e.save(ctx, s); err != nil {
		return nil, err
	}

	ev := e.phaseEvent(s, q)
	e.bcast.BroadcastCritical(s.Pin, s.PhaseSeq, ev, s.replayTargets())
	if results != nil {
		e.bcast.BroadcastAll(s.Pin, ScoresEvent{Index: s.QuestionIndex, Results: results})
	}

	e.log.Info().
		Str("pin", s.Pin).
		Str("from", string(from)).
		Str("phase", string(next)).
		Int("index", s.QuestionIndex).
		Msg("phase changed")
	return final, nil
}

func (e *Engine) phaseEvent(s *Session, q *Quiz) PhaseEvent {
	ev := PhaseEvent{
		Pin:   s.Pin,
		Seq:   s.PhaseSeq,
		Phase: s.Phase,
		Index: s.QuestionIndex,
		Total: len(q.Questions),
	}

	if s.QuestionIndex >= len(q.Questions) {
		return ev
	}
	question := q.Questions[s.QuestionIndex]

	switch s.Phase {
	case PhaseQuestionIntro, PhaseQuestionActive:
		ev.Question = questionView(question, false)
	case PhaseAnswerReveal:
		ev.Question = questionView(question, true)
	}
	if deadline, ok := e.timerDeadline(s, q); ok {
		ev.Deadline = &deadline
	}
	return ev
}

// timerDeadline is when the current phase's client timer fires. Only the
// intro and the active question have one.
func (e *Engine) timerDeadline(s *Session, q *Quiz) (time.Time, bool) {
	if s.QuestionIndex >= len(q.Questions) {
		return time.Time{}, false
	}

	switch s.Phase {
	case PhaseQuestionIntro:
		return s.PhaseStartedAt.Add(e.introDelay), true
	case PhaseQuestionActive:
		limit := time.Duration(q.Questions[s.QuestionIndex].TimeLimitSeconds) * time.Second
		return s.QuestionStartedAt.Add(limit), true
	}
	return time.Time{}, false
}

// score runs the evaluator for every expected answerer of the active
// question and applies the awards to the roster.
func (e *Engine) score(s *Session, question Question) []ScoreLine {
	lines := make([]ScoreLine, 0, len(s.Players))
	for i := range s.Players {
		p := &s.Players[i]
		if !s.answersExpected(*p) {
			continue
		}

		sub, answered := s.Answers[p.Identity]
		award := Miss()
		if answered {
			award = Evaluate(question, sub.Answer, sub.Remaining, p.Streak)
		}

		p.Score += award.Points
		p.Streak = award.Streak
		p.LastAnswerCorrect = award.Correct
		p.LastPoints = award.Points

		lines = append(lines, ScoreLine{
			Identity: p.Identity,
			Award:    award,
			Total:    p.Score,
			Answered: answered,
		})
	}
	return lines
}

// revealIfComplete closes the active question once every expected player
// has answered. Must hold the session lock.
func (e *Engine) revealIfComplete(ctx context.Context, s *Session, q *Quiz) {
	if s.Phase != PhaseQuestionActive || !s.allAnswered() {
		return
	}
	if _, err := e.enterPhase(ctx, s, q, PhaseAnswerReveal, s.QuestionIndex); err != nil {
		e.log.Error().Err(err).Str("pin", s.Pin).Msg("auto reveal")
	}
}
