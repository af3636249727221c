package quiz

import (
	"context"
	"fmt"
	"time"
)

// AnswerRequest is one answer arriving from a transport. The host may
// answer on behalf of a bot by setting OnBehalfOf.
type AnswerRequest struct {
	Pin        string
	Identity   string
	OnBehalfOf string
	Index      int
	Answer     Answer
}

// SubmitAnswer records an answer for the active question and echoes it to
// every transport, the sender included. The question closes as soon as the
// last expected answer arrives.
func (e *Engine) SubmitAnswer(ctx context.Context, req AnswerRequest) error {
	unlock, err := e.lock(req.Pin)
	if err != nil {
		return err
	}
	defer unlock()

	s, q, err := e.load(ctx, req.Pin)
	if err != nil {
		return err
	}

	if s.Phase != PhaseQuestionActive || s.QuestionIndex != req.Index {
		return fmt.Errorf("%w: question %d is not open", ErrNotAccepting, req.Index)
	}

	who := req.Identity
	if req.OnBehalfOf != "" {
		if req.Identity != s.HostIdentity {
			return ErrNotHost
		}
		idx := s.Player(req.OnBehalfOf)
		if idx < 0 {
			return ErrUnknownPlayer
		}
		if !s.Players[idx].IsBot {
			return fmt.Errorf("%w: only bots can be answered for", ErrInvalidCommand)
		}
		who = req.OnBehalfOf
	}

	idx := s.Player(who)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	if !s.answersExpected(s.Players[idx]) {
		return fmt.Errorf("%w: the host does not answer", ErrInvalidCommand)
	}
	if _, dup := s.Answers[who]; dup {
		return ErrAlreadyAnswered
	}

	question := q.Questions[s.QuestionIndex]
	limit := time.Duration(question.TimeLimitSeconds) * time.Second
	remaining := max(limit-e.now().Sub(s.QuestionStartedAt), 0)

	s.Answers[who] = Submission{Answer: req.Answer, Remaining: remaining}
	if err := e.save(ctx, s); err != nil {
		return err
	}

	e.bcast.BroadcastAll(s.Pin, AnswerEvent{
		Identity: who,
		Index:    s.QuestionIndex,
		Answer:   req.Answer,
		Answered: len(s.Answers),
		Expected: len(s.expected()),
	})

	e.revealIfComplete(ctx, s, q)
	return nil
}
