package quiz

import (
	"context"
	"fmt"
	"strings"
)

// QuestionType selects the comparator used to score an answer.
type QuestionType string

const (
	QuestionChoice     QuestionType = "QUIZ"
	QuestionTrueFalse  QuestionType = "TRUE_FALSE"
	QuestionMulti      QuestionType = "MULTI_SELECT"
	QuestionPuzzle     QuestionType = "PUZZLE"
	QuestionTypeAnswer QuestionType = "TYPE_ANSWER"
	QuestionPoll       QuestionType = "POLL"
	QuestionWordCloud  QuestionType = "WORD_CLOUD"
)

// Opinion reports whether the question type has no correct answer.
func (t QuestionType) Opinion() bool {
	return t == QuestionPoll || t == QuestionWordCloud
}

func (t QuestionType) known() bool {
	switch t {
	case QuestionChoice, QuestionTrueFalse, QuestionMulti, QuestionPuzzle,
		QuestionTypeAnswer, QuestionPoll, QuestionWordCloud:
		return true
	}
	return false
}

// PointWeight is the per-question point budget tag.
type PointWeight string

const (
	PointsNormal PointWeight = "NORMAL"
	PointsHalf   PointWeight = "HALF"
	PointsDouble PointWeight = "DOUBLE"
	PointsNone   PointWeight = "NONE"
)

// Visibility controls who may host a quiz.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityDraft   Visibility = "DRAFT"
)

// CorrectSpec describes the accepted answer for each question type:
// Indices for choice questions, Sequence for puzzles and Accepted for free
// text. Opinion questions leave it empty.
type CorrectSpec struct {
	Indices  []int    `yaml:"indices,omitempty" json:"indices,omitempty"`
	Sequence []string `yaml:"sequence,omitempty" json:"sequence,omitempty"`
	Accepted []string `yaml:"accepted,omitempty" json:"accepted,omitempty"`
}

type Question struct {
	Type             QuestionType `yaml:"type" json:"type"`
	Prompt           string       `yaml:"prompt" json:"prompt"`
	Options          []string     `yaml:"options,omitempty" json:"options,omitempty"`
	Correct          CorrectSpec  `yaml:"correct" json:"correct"`
	TimeLimitSeconds int          `yaml:"timeLimit" json:"timeLimit"`
	Points           PointWeight  `yaml:"points" json:"points"`
}

func (q *Question) validate() error {
	if q.Points == "" {
		q.Points = PointsNormal
	}
	if !q.Type.known() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, q.Type)
	}
	if Budget(q.Points) < 0 {
		return fmt.Errorf("%w: unknown point weight %q", ErrInvalidQuestion, q.Points)
	}
	if q.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidQuestion)
	}

	switch q.Type {
	case QuestionChoice, QuestionTrueFalse, QuestionMulti:
		if len(q.Correct.Indices) == 0 {
			return fmt.Errorf("%w: no correct option", ErrInvalidQuestion)
		}
		for _, i := range q.Correct.Indices {
			if i < 0 || i >= len(q.Options) {
				return fmt.Errorf("%w: correct index %d out of range", ErrInvalidQuestion, i)
			}
		}
	case QuestionPuzzle:
		if len(q.Correct.Sequence) == 0 {
			return fmt.Errorf("%w: empty puzzle sequence", ErrInvalidQuestion)
		}
	case QuestionTypeAnswer:
		if len(q.Correct.Accepted) == 0 {
			return fmt.Errorf("%w: no accepted answers", ErrInvalidQuestion)
		}
	}
	return nil
}

// Quiz is the externally owned quiz document the engine plays through.
type Quiz struct {
	Ref        string     `yaml:"ref" json:"ref"`
	Title      string     `yaml:"title" json:"title"`
	Owner      string     `yaml:"owner" json:"owner"`
	Visibility Visibility `yaml:"visibility" json:"visibility"`
	Questions  []Question `yaml:"questions" json:"questions"`
}

// Validate normalises defaults and checks every question.
func (q *Quiz) Validate() error {
	if strings.TrimSpace(q.Ref) == "" {
		return fmt.Errorf("%w: missing ref", ErrInvalidQuestion)
	}
	if q.Visibility == "" {
		q.Visibility = VisibilityPublic
	}
	for i := range q.Questions {
		if err := q.Questions[i].validate(); err != nil {
			return fmt.Errorf("quiz %s question %d: %w", q.Ref, i, err)
		}
	}
	return nil
}

// QuizSource looks up quiz documents by reference.
type QuizSource interface {
	GetQuiz(ctx context.Context, ref string) (*Quiz, error)
}

// CheckHostable is the caller-side gate run before a session is created:
// drafts can never be hosted and private quizzes only by their owner.
func CheckHostable(q *Quiz, identity string) error {
	switch q.Visibility {
	case VisibilityDraft:
		return fmt.Errorf("%w: quiz %s is a draft", ErrQuizNotHostable, q.Ref)
	case VisibilityPrivate:
		if q.Owner != identity {
			return fmt.Errorf("%w: quiz %s is private", ErrQuizNotHostable, q.Ref)
		}
	}
	return nil
}
