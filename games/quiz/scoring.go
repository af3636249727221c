package quiz

import (
	"math"
	"strings"
	"time"
)

// Answer is one player's raw submission. Only the field matching the
// question type is read.
type Answer struct {
	Choices  []int    `json:"choices,omitempty"`
	Sequence []string `json:"sequence,omitempty"`
	Text     string   `json:"text,omitempty"`
}

// Award is the outcome of scoring one answer.
type Award struct {
	Points   int     `json:"points"`
	Streak   int     `json:"streak"`
	Correct  bool    `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Budget returns the point budget for a weight tag, or -1 if unknown.
func Budget(w PointWeight) int {
	switch w {
	case PointsNormal, "":
		return 1000
	case PointsHalf:
		return 500
	case PointsDouble:
		return 2000
	case PointsNone:
		return 0
	}
	return -1
}

// Accuracy scores a against q in [0,1].
func Accuracy(q Question, a Answer) float64 {
	switch q.Type {
	case QuestionChoice, QuestionTrueFalse, QuestionMulti:
		return choiceAccuracy(q.Correct.Indices, a.Choices)
	case QuestionPuzzle:
		return sequenceAccuracy(q.Correct.Sequence, a.Sequence)
	case QuestionTypeAnswer:
		return textAccuracy(q.Correct.Accepted, a.Text)
	}
	return 0
}

// choiceAccuracy gives credit per correct option picked, but any wrong
// option voids the whole answer.
func choiceAccuracy(correct, selected []int) float64 {
	if len(correct) == 0 || len(selected) == 0 {
		return 0
	}

	want := make(map[int]bool, len(correct))
	for _, i := range correct {
		want[i] = true
	}

	hits := make(map[int]bool, len(selected))
	for _, i := range selected {
		if !want[i] {
			return 0
		}
		hits[i] = true
	}

	if len(want) == 1 {
		return 1
	}
	return float64(len(hits)) / float64(len(want))
}

func sequenceAccuracy(want, got []string) float64 {
	if len(want) != len(got) {
		return 0
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(want[i]), strings.TrimSpace(got[i])) {
			return 0
		}
	}
	return 1
}

func textAccuracy(accepted []string, text string) float64 {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return 0
	}
	for _, a := range accepted {
		if strings.ToLower(strings.TrimSpace(a)) == norm {
			return 1
		}
	}
	return 0
}

// Evaluate scores one answer. remaining is the time left on the question
// clock when the answer arrived; streak is the player's streak before this
// question.
func Evaluate(q Question, a Answer, remaining time.Duration, streak int) Award {
	acc := 0.0
	if !q.Type.Opinion() {
		acc = Accuracy(q, a)
	}

	budget := max(Budget(q.Points), 0)
	base := float64(budget) * 7 / 10
	bonus := float64(budget) * 3 / 10 * timeFraction(remaining, q.TimeLimitSeconds)

	award := Award{
		Points:   int(math.Floor(acc * (base + bonus))),
		Correct:  acc > 0,
		Accuracy: acc,
		Streak:   streak,
	}

	switch {
	case acc > 0.9:
		award.Streak = streak + 1
	case acc > 0:
	default:
		award.Streak = 0
	}
	return award
}

// Miss is the award for a player who never answered.
func Miss() Award {
	return Award{}
}

func timeFraction(remaining time.Duration, limitSeconds int) float64 {
	if limitSeconds <= 0 {
		return 0
	}
	f := remaining.Seconds() / float64(limitSeconds)
	return math.Min(math.Max(f, 0), 1)
}
