package quiz

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
)

// Standing is one line of the final results handed to the reward service.
type Standing struct {
	Rank        int    `json:"rank"`
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	IsBot       bool   `json:"isBot"`
}

// RewardSink applies persistent rewards (XP, coins) once a game finishes.
type RewardSink interface {
	ApplyRewards(ctx context.Context, pin string, standings []Standing) error
}

// LogRewardSink only logs the standings.
type LogRewardSink struct {
	Log zerolog.Logger
}

func (l LogRewardSink) ApplyRewards(_ context.Context, pin string, standings []Standing) error {
	for _, s := range standings {
		l.Log.Info().
			Str("pin", pin).
			Int("rank", s.Rank).
			Str("identity", s.Identity).
			Int("score", s.Score).
			Msg("final standing")
	}
	return nil
}

// standings ranks the roster by score. Ties share a rank; bots are listed
// but the reward service is expected to skip them.
func standings(players []Player) []Standing {
	out := make([]Standing, 0, len(players))
	for _, p := range players {
		out = append(out, Standing{
			Identity:    p.Identity,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			IsBot:       p.IsBot,
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})

	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}
