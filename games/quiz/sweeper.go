package quiz

import (
	"context"
	"time"
)

// SweepPolicy holds the three eviction thresholds.
type SweepPolicy struct {
	// EmptyAfter evicts sessions no human player has ever been in.
	EmptyAfter time.Duration
	// AbandonedAfter evicts sessions whose human players are all offline.
	AbandonedAfter time.Duration
	// MaxIdle evicts any session regardless of its roster.
	MaxIdle time.Duration
}

func DefaultSweepPolicy() SweepPolicy {
	return SweepPolicy{
		EmptyAfter:     10 * time.Minute,
		AbandonedAfter: 2 * time.Minute,
		MaxIdle:        30 * time.Minute,
	}
}

// Evict decides whether s should be deleted at now, and why.
func (p SweepPolicy) Evict(s *Session, now time.Time) (bool, string) {
	idle := now.Sub(s.LastActiveAt)

	humans, online := 0, 0
	for _, pl := range s.Players {
		if pl.IsBot {
			continue
		}
		humans++
		if pl.Connected {
			online++
		}
	}
	// Departed players were present once; they count as humans gone offline.
	for _, pl := range s.Departed {
		if !pl.IsBot {
			humans++
		}
	}

	switch {
	case humans == 0 && idle > p.EmptyAfter:
		return true, "empty"
	case humans > 0 && online == 0 && idle > p.AbandonedAfter:
		return true, "abandoned"
	case idle > p.MaxIdle:
		return true, "idle"
	}
	return false, ""
}

// Sweeper periodically deletes abandoned sessions.
type Sweeper struct {
	engine   *Engine
	policy   SweepPolicy
	interval time.Duration
}

func NewSweeper(engine *Engine, interval time.Duration, policy SweepPolicy) *Sweeper {
	return &Sweeper{
		engine:   engine,
		policy:   policy,
		interval: interval,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) {
	sw.Sweep(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.Sweep(ctx)
		}
	}
}

// Sweep checks every open session once and returns how many it deleted.
// A failure on one session does not stop the others from being checked.
func (sw *Sweeper) Sweep(ctx context.Context) int {
	e := sw.engine

	pins, err := e.store.Pins(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("sweep: list sessions")
		return 0
	}

	deleted := 0
	for _, pin := range pins {
		ok, err := sw.sweepOne(ctx, pin)
		if err != nil {
			e.log.Error().Err(err).Str("pin", pin).Msg("sweep session")
			continue
		}
		if ok {
			deleted++
		}
	}

	if deleted > 0 {
		e.log.Info().Int("deleted", deleted).Int("checked", len(pins)).Msg("sweep finished")
	}
	return deleted
}

// sweepOne holds the session lock only for this session's check.
func (sw *Sweeper) sweepOne(ctx context.Context, pin string) (bool, error) {
	e := sw.engine

	unlock, err := e.lock(pin)
	if err != nil {
		// Stored but never locked: left over from outside the engine.
		if s, gerr := e.store.Get(ctx, pin); gerr == nil {
			if evict, _ := sw.policy.Evict(s, e.now()); evict {
				return true, e.store.Delete(ctx, pin)
			}
		}
		return false, nil
	}
	defer unlock()

	s, err := e.store.Get(ctx, pin)
	if err != nil {
		return false, err
	}

	evict, reason := sw.policy.Evict(s, e.now())
	if !evict {
		return false, nil
	}
	if err := e.deleteLocked(ctx, pin, GameEndedEvent{Pin: pin, Reason: reason}); err != nil {
		return false, err
	}
	return true, nil
}
