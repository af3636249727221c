package quiz

import "github.com/rs/zerolog"

// Broadcaster fans events out to the transports registered for a session.
type Broadcaster struct {
	registry *Registry
	outbox   *Outbox
	log      zerolog.Logger
}

func NewBroadcaster(registry *Registry, outbox *Outbox, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		outbox:   outbox,
		log:      log,
	}
}

// BroadcastAll sends ev to every transport in pin and returns how many
// accepted it.
func (b *Broadcaster) BroadcastAll(pin string, ev Event) int {
	return b.BroadcastExceptSender(pin, "", ev)
}

// BroadcastExceptSender sends ev to every transport in pin but sender.
func (b *Broadcaster) BroadcastExceptSender(pin string, sender TransportID, ev Event) int {
	sent := 0
	for _, t := range b.registry.Transports(pin) {
		if sender != "" && t.ID() == sender {
			continue
		}
		if !t.Send(ev) {
			b.log.Warn().
				Str("pin", pin).
				Str("transport", string(t.ID())).
				Str("event", string(ev.Kind())).
				Msg("dropped event for slow or closed transport")
			continue
		}
		sent++
	}
	return sent
}

// Unicast sends ev to identity's current transport, if it has one.
func (b *Broadcaster) Unicast(pin, identity string, ev Event) bool {
	t, ok := b.registry.Current(pin, identity)
	if !ok {
		b.log.Debug().
			Str("pin", pin).
			Str("identity", identity).
			Str("event", string(ev.Kind())).
			Msg("no transport registered for unicast")
		return false
	}
	return t.Send(ev)
}

// BroadcastCritical sends ev to everyone and then records it in the outbox
// for each roster identity so that a player who missed it gets it on rejoin.
func (b *Broadcaster) BroadcastCritical(pin string, seq uint64, ev Event, roster []string) int {
	sent := b.BroadcastAll(pin, ev)
	for _, id := range roster {
		if err := b.outbox.Record(pin, id, seq, ev); err != nil {
			b.log.Error().Err(err).Str("pin", pin).Str("identity", id).Msg("outbox record failed")
		}
	}
	return sent
}
