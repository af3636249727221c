package quiz

import (
	"fmt"
	"sync"
)

// Pending is the latest unacknowledged critical event for one player.
type Pending struct {
	Seq   uint64
	Event Event
}

// Outbox holds at most one pending critical event per (pin, identity).
// Recording a newer event replaces the older one.
type Outbox struct {
	mu      sync.Mutex
	entries map[string]map[string]Pending
}

func NewOutbox() *Outbox {
	return &Outbox{
		entries: make(map[string]map[string]Pending),
	}
}

// Record stores ev for identity, superseding anything already pending.
func (o *Outbox) Record(pin, identity string, seq uint64, ev Event) error {
	if !IsCritical(ev.Kind()) {
		return fmt.Errorf("%w: %s", ErrNotCritical, ev.Kind())
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	byID, ok := o.entries[pin]
	if !ok {
		byID = make(map[string]Pending)
		o.entries[pin] = byID
	}
	byID[identity] = Pending{Seq: seq, Event: ev}
	return nil
}

// Replay returns the pending event without removing it.
func (o *Outbox) Replay(pin, identity string) (Pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.entries[pin][identity]
	return p, ok
}

// Consume removes and returns the pending event.
func (o *Outbox) Consume(pin, identity string) (Pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.consumeLocked(pin, identity)
}

// Acknowledge consumes the pending event if seq covers it. Acks for an
// older event leave the newer one in place.
func (o *Outbox) Acknowledge(pin, identity string, seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.entries[pin][identity]
	if !ok || p.Seq > seq {
		return false
	}
	o.consumeLocked(pin, identity)
	return true
}

func (o *Outbox) consumeLocked(pin, identity string) (Pending, bool) {
	byID := o.entries[pin]
	p, ok := byID[identity]
	if !ok {
		return Pending{}, false
	}
	delete(byID, identity)
	if len(byID) == 0 {
		delete(o.entries, pin)
	}
	return p, true
}

// DropSession forgets everything pending for pin.
func (o *Outbox) DropSession(pin string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.entries, pin)
}
