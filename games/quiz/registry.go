package quiz

import "sync"

// TransportID names one live connection. A reconnect always gets a new one.
type TransportID string

// Transport is a live connection that events can be pushed to.
type Transport interface {
	ID() TransportID
	// Send queues ev without blocking. It returns false if the transport is
	// gone or cannot keep up.
	Send(ev Event) bool
	// Alive reports whether the connection is still open.
	Alive() bool
}

type binding struct {
	pin      string
	identity string
}

// Registry maps (pin, identity) to the identity's current transport. It is
// never persisted; callers sync Player.Connected themselves.
type Registry struct {
	mu          sync.RWMutex
	byPin       map[string]map[string]Transport
	byTransport map[TransportID]binding
}

func NewRegistry() *Registry {
	return &Registry{
		byPin:       make(map[string]map[string]Transport),
		byTransport: make(map[TransportID]binding),
	}
}

// Register makes t the current transport for identity in pin and returns
// the transport it replaced, if any.
func (r *Registry) Register(pin, identity string, t Transport) Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byTransport[t.ID()]; ok && old != (binding{pin, identity}) {
		r.unbindLocked(old, t.ID())
	}

	conns, ok := r.byPin[pin]
	if !ok {
		conns = make(map[string]Transport)
		r.byPin[pin] = conns
	}

	prev := conns[identity]
	if prev != nil && prev.ID() != t.ID() {
		delete(r.byTransport, prev.ID())
	} else {
		prev = nil
	}

	conns[identity] = t
	r.byTransport[t.ID()] = binding{pin: pin, identity: identity}
	return prev
}

// Current returns the transport registered for identity in pin.
func (r *Registry) Current(pin, identity string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byPin[pin][identity]
	return t, ok
}

// Lookup resolves a transport back to the seat it holds.
func (r *Registry) Lookup(id TransportID) (pin, identity string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byTransport[id]
	return b.pin, b.identity, ok
}

// UnregisterIfCurrent clears the mapping only if id is still the transport
// recorded for identity. A false return means the seat was already taken
// over by a newer transport.
func (r *Registry) UnregisterIfCurrent(pin, identity string, id TransportID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byPin[pin][identity]
	if !ok || cur.ID() != id {
		return false
	}
	r.unbindLocked(binding{pin, identity}, id)
	return true
}

func (r *Registry) unbindLocked(b binding, id TransportID) {
	delete(r.byTransport, id)
	conns := r.byPin[b.pin]
	if cur, ok := conns[b.identity]; ok && cur.ID() == id {
		delete(conns, b.identity)
	}
	if len(conns) == 0 {
		delete(r.byPin, b.pin)
	}
}

// Transports returns every transport registered for pin.
func (r *Registry) Transports(pin string) []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byPin[pin]
	out := make([]Transport, 0, len(conns))
	for _, t := range conns {
		out = append(out, t)
	}
	return out
}

// DropSession forgets every transport registered for pin.
func (r *Registry) DropSession(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.byPin[pin] {
		delete(r.byTransport, t.ID())
	}
	delete(r.byPin, pin)
}
