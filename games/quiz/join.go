package quiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// JoinRequest is one transport announcing it wants a seat in a session.
type JoinRequest struct {
	Pin         string
	Identity    string
	DisplayName string
	// Host is the client's claim to be the session host. It is honoured
	// only when Identity matches the session's host identity.
	Host      bool
	Transport Transport
}

// Join seats the transport's identity in the session. Rejoining identities
// keep their seat and are sent any critical event they missed.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (SessionView, error) {
	if strings.TrimSpace(req.Identity) == "" || req.Transport == nil {
		return SessionView{}, fmt.Errorf("%w: join needs an identity", ErrInvalidCommand)
	}

	unlock, err := e.lock(req.Pin)
	if err != nil {
		return SessionView{}, err
	}
	defer unlock()

	s, q, err := e.load(ctx, req.Pin)
	if err != nil {
		return SessionView{}, err
	}

	isHost := req.Identity == s.HostIdentity
	if req.Host && !isHost {
		return SessionView{}, ErrNotHost
	}
	if s.Kicked[req.Identity] {
		return SessionView{}, ErrKicked
	}

	idx := s.Player(req.Identity)
	departed, wasHere := s.Departed[req.Identity]
	if !s.Joinable && idx < 0 && !isHost && !wasHere {
		return SessionView{}, ErrGameStarted
	}

	t := req.Transport
	if idx >= 0 {
		if cur, ok := e.registry.Current(s.Pin, req.Identity); ok && cur.ID() != t.ID() && cur.Alive() {
			return SessionView{}, ErrAlreadyJoined
		}
	}

	name := strings.TrimSpace(req.DisplayName)
	now := e.now()

	if idx >= 0 {
		p := &s.Players[idx]
		p.TransportHandle = t.ID()
		p.Connected = true
		if name != "" {
			p.DisplayName = name
		}
	} else {
		p := Player{
			Identity:        req.Identity,
			DisplayName:     name,
			IsHost:          isHost,
			Connected:       true,
			TransportHandle: t.ID(),
		}
		if wasHere {
			p.Score = departed.Score
			p.Streak = departed.Streak
			p.LastAnswerCorrect = departed.LastAnswerCorrect
			if p.DisplayName == "" {
				p.DisplayName = departed.DisplayName
			}
			delete(s.Departed, req.Identity)
		}
		if p.DisplayName == "" {
			p.DisplayName = "Player"
		}
		s.Players = append(s.Players, p)
	}
	s.touch(now)

	if err := e.save(ctx, s); err != nil {
		return SessionView{}, err
	}

	if prev := e.registry.Register(s.Pin, req.Identity, t); prev != nil {
		e.log.Debug().
			Str("pin", s.Pin).
			Str("identity", req.Identity).
			Str("transport", string(prev.ID())).
			Msg("seat taken over from dead transport")
	}

	view := viewOf(s, len(q.Questions))
	e.broadcastRoster(s)
	t.Send(SnapshotEvent{You: req.Identity, Session: view})
	if p, ok := e.outbox.Replay(s.Pin, req.Identity); ok {
		t.Send(p.Event)
	}

	e.log.Info().
		Str("pin", s.Pin).
		Str("identity", req.Identity).
		Bool("rejoin", idx >= 0 || wasHere).
		Msg("player joined")
	return view, nil
}

// Disconnect runs when a transport closes. Only the transport currently
// holding a seat may vacate it; a stale close is ignored.
func (e *Engine) Disconnect(ctx context.Context, id TransportID) {
	pin, identity, ok := e.registry.Lookup(id)
	if !ok {
		e.log.Debug().Str("transport", string(id)).Msg("disconnect from unbound transport")
		return
	}

	unlock, err := e.lock(pin)
	if err != nil {
		e.registry.UnregisterIfCurrent(pin, identity, id)
		return
	}
	defer unlock()

	if !e.registry.UnregisterIfCurrent(pin, identity, id) {
		e.log.Debug().
			Str("pin", pin).
			Str("identity", identity).
			Str("transport", string(id)).
			Msg("ignoring stale disconnect")
		return
	}

	s, q, err := e.load(ctx, pin)
	if err != nil {
		e.log.Error().Err(err).Str("pin", pin).Msg("disconnect: load session")
		return
	}

	idx := s.Player(identity)
	if idx < 0 {
		return
	}
	p := s.Players[idx]
	p.Connected = false
	p.TransportHandle = ""
	s.Departed[identity] = p
	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	s.touch(e.now())

	if err := e.save(ctx, s); err != nil {
		return
	}

	e.broadcastRoster(s)
	e.bcast.BroadcastAll(pin, DisconnectedEvent{Identity: identity})
	e.log.Info().Str("pin", pin).Str("identity", identity).Msg("player disconnected")

	e.revealIfComplete(ctx, s, q)
}

// RosterOp is a host roster edit.
type RosterOp string

const (
	RosterAddBot RosterOp = "add_bot"
	RosterRemove RosterOp = "remove"
	RosterRename RosterOp = "rename"
)

type RosterEdit struct {
	Op       RosterOp
	Identity string
	Name     string
}

// EditRoster applies a host roster edit and returns the affected identity.
func (e *Engine) EditRoster(ctx context.Context, pin, actor string, edit RosterEdit) (string, error) {
	unlock, err := e.lock(pin)
	if err != nil {
		return "", err
	}
	defer unlock()

	s, q, err := e.load(ctx, pin)
	if err != nil {
		return "", err
	}
	if actor != s.HostIdentity {
		return "", ErrNotHost
	}

	name := strings.TrimSpace(edit.Name)
	var kicked Transport
	target := edit.Identity

	switch edit.Op {
	case RosterAddBot:
		if !s.Joinable {
			return "", ErrGameStarted
		}
		target = "bot-" + uuid.NewString()
		if name == "" {
			name = "Bot"
		}
		s.Players = append(s.Players, Player{
			Identity:    target,
			DisplayName: name,
			IsBot:       true,
		})

	case RosterRemove:
		idx := s.Player(target)
		if idx < 0 {
			return "", ErrUnknownPlayer
		}
		if s.Players[idx].IsHost {
			return "", fmt.Errorf("%w: the host cannot be removed", ErrInvalidCommand)
		}
		if !s.Players[idx].IsBot {
			s.Kicked[target] = true
		}
		s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
		delete(s.Answers, target)
		if t, ok := e.registry.Current(pin, target); ok {
			kicked = t
		}

	case RosterRename:
		idx := s.Player(target)
		if idx < 0 {
			return "", ErrUnknownPlayer
		}
		if name == "" {
			return "", fmt.Errorf("%w: empty name", ErrInvalidCommand)
		}
		s.Players[idx].DisplayName = name

	default:
		return "", fmt.Errorf("%w: unknown roster op %q", ErrInvalidCommand, edit.Op)
	}

	s.touch(e.now())
	if err := e.save(ctx, s); err != nil {
		return "", err
	}

	if kicked != nil {
		e.registry.UnregisterIfCurrent(pin, target, kicked.ID())
		e.outbox.Consume(pin, target)
		kicked.Send(KickedEvent{Pin: pin})
	}
	e.broadcastRoster(s)

	e.log.Info().
		Str("pin", pin).
		Str("op", string(edit.Op)).
		Str("identity", target).
		Msg("roster edited")

	if edit.Op == RosterRemove {
		e.revealIfComplete(ctx, s, q)
	}
	return target, nil
}
