package quiz

import (
	"encoding/json"
	"fmt"
)

// Envelope is the frame every server event travels in.
type Envelope struct {
	Type EventKind `json:"type"`
	Data Event     `json:"data"`
}

// Encode frames ev for the wire.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(Envelope{Type: ev.Kind(), Data: ev})
}

// CommandType tags a client-to-server message.
type CommandType string

const (
	CmdJoin    CommandType = "join"
	CmdAnswer  CommandType = "answer"
	CmdAdvance CommandType = "advance"
	CmdRoster  CommandType = "roster"
	CmdAck     CommandType = "ack"
	CmdEnd     CommandType = "end"
)

// Command is one decoded client message.
type Command interface {
	Type() CommandType
}

type JoinCommand struct {
	Identity string `json:"identity,omitempty"`
	Name     string `json:"name"`
	Host     bool   `json:"host"`
}

type AnswerCommand struct {
	Index  int    `json:"index"`
	Answer Answer `json:"answer"`
	// As names the bot the host is answering for.
	As string `json:"as,omitempty"`
}

type AdvanceCommand struct {
	From  Phase `json:"from"`
	Index int   `json:"index"`
}

type RosterCommand struct {
	Op       RosterOp `json:"op"`
	Identity string   `json:"identity,omitempty"`
	Name     string   `json:"name,omitempty"`
}

type AckCommand struct {
	Seq uint64 `json:"seq"`
}

type EndCommand struct{}

func (JoinCommand) Type() CommandType    { return CmdJoin }
func (AnswerCommand) Type() CommandType  { return CmdAnswer }
func (AdvanceCommand) Type() CommandType { return CmdAdvance }
func (RosterCommand) Type() CommandType  { return CmdRoster }
func (AckCommand) Type() CommandType     { return CmdAck }
func (EndCommand) Type() CommandType     { return CmdEnd }

// DecodeCommand parses a flat {"type": ..., ...} client message.
func DecodeCommand(data []byte) (Command, error) {
	var head struct {
		Type CommandType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	var cmd Command
	var err error
	switch head.Type {
	case CmdJoin:
		var c JoinCommand
		err = json.Unmarshal(data, &c)
		cmd = c
	case CmdAnswer:
		var c AnswerCommand
		err = json.Unmarshal(data, &c)
		cmd = c
	case CmdAdvance:
		var c AdvanceCommand
		err = json.Unmarshal(data, &c)
		cmd = c
	case CmdRoster:
		var c RosterCommand
		err = json.Unmarshal(data, &c)
		cmd = c
	case CmdAck:
		var c AckCommand
		err = json.Unmarshal(data, &c)
		cmd = c
	case CmdEnd:
		cmd = EndCommand{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return cmd, nil
}
