package quiz

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrAlreadyJoined    = errors.New("identity is already connected on another transport")
	ErrGameStarted      = errors.New("game already started")
	ErrNotHost          = errors.New("only the host may do that")
	ErrNotAccepting     = errors.New("session is not accepting answers")
	ErrAlreadyAnswered  = errors.New("answer already recorded for this question")
	ErrUnknownPlayer    = errors.New("player not in session")
	ErrKicked           = errors.New("removed from this session by the host")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrPinTaken         = errors.New("pin already in use")
	ErrPinsExhausted    = errors.New("no free pin available")
	ErrNotCritical      = errors.New("event kind is not recorded for replay")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotHostable  = errors.New("quiz cannot be hosted by this identity")
	ErrNoQuestions      = errors.New("quiz has no questions")
	ErrRateLimited      = errors.New("too many commands")
	ErrInvalidQuestion  = errors.New("invalid question")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// ErrorCode is the stable identifier sent to clients in ROOM_ERROR events.
type ErrorCode string

const (
	CodeRoomNotFound    ErrorCode = "ROOM_NOT_FOUND"
	CodeAlreadyJoined   ErrorCode = "ALREADY_JOINED"
	CodeGameStarted     ErrorCode = "GAME_ALREADY_STARTED"
	CodeNotHost         ErrorCode = "NOT_HOST"
	CodeNotAccepting    ErrorCode = "NOT_ACCEPTING_ANSWERS"
	CodeAlreadyAnswered ErrorCode = "ALREADY_ANSWERED"
	CodeUnknownPlayer   ErrorCode = "UNKNOWN_PLAYER"
	CodeKicked          ErrorCode = "KICKED"
	CodeInvalidCommand  ErrorCode = "INVALID_COMMAND"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeInternal        ErrorCode = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrAlreadyJoined, CodeAlreadyJoined},
	{ErrGameStarted, CodeGameStarted},
	{ErrNotHost, CodeNotHost},
	{ErrNotAccepting, CodeNotAccepting},
	{ErrAlreadyAnswered, CodeAlreadyAnswered},
	{ErrUnknownPlayer, CodeUnknownPlayer},
	{ErrKicked, CodeKicked},
	{ErrInvalidCommand, CodeInvalidCommand},
	{ErrRateLimited, CodeRateLimited},
}

// CodeFor maps an engine error onto the code reported to the offending
// transport. Anything unrecognised is a generic failure.
func CodeFor(err error) ErrorCode {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// ErrorEventFor builds the ROOM_ERROR event for err. Internal failures are
// not described to clients.
func ErrorEventFor(err error) ErrorEvent {
	code := CodeFor(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "something went wrong, please try again"
	}
	return ErrorEvent{Code: code, Message: msg}
}
