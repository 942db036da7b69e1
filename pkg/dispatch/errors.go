package dispatch

import (
	"errors"
	"fmt"
)

// Texts shown to the invoking user.
const (
	MsgUnknownCommand = "Unknown command."
	MsgExpired        = "This interaction has expired."
	MsgFailed         = "Failed"
	MsgInternal       = "Internal server error."
)

var (
	// ErrAlreadyChained is returned when a context schedules a second continuation.
	ErrAlreadyChained = errors.New("context already chained")
	// ErrChainTooDeep is returned when a chain would exceed Config.MaxChainDepth.
	ErrChainTooDeep = errors.New("chain depth limit exceeded")
	// ErrChainAbandoned is returned when a chain cannot continue because its
	// message was deleted or the platform connection went away.
	ErrChainAbandoned = errors.New("chain abandoned")
	// ErrEventStreamClosed is returned by Run when the platform stops delivering events.
	ErrEventStreamClosed = errors.New("event stream closed")
	// ErrModalUnavailable is returned when a context cannot answer with a
	// modal: the interaction was already acknowledged, the event kind does
	// not allow one, or the platform has no modals.
	ErrModalUnavailable = errors.New("modal unavailable")
	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("invalid engine config")
)

// UserError is an application error whose message is shown to the user.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Message == "" {
		return MsgFailed
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

// Fail returns a UserError with a formatted message.
func Fail(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// userMessage converts a handler error into the text the user sees.
func userMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	return MsgInternal
}
