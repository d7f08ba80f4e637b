package llm

import (
	"errors"
	"strings"
)

// Error kinds. Every kind except ErrConfiguration belongs to the upstream
// family, so errors.Is(err, ErrUpstream) holds for all of them.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrUpstream        = errors.New("upstream error")
	ErrEmptyOutput     = errors.New("empty model output")
	ErrMalformedJSON   = errors.New("malformed JSON in model output")
	ErrRunNotCompleted = errors.New("run did not complete")
	ErrPollTimeout     = errors.New("run polling timed out")
)

// Error is a failure talking to the upstream service.
type Error struct {
	Kind  error    // one of the Err* kinds above
	Op    string   // operation that failed, e.g. "responses.create"
	State RunState // terminal run state, for ErrRunNotCompleted
	Err   error    // underlying cause, may be nil
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.Error())
	if e.State != "" {
		sb.WriteString(" (state ")
		sb.WriteString(string(e.State))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is places every non-configuration kind in the upstream family.
func (e *Error) Is(target error) bool {
	return target == ErrUpstream && e.Kind != ErrConfiguration
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsConfiguration reports whether err is a configuration failure.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsUpstream reports whether err belongs to the upstream family.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
