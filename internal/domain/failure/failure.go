// Package failure tags engine and evaluator errors with a kind so callers
// can decide, statically, whether to absorb or propagate them.
package failure

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is against these.
var (
	// ErrInactiveIncubation is returned by poll or stop while the engine is idle.
	ErrInactiveIncubation = errors.New("inactive incubation")
	// ErrUnterminatedSession means an open session reached the evaluator.
	ErrUnterminatedSession = errors.New("unterminated session")
	// ErrNotConfigured means a collaborator was not wired before use.
	ErrNotConfigured = errors.New("engine not configured")
)

// Kind classifies an error.
type Kind int

// Error kinds.
const (
	KindNone Kind = iota
	KindInactiveIncubation
	KindUnterminatedSession
	KindNotConfigured
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInactiveIncubation:
		return "inactive_incubation"
	case KindUnterminatedSession:
		return "unterminated_session"
	case KindNotConfigured:
		return "not_configured"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a periodic caller should treat the error as
// "nothing to do this tick". Only an idle engine qualifies.
func (k Kind) Recoverable() bool {
	return k == KindNone || k == KindInactiveIncubation
}

// Error carries the failing operation, its kind and an optional cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an error of the given kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind returns an error of the given kind raised by op with cause err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Classify maps err to its kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInactiveIncubation):
		return KindInactiveIncubation
	case errors.Is(err, ErrUnterminatedSession):
		return KindUnterminatedSession
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	default:
		return KindUnknown
	}
}
