package rituals

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call to the Rituals cloud.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork      // transport failure, timeout, unreadable body
	KindDecode       // response was not the JSON we expect
	KindAuth         // login refused or session no longer valid
	KindStatus       // any other non-2xx reply
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindAuth:
		return "auth"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rituals %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindUnknown when err did not come from
// this package.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
