// Package schederr defines the error kinds surfaced by the scheduling core.
// Callers match on kind with errors.Is against the sentinels below; the HTTP
// adapter is the only place kinds are translated into status codes.
package schederr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindSlotUnavailable
	KindOutOfHorizon
	KindIllegalTransition
	KindAlreadyCancelled
	KindBusy
	KindBackendUnavailable
	KindNotFound
	KindDoctorNotScheduled
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindValidation:         "validation_error",
	KindSlotUnavailable:    "slot_unavailable",
	KindOutOfHorizon:       "out_of_horizon",
	KindIllegalTransition:  "illegal_transition",
	KindAlreadyCancelled:   "already_cancelled",
	KindBusy:               "busy",
	KindBackendUnavailable: "backend_unavailable",
	KindNotFound:           "not_found",
	KindDoctorNotScheduled: "doctor_not_scheduled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrSlotUnavailable    = &Error{Kind: KindSlotUnavailable}
	ErrOutOfHorizon       = &Error{Kind: KindOutOfHorizon}
	ErrIllegalTransition  = &Error{Kind: KindIllegalTransition}
	ErrAlreadyCancelled   = &Error{Kind: KindAlreadyCancelled}
	ErrBusy               = &Error{Kind: KindBusy}
	ErrBackendUnavailable = &Error{Kind: KindBackendUnavailable}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDoctorNotScheduled = &Error{Kind: KindDoctorNotScheduled}
	ErrInternal           = &Error{Kind: KindInternal}
)

func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. An err that already carries a kind keeps it.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

func Backend(op string, err error) error {
	return Wrap(KindBackendUnavailable, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
