package epd

import (
	"errors"
	"fmt"
)

// ErrorKind classifies driver failures.
type ErrorKind int

const (
	// KindConfiguration covers invalid arguments and illegal state
	// transitions. It is always reported before any bus traffic.
	KindConfiguration ErrorKind = iota + 1
	// KindTransport is an SPI write failure. It is never retried.
	KindTransport
	// KindHardwareTimeout means the busy line did not clear in time.
	KindHardwareTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindHardwareTimeout:
		return "hardware timeout"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against *Error values.
var (
	ErrConfiguration   = errors.New("epd: configuration error")
	ErrTransport       = errors.New("epd: transport error")
	ErrHardwareTimeout = errors.New("epd: hardware timeout")
)

// Error is the structured error returned by every driver operation.
type Error struct {
	Kind  ErrorKind
	Op    string     // operation name, e.g. "WriteFrame"
	State PowerState // controller state when the error was raised
	// Opcode is the command in flight for transport errors, 0 otherwise.
	Opcode Opcode
	// Reason is a short description for configuration errors.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := "epd: " + e.Op + ": " + e.Kind.String()
	if e.Opcode != 0 {
		msg += " (" + e.Opcode.String() + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrHardwareTimeout:
		return e.Kind == KindHardwareTimeout
	}
	return false
}

func configError(op string, state PowerState, format string, args ...any) *Error {
	return &Error{
		Kind:   KindConfiguration,
		Op:     op,
		State:  state,
		Reason: fmt.Sprintf(format, args...),
	}
}
