package showdown

import (
	"errors"
	"fmt"
)

// Error classes. Typed errors below unwrap to these, so callers can test with
// errors.Is regardless of the detail attached.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrProtocol        = errors.New("protocol error")
	ErrAuth            = errors.New("auth error")
	ErrTransport       = errors.New("transport error")
	ErrHook            = errors.New("hook error")
	ErrAlreadyRunning  = errors.New(ErrMsgAlreadyRunning)
)

// InvalidArgument returns an error wrapping ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ProtocolError is a malformed frame, line or action response.
type ProtocolError struct {
	Reason string
	Input  string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := e.Reason
	if e.Input != "" {
		msg += fmt.Sprintf(" %q", abbreviate(e.Input, 60))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() []error { return chain(ErrProtocol, e.Err) }

// AuthError is a missing credential or a login the server refused.
type AuthError struct {
	User   string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := e.Reason
	if e.User != "" {
		msg = fmt.Sprintf("%s (user %q)", msg, e.User)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() []error { return chain(ErrAuth, e.Err) }

// TransportError is a broken or closed socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error { return chain(ErrTransport, e.Err) }

// HookError is an error returned, or a panic raised, by a user hook.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() []error { return chain(ErrHook, e.Err) }

func chain(class, err error) []error {
	if err == nil {
		return []error{class}
	}
	return []error{class, err}
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
