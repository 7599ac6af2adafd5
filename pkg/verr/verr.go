// Package verr implements the error taxonomy from spec.md §7: state-machine
// violations and recognized-failure-reply sentinels usable with errors.Is,
// plus a handful of structured error types that carry the offending input.
package verr

import (
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for state-machine violations and recognized textual
// failure replies. Compare with errors.Is, never by message text.
var (
	ErrNotConnected      = errors.New("valveq: rcon session is not connected")
	ErrAlreadyConnected  = errors.New("valveq: rcon session is already connected")
	ErrAlreadyListening  = errors.New("valveq: listener is already listening")
	ErrDisposed          = errors.New("valveq: operation on a disposed server handle")
	ErrBadQueryChallenge = errors.New("valveq: server returned the empty challenge sentinel")
	ErrBadRconChallenge  = errors.New("valveq: rcon challenge acquisition failed")
	ErrBadRconPassword   = errors.New("valveq: rcon authentication failed")
	ErrUnableToResolve   = errors.New("valveq: log address could not be resolved")
	ErrAddressAlreadyInList = errors.New("valveq: log address is already registered")
	ErrAddressNotFound      = errors.New("valveq: log address was not found")
	ErrNoAddressesAdded     = errors.New("valveq: no log addresses were added")
	ErrUnknownEvent         = errors.New("valveq: log line matched no known event pattern")
)

// FormatError reports that a buffer or textual field failed to match its
// expected grammar.
type FormatError struct {
	Context string
	Input   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("valveq: format error in %s: %q", e.Context, e.Input)
}

// UnknownHeaderError reports a query reply whose leading 4 bytes were
// neither the single-packet nor the split-packet marker.
type UnknownHeaderError struct {
	Header [4]byte
}

func (e *UnknownHeaderError) Error() string {
	return fmt.Sprintf("valveq: unknown response header % x", e.Header)
}

// GameServerError is the catch-all: a command succeeded at the transport
// layer but its textual reply matched neither a success marker nor any
// recognized failure string.
type GameServerError struct {
	Command string
	Reply   string
}

func (e *GameServerError) Error() string {
	return fmt.Sprintf("valveq: unrecognized reply to %q: %q", e.Command, e.Reply)
}

// TimeoutError wraps an underlying error known to be a deadline expiry.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Timeout() bool { return true }

// Classify wraps err in a *TimeoutError if it represents a deadline expiry
// (per net.Error.Timeout), and returns it unchanged otherwise. A nil err
// classifies to nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return err
}

// IsTimeout reports whether err is, or wraps, a timeout.
func IsTimeout(err error) bool {
	var t *TimeoutError
	if errors.As(err, &t) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
