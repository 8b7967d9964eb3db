// Package apperr holds the error taxonomy shared by the ledger, the saga
// coordinator and the API layer.
//
// Every failure that crosses a component boundary wraps exactly one of the
// sentinels below, so callers classify with errors.Is and the ledger can
// persist a rejection as a stable Code and rebuild it on replay.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrCompensationFailure = errors.New("compensation failure")
)

type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeInvalidState        Code = "invalid_state"
	CodeInsufficientFunds   Code = "insufficient_funds"
	CodeInvalidRequest      Code = "invalid_request"
	CodeProtocolViolation   Code = "protocol_violation"
	CodeCompensationFailure Code = "compensation_failure"
	CodeUnknown             Code = "unknown"
)

var sentinels = map[Code]error{
	CodeNotFound:            ErrNotFound,
	CodeInvalidState:        ErrInvalidState,
	CodeInsufficientFunds:   ErrInsufficientFunds,
	CodeInvalidRequest:      ErrInvalidRequest,
	CodeProtocolViolation:   ErrProtocolViolation,
	CodeCompensationFailure: ErrCompensationFailure,
}

// CodeOf classifies err. Errors outside the taxonomy yield CodeUnknown.
func CodeOf(err error) Code {
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// IsDomain reports whether err belongs to the taxonomy, i.e. it describes a
// business rejection rather than an infrastructure failure.
func IsDomain(err error) bool {
	return err != nil && CodeOf(err) != CodeUnknown
}

// Restore rebuilds a typed error from a persisted code and message.
func Restore(code Code, msg string) error {
	sentinel, ok := sentinels[code]
	if !ok {
		return errors.New(msg)
	}

	return &restored{msg: msg, sentinel: sentinel}
}

// Invalid is a shorthand for an InvalidRequest with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidRequest)
}

type restored struct {
	msg      string
	sentinel error
}

func (e *restored) Error() string { return e.msg }

func (e *restored) Unwrap() error { return e.sentinel }
