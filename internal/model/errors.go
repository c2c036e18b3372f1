package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-distinguishable class of a probe error.
type ErrorKind string

const (
	KindQueryExecution   ErrorKind = "QueryExecutionError"
	KindQueryTimeout     ErrorKind = "QueryTimeoutError"
	KindConnection       ErrorKind = "ConnectionError"
	KindInvalidParameter ErrorKind = "InvalidParameterError"
	KindInvalidScope     ErrorKind = "InvalidScopeError"
	KindCanceled         ErrorKind = "Canceled"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrQueryExecution   = &Error{Kind: KindQueryExecution}
	ErrQueryTimeout     = &Error{Kind: KindQueryTimeout}
	ErrConnection       = &Error{Kind: KindConnection}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrInvalidScope     = &Error{Kind: KindInvalidScope}
	ErrCanceled         = &Error{Kind: KindCanceled}
)

// Error is a classified probe failure. Probe names the probe that failed,
// Param the offending parameter (or "query"), Detail a short human message
// or query fragment.
type Error struct {
	Kind   ErrorKind
	Probe  string
	Param  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Probe != "" {
		msg = e.Probe + ": " + msg
	}
	if e.Param != "" {
		msg += fmt.Sprintf(" (%s)", e.Param)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrQueryTimeout)
// works regardless of probe or detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError constructs an Error.
func NewError(kind ErrorKind, probe, param, detail string, err error) *Error {
	return &Error{Kind: kind, Probe: probe, Param: param, Detail: detail, Err: err}
}

// InvalidParameter reports an out-of-range or malformed input.
func InvalidParameter(param, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameter, Param: param, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// WithProbe stamps the probe name onto a classified error. Unclassified
// errors are wrapped as query execution errors.
func WithProbe(probe string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Probe == probe {
			return err
		}
		cp := *pe
		cp.Probe = probe
		return &cp
	}
	return &Error{Kind: KindQueryExecution, Probe: probe, Err: err}
}
