// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package errors

import (
	"errors"
	"fmt"
)

// Error is the operator-facing error carried across layer boundaries. It
// pairs a numeric code with a short message and an optional cause.
type Error struct {
	code    int
	message string
	err     error
}

func NewError() *Error {
	return &Error{code: InternalError}
}

func (e *Error) WithCode(code int) *Error {
	e.code = code
	return e
}

func (e *Error) WithMessage(message string) *Error {
	e.message = message
	return e
}

func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	e.message = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) WithError(err error) *Error {
	e.err = err
	return e
}

func (e *Error) Code() int {
	return e.code
}

func (e *Error) Message() string {
	return e.message
}

func (e *Error) Error() string {
	switch {
	case e.message != "" && e.err != nil:
		return fmt.Sprintf("[%d] %s: %v", e.code, e.message, e.err)
	case e.message != "":
		return fmt.Sprintf("[%d] %s", e.code, e.message)
	case e.err != nil:
		return fmt.Sprintf("[%d] %v", e.code, e.err)
	default:
		return fmt.Sprintf("[%d]", e.code)
	}
}

func (e *Error) Unwrap() error {
	return e.err
}

// CodeOf extracts the numeric code from an error chain, or InternalError
// when the chain carries none.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return InternalError
}
