// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package boundary

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrValidation indicates host input that was rejected before any
	// store or engine call.
	ErrValidation ErrorCode = iota

	// ErrStore indicates a failure opening, migrating, reading or writing
	// a store.  The Err field holds the store's error.
	ErrStore

	// ErrEngine indicates a failure reported by the wallet engine.  The
	// Err field holds the engine's error unchanged.
	ErrEngine

	// ErrFault indicates a panic caught by the call harness.
	ErrFault
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrValidation: "ErrValidation",
	ErrStore:      "ErrStore",
	ErrEngine:     "ErrEngine",
	ErrFault:      "ErrFault",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error is the single error type reported to the host.
type Error struct {
	Code        ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Description == "" {
			return e.Err.Error()
		}
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError creates an Error given a set of arguments.
func newError(c ErrorCode, desc string, err error) *Error {
	return &Error{Code: c, Description: desc, Err: err}
}

// Validation classifies err as rejected host input.
func Validation(desc string, err error) *Error {
	return newError(ErrValidation, desc, err)
}

// Store classifies err as a store failure.
func Store(desc string, err error) *Error {
	return newError(ErrStore, desc, err)
}

// Engine classifies err as an engine failure.
func Engine(desc string, err error) *Error {
	return newError(ErrEngine, desc, err)
}

// CodeOf returns the code of the first Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// classify wraps an unclassified error with the operation name.  Errors that
// reach the harness without a code come from the engine path.
func classify(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(ErrEngine, op, err)
}
