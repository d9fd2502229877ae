// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exec

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
)

var (
	// ErrInvalidInput is returned for nil or malformed constructor inputs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionBusy is returned when a run is started on a session that
	// another run currently owns.
	ErrSessionBusy = errors.New("session already has a run in progress")
)

// ValidationError aborts a run before any external call is made.
type ValidationError struct {
	Result ast.Result
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("program failed validation with %d error(s)", len(e.Result.Errors))
}

// StatementError reports a failure while executing one statement. Index is
// the top-level statement index (branch statements report their enclosing
// statement), so callers can point the user at the failing step.
type StatementError struct {
	Index int
	Query string
	Err   error
}

// Error implements error.
func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d: %v", e.Index, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *StatementError) Unwrap() error { return e.Err }
