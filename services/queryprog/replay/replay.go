// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package replay reconstructs a previously-saved program definition and
// deterministically re-executes it, rebuilding the ordered step log as it
// goes. Saving or exporting the rebuilt log reproduces a script textually
// equivalent (modulo whitespace) to the one replayed.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
	"github.com/AleutianAI/conceptweave/services/queryprog/script"
)

// DefinitionType selects how a persisted definition is decoded.
type DefinitionType string

const (
	// DefinitionCypherScript is the `+`/`-`-prefixed textual script form.
	DefinitionCypherScript DefinitionType = "cypher_script"

	// DefinitionProgramJSON is the canonical program JSON form.
	DefinitionProgramJSON DefinitionType = "program_json"
)

// Definition is a persisted `{definition_type, definition}` record.
type Definition struct {
	Type DefinitionType `json:"definition_type"`
	Raw  string         `json:"definition"`
}

var (
	// ErrReplayInProgress is returned when a replay is started while
	// another replay of the same replayer is still running.
	ErrReplayInProgress = errors.New("replay already in progress")

	// ErrUnknownDefinitionType is returned for an unrecognized
	// definition_type discriminant.
	ErrUnknownDefinitionType = errors.New("unknown definition type")

	// ErrEmptyDefinition is returned when the definition decodes to a
	// program with no statements.
	ErrEmptyDefinition = errors.New("definition contains no statements")
)

// Result is the outcome of one replay.
type Result struct {
	// SessionID identifies the session whose working graph was rebuilt.
	SessionID string `json:"session_id"`

	// Steps is the rebuilt step log, one entry per folded statement in
	// execution order. On failure it covers the statements that folded
	// before the failure.
	Steps []exec.StepEntry `json:"steps"`
}

// Replayer re-executes saved definitions on its own session.
//
// Thread Safety:
//
//	Replaying() may be called concurrently with a running replay; a
//	second Replay on the same Replayer is rejected with
//	ErrReplayInProgress rather than queued. There is no mid-statement
//	cancellation: each statement runs to completion or failure.
type Replayer struct {
	executor *exec.Executor
	logger   *slog.Logger

	mu        sync.Mutex
	replaying bool
	session   *exec.Session
	log       []exec.StepEntry
}

// NewReplayer creates a replayer over the given executor.
func NewReplayer(executor *exec.Executor, logger *slog.Logger) (*Replayer, error) {
	if executor == nil {
		return nil, exec.ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{executor: executor, logger: logger}, nil
}

// Replaying reports whether a replay is currently running.
func (r *Replayer) Replaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replaying
}

// Replay decodes the definition and re-executes it from an empty working
// graph.
//
// Description:
//
//	The step log is rebuilt incrementally: each entry is appended
//	immediately after its statement folds, never batched at the end, so
//	a mid-replay failure leaves the log and the working graph consistent
//	with each other at the point of failure. The partial result is
//	returned alongside the error in that case.
//
// Inputs:
//
//	ctx - Context for the underlying query-service calls.
//	def - The persisted definition to replay.
//
// Outputs:
//
//	*Result - The rebuilt step log (possibly partial on failure).
//	error - Nil on success; decode, validation or statement error
//	        otherwise.
func (r *Replayer) Replay(ctx context.Context, def Definition) (*Result, error) {
	r.mu.Lock()
	if r.replaying {
		r.mu.Unlock()
		return nil, ErrReplayInProgress
	}
	r.replaying = true
	r.session = exec.NewSession()
	r.log = nil
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.replaying = false
		r.mu.Unlock()
	}()

	program, err := decodeDefinition(def)
	if err != nil {
		return nil, err
	}

	r.logger.Info("starting replay",
		"session_id", r.session.ID(),
		"definition_type", string(def.Type),
		"statements", len(program.Statements))

	obs := exec.StepObserverFunc(func(entry exec.StepEntry) {
		r.mu.Lock()
		r.log = append(r.log, entry)
		r.mu.Unlock()
	})

	runErr := r.executor.Run(ctx, program, r.session, obs)
	result := &Result{SessionID: r.session.ID(), Steps: r.Log()}
	if runErr != nil {
		r.logger.Error("replay aborted", "session_id", r.session.ID(), "error", runErr)
		return result, runErr
	}
	return result, nil
}

// Log returns a copy of the rebuilt step log.
func (r *Replayer) Log() []exec.StepEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]exec.StepEntry, len(r.log))
	copy(out, r.log)
	return out
}

// Session returns the session of the most recent replay, or nil before
// the first one.
func (r *Replayer) Session() *exec.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Export serializes the rebuilt step log back to script form. For a
// cypher_script definition the output is textually equivalent (modulo
// whitespace normalization) to the replayed script.
func (r *Replayer) Export() string {
	return script.Serialize(logToSteps(r.Log()))
}

// SaveProgram lifts the rebuilt step log into a canonical program.
func (r *Replayer) SaveProgram() *ast.Program {
	return script.ToProgram(logToSteps(r.Log()))
}

func logToSteps(entries []exec.StepEntry) []script.Step {
	steps := make([]script.Step, 0, len(entries))
	for _, e := range entries {
		steps = append(steps, script.Step{Op: e.Op, Cypher: e.Query})
	}
	return steps
}

func decodeDefinition(def Definition) (*ast.Program, error) {
	switch def.Type {
	case DefinitionCypherScript:
		steps := script.Parse(def.Raw)
		if len(steps) == 0 {
			return nil, ErrEmptyDefinition
		}
		return script.ToProgram(steps), nil
	case DefinitionProgramJSON:
		p, err := ast.DecodeProgram([]byte(def.Raw))
		if err != nil {
			return nil, err
		}
		if len(p.Statements) == 0 {
			return nil, ErrEmptyDefinition
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefinitionType, string(def.Type))
	}
}
