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
	"sync"

	"github.com/AleutianAI/conceptweave/services/queryprog/algebra"
	"github.com/google/uuid"
)

// Session owns one working graph for the duration of one run.
//
// Description:
//
//	The executor takes exclusive ownership of the working graph between
//	begin() and finish(); Graph() reports not-ready during that window so
//	the rendering layer never observes a half-folded accumulator. The
//	graph is reset to empty at the start of each run and kept (including
//	after an aborted run, at its last successfully-folded state) once the
//	run ends.
//
// Thread Safety:
//
//	Safe for concurrent Graph()/Running() calls. Statements within a run
//	are never concurrent with each other.
type Session struct {
	id string

	mu      sync.Mutex
	working *algebra.Graph
	running bool
}

// NewSession creates an empty session with a fresh identifier.
func NewSession() *Session {
	return &Session{
		id:      uuid.NewString(),
		working: algebra.NewGraph(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Running reports whether a run currently owns the working graph.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Graph returns the working graph, or ok=false while a run owns it.
func (s *Session) Graph() (*algebra.Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, false
	}
	return s.working, true
}

// begin resets the working graph and takes ownership for a run.
func (s *Session) begin() (*algebra.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrSessionBusy
	}
	s.running = true
	s.working.Reset()
	return s.working, nil
}

// finish releases ownership; the graph stays at its last folded state.
func (s *Session) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
