// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/conceptweave/services/queryprog/algebra"
	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
	"github.com/AleutianAI/conceptweave/services/queryprog/blocks"
	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
	"github.com/AleutianAI/conceptweave/services/queryprog/observability"
	"github.com/AleutianAI/conceptweave/services/queryprog/replay"
	storage "github.com/AleutianAI/conceptweave/services/queryprog/storage/badger"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ValidateProgram runs structural validation and returns the full issue
// report. A structurally invalid program is still a 200: the caller asked
// for the verdict, not for execution.
func ValidateProgram() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		program, err := ast.DecodeProgram(data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, ast.Validate(program))
	}
}

// CompileBlocks turns a visual block graph into an ordered program plus
// its script text. Unsatisfiable blocks are reported in errors while the
// rest of the graph still compiles.
func CompileBlocks() gin.HandlerFunc {
	return func(c *gin.Context) {
		var g blocks.Graph
		if err := c.ShouldBindJSON(&g); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		comp := blocks.Compile(g)
		c.JSON(http.StatusOK, gin.H{
			"statements": len(comp.Statements),
			"cypher":     comp.Cypher,
			"errors":     comp.Errors,
			"program":    comp.Program(),
		})
	}
}

// runRequest is the execution request body: either an inline program, a
// persisted definition envelope, or a saved program reference.
type runRequest struct {
	Program        json.RawMessage `json:"program,omitempty"`
	DefinitionType string          `json:"definition_type,omitempty"`
	Definition     string          `json:"definition,omitempty"`
	ProgramID      string          `json:"program_id,omitempty"`
	Version        int             `json:"version,omitempty"`
}

// resolveProgram turns a runRequest into a program, loading from the
// store when a program_id reference is given.
func resolveProgram(req runRequest, store *storage.Store) (*ast.Program, error) {
	switch {
	case req.ProgramID != "":
		if store == nil {
			return nil, errors.New("program_id requires a program store")
		}
		var (
			rec storage.Record
			err error
		)
		if req.Version > 0 {
			rec, err = store.GetVersion(req.ProgramID, req.Version)
		} else {
			rec, err = store.Get(req.ProgramID)
		}
		if err != nil {
			return nil, err
		}
		return decodeStoredDefinition(rec.DefinitionType, rec.Definition)
	case req.Definition != "":
		return decodeStoredDefinition(req.DefinitionType, req.Definition)
	case len(req.Program) > 0:
		return ast.DecodeProgram(req.Program)
	default:
		return nil, errors.New("request names no program")
	}
}

// graphPayload is the working graph in response form.
type graphPayload struct {
	Nodes []algebra.Node `json:"nodes"`
	Links []algebra.Link `json:"links"`
}

func snapshotGraph(session *exec.Session) graphPayload {
	g, ok := session.Graph()
	if !ok || g == nil {
		return graphPayload{Nodes: []algebra.Node{}, Links: []algebra.Link{}}
	}
	return graphPayload{Nodes: g.Nodes(), Links: g.Links()}
}

// ExecuteProgram runs a program on a fresh session and returns the step
// log plus the final working graph.
//
// Description:
//
//	Statements execute strictly in order, each query awaited before the
//	next. A validation failure is a 422 with the issue report; a
//	statement failure is a 502 carrying the failed statement index and
//	the partial step log, so the client can see exactly how far the run
//	got.
func ExecuteProgram(executor *exec.Executor, store *storage.Store, metrics *observability.ExecutionMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		program, err := resolveProgram(req, store)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found", "program_id": req.ProgramID})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		metrics.ActiveRunsInc()
		defer metrics.ActiveRunsDec()

		session := exec.NewSession()
		var (
			mu    sync.Mutex
			steps []exec.StepEntry
		)
		obs := exec.StepObserverFunc(func(entry exec.StepEntry) {
			mu.Lock()
			steps = append(steps, entry)
			mu.Unlock()
			metrics.RecordStatement(string(entry.Op),
				float64(entry.DurationMilli)/1000, entry.NodeCount)
		})

		runErr := executor.Run(c.Request.Context(), program, session, obs)

		var vErr *exec.ValidationError
		var sErr *exec.StatementError
		switch {
		case errors.As(runErr, &vErr):
			metrics.RecordRun("execute", "invalid")
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "program failed validation",
				"validation": vErr.Result,
			})
		case errors.As(runErr, &sErr):
			metrics.RecordRun("execute", "error")
			if sErr.Index >= 0 && sErr.Index < len(program.Statements) {
				metrics.RecordStatementFailure(string(program.Statements[sErr.Index].Op))
			}
			c.JSON(http.StatusBadGateway, gin.H{
				"error":            sErr.Error(),
				"failed_statement": sErr.Index,
				"session_id":       session.ID(),
				"steps":            steps,
				"graph":            snapshotGraph(session),
			})
		case runErr != nil:
			metrics.RecordRun("execute", "error")
			slog.Error("program execution failed", "session_id", session.ID(), "error", runErr)
			c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error()})
		default:
			metrics.RecordRun("execute", "success")
			c.JSON(http.StatusOK, gin.H{
				"session_id": session.ID(),
				"steps":      steps,
				"graph":      snapshotGraph(session),
			})
		}
	}
}

// ReplayProgram re-executes a saved definition and returns the rebuilt
// step log plus its script export. Concurrent replays are rejected with
// 409 rather than queued.
func ReplayProgram(replayer *replay.Replayer, store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		def, err := resolveDefinition(req, store)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found", "program_id": req.ProgramID})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, replayErr := replayer.Replay(c.Request.Context(), def)
		switch {
		case errors.Is(replayErr, replay.ErrReplayInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": replayErr.Error()})
		case replayErr != nil && result != nil:
			// Mid-replay failure: the partial log is still consistent with
			// the working graph at the failure point.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      replayErr.Error(),
				"session_id": result.SessionID,
				"steps":      result.Steps,
			})
		case replayErr != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": replayErr.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{
				"session_id": result.SessionID,
				"steps":      result.Steps,
				"cypher":     replayer.Export(),
				"graph":      snapshotGraph(replayer.Session()),
			})
		}
	}
}

// resolveDefinition turns a runRequest into a replayable definition.
func resolveDefinition(req runRequest, store *storage.Store) (replay.Definition, error) {
	switch {
	case req.ProgramID != "":
		if store == nil {
			return replay.Definition{}, errors.New("program_id requires a program store")
		}
		var (
			rec storage.Record
			err error
		)
		if req.Version > 0 {
			rec, err = store.GetVersion(req.ProgramID, req.Version)
		} else {
			rec, err = store.Get(req.ProgramID)
		}
		if err != nil {
			return replay.Definition{}, err
		}
		return replay.Definition{Type: replay.DefinitionType(rec.DefinitionType), Raw: rec.Definition}, nil
	case req.Definition != "":
		return replay.Definition{Type: replay.DefinitionType(req.DefinitionType), Raw: req.Definition}, nil
	case len(req.Program) > 0:
		return replay.Definition{Type: replay.DefinitionProgramJSON, Raw: string(req.Program)}, nil
	default:
		return replay.Definition{}, errors.New("request names no program")
	}
}
