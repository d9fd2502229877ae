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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/conceptweave/services/queryprog/algebra"
	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
)

var (
	tracer = otel.Tracer("conceptweave.queryprog.exec")
	meter  = otel.Meter("conceptweave.queryprog.exec")
)

// StepEntry describes one successfully-folded statement: what ran and the
// working-graph size immediately after the fold.
type StepEntry struct {
	// Index is the top-level statement index. Branch statements report
	// the index of their enclosing conditional.
	Index int `json:"index"`

	// Op is the fold operator applied.
	Op ast.Op `json:"op"`

	// Query is the statement's textual form (Cypher text, or a
	// `CALL api(...)` rendering for API statements).
	Query string `json:"query"`

	// NodeCount and LinkCount are the working-graph sizes after the fold.
	NodeCount int `json:"node_count"`
	LinkCount int `json:"link_count"`

	// AtMilli is the fold timestamp (Unix milliseconds).
	AtMilli int64 `json:"at_milli"`

	// DurationMilli is the statement wall time in milliseconds, covering
	// the awaited query call and the fold.
	DurationMilli int64 `json:"duration_milli"`
}

// StepObserver receives one entry per folded statement, immediately after
// the fold and before the next statement starts.
type StepObserver interface {
	OnStep(entry StepEntry)
}

// StepObserverFunc adapts a function to StepObserver.
type StepObserverFunc func(StepEntry)

// OnStep implements StepObserver.
func (f StepObserverFunc) OnStep(entry StepEntry) { f(entry) }

// Executor interprets programs against a query service.
//
// Description:
//
//	Statements run strictly in order; each external call is awaited
//	before the next statement starts. Conditional branches are executed
//	by recursive descent over the same working graph. The first external
//	failure aborts the remaining statements and surfaces the failing
//	statement's index; the working graph is left at its last
//	successfully-folded state.
//
// Thread Safety:
//
//	Executor is safe for concurrent use across distinct sessions. A
//	single session admits one run at a time.
type Executor struct {
	svc    QueryService
	logger *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	stmtLatency   metric.Float64Histogram
	stmtSuccesses metric.Int64Counter
	stmtFailures  metric.Int64Counter
}

// NewExecutor creates an executor over the given query service.
//
// Inputs:
//
//	svc - The query-service collaborator. Must not be nil.
//	logger - Logger for run logs. If nil, uses slog.Default().
//
// Outputs:
//
//	*Executor - The configured executor.
//	error - Non-nil if svc is nil.
func NewExecutor(svc QueryService, logger *slog.Logger) (*Executor, error) {
	if svc == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{svc: svc, logger: logger}, nil
}

// initMetrics lazily initializes metrics. Metric creation failures are
// logged and execution continues without them.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var err error
		e.stmtLatency, err = meter.Float64Histogram("queryprog_statement_duration_seconds",
			metric.WithDescription("Time spent executing each program statement"),
			metric.WithUnit("s"),
		)
		if err != nil {
			e.logger.Warn("failed to create statement latency metric", "error", err)
		}
		e.stmtSuccesses, err = meter.Int64Counter("queryprog_statement_success_total",
			metric.WithDescription("Number of successfully folded statements"),
		)
		if err != nil {
			e.logger.Warn("failed to create statement success metric", "error", err)
		}
		e.stmtFailures, err = meter.Int64Counter("queryprog_statement_failure_total",
			metric.WithDescription("Number of failed statements"),
		)
		if err != nil {
			e.logger.Warn("failed to create statement failure metric", "error", err)
		}
	})
}

// Run validates and executes a program on the given session.
//
// Description:
//
//	Validation always runs first and blocks execution before any
//	external call; a *ValidationError carries the full result. The
//	session's working graph is reset at the start of the run. On
//	failure the returned error is a *StatementError wrapping the cause,
//	and the working graph stays at its last successfully-folded state.
//
// Inputs:
//
//	ctx - Context for external calls.
//	program - The program to execute. Must not be nil.
//	session - The session whose working graph accumulates results.
//	obs - Optional observer notified after every fold. May be nil.
//
// Outputs:
//
//	error - Nil on success; *ValidationError, *StatementError or
//	        ErrSessionBusy otherwise.
func (e *Executor) Run(ctx context.Context, program *ast.Program, session *Session, obs StepObserver) error {
	if program == nil || session == nil {
		return ErrInvalidInput
	}
	e.initMetrics()

	if res := ast.Validate(program); !res.Valid {
		return &ValidationError{Result: res}
	}

	working, err := session.begin()
	if err != nil {
		return err
	}
	defer session.finish()

	ctx, span := tracer.Start(ctx, "queryprog.run",
		trace.WithAttributes(
			attribute.String("session.id", session.ID()),
			attribute.Int("program.statements", len(program.Statements)),
		))
	defer span.End()

	e.logger.Info("starting program run",
		"session_id", session.ID(),
		"statements", len(program.Statements))

	for i, st := range program.Statements {
		if err := e.execStatement(ctx, st, i, working, obs); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("program run aborted",
				"session_id", session.ID(),
				"statement", i,
				"error", err)
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	e.logger.Info("program run complete",
		"session_id", session.ID(),
		"nodes", working.NodeCount(),
		"links", working.LinkCount())
	return nil
}

// execStatement executes one statement, recursing into conditional
// branches. index is always the top-level statement index.
func (e *Executor) execStatement(ctx context.Context, st ast.Statement, index int, w *algebra.Graph, obs StepObserver) error {
	switch op := st.Operation.(type) {
	case ast.ConditionalOp:
		return e.execConditional(ctx, op, index, w, obs)
	case ast.CypherOp:
		return e.execQuery(ctx, st, index, QueryRequest{Query: op.Query, Limit: op.Limit}, op.Query, w, obs)
	case ast.ApiOp:
		rendered := fmt.Sprintf("CALL api('%s')", op.Endpoint)
		return e.execQuery(ctx, st, index, QueryRequest{Endpoint: op.Endpoint, Params: op.Params}, rendered, w, obs)
	case nil:
		return &StatementError{Index: index, Err: ast.ErrMissingOperation}
	default:
		return &StatementError{Index: index, Err: fmt.Errorf("%w: %s", ast.ErrUnknownOperation, op.OperationType())}
	}
}

// execConditional evaluates the condition against the CURRENT working
// graph (never against any pending result set) and executes the matching
// branch over the same graph. The conditional itself folds nothing.
func (e *Executor) execConditional(ctx context.Context, op ast.ConditionalOp, index int, w *algebra.Graph, obs StepObserver) error {
	matched, err := evalCondition(op.Condition, w)
	if err != nil {
		return &StatementError{Index: index, Err: err}
	}

	branch := op.Else
	if matched {
		branch = op.Then
	}
	e.logger.Debug("conditional evaluated",
		"statement", index,
		"test", op.Condition.Test,
		"matched", matched,
		"branch_statements", len(branch))

	for _, st := range branch {
		if err := e.execStatement(ctx, st, index, w, obs); err != nil {
			return err
		}
	}
	return nil
}

// execQuery submits one request to the query service and folds the result.
func (e *Executor) execQuery(ctx context.Context, st ast.Statement, index int, req QueryRequest, rendered string, w *algebra.Graph, obs StepObserver) error {
	ctx, span := tracer.Start(ctx, "queryprog.statement",
		trace.WithAttributes(
			attribute.Int("statement.index", index),
			attribute.String("statement.op", string(st.Op)),
		))
	defer span.End()

	start := time.Now()
	rs, err := e.svc.Query(ctx, req)
	if e.stmtLatency != nil {
		e.stmtLatency.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("op", string(st.Op))))
	}
	if err != nil {
		if e.stmtFailures != nil {
			e.stmtFailures.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StatementError{Index: index, Query: rendered, Err: err}
	}

	result := resolveResult(rs)
	if err := applyFold(w, st.Op, result); err != nil {
		return &StatementError{Index: index, Query: rendered, Err: err}
	}
	if e.stmtSuccesses != nil {
		e.stmtSuccesses.Add(ctx, 1)
	}
	span.SetStatus(codes.Ok, "")

	if obs != nil {
		obs.OnStep(StepEntry{
			Index:         index,
			Op:            st.Op,
			Query:         rendered,
			NodeCount:     w.NodeCount(),
			LinkCount:     w.LinkCount(),
			AtMilli:       time.Now().UnixMilli(),
			DurationMilli: time.Since(start).Milliseconds(),
		})
	}
	return nil
}

// applyFold dispatches an operator to its algebra fold. `?` probes without
// mutating.
func applyFold(w *algebra.Graph, op ast.Op, r *algebra.Graph) error {
	switch op {
	case ast.OpMerge:
		w.Merge(r)
	case ast.OpSubtract:
		w.Subtract(r)
	case ast.OpIntersect:
		w.Intersect(r)
	case ast.OpNegate:
		w.Negate(r)
	case ast.OpTest:
		// probe only
	default:
		return fmt.Errorf("%w: operator %q", ErrInvalidInput, string(op))
	}
	return nil
}

// evalCondition evaluates a condition against the current working graph.
func evalCondition(c ast.Condition, w *algebra.Graph) (bool, error) {
	switch c.Test {
	case ast.TestHasResults:
		return w.NodeCount() > 0, nil
	case ast.TestEmpty:
		return w.NodeCount() == 0, nil
	case ast.TestCountGte:
		return w.NodeCount() >= c.Value, nil
	case ast.TestCountLte:
		return w.NodeCount() <= c.Value, nil
	case ast.TestHasOntology:
		return w.HasOntology(c.Ontology), nil
	case ast.TestHasRelationship:
		return w.HasRelationship(c.Relationship), nil
	default:
		return false, fmt.Errorf("unrecognized condition test %q", c.Test)
	}
}
