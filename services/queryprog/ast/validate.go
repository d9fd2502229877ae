// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import "fmt"

// Validation rule identifiers. Stable across releases; clients key UI
// messages off these.
const (
	RuleEmptyProgram     = "program/empty-statements"
	RuleNilProgram       = "program/nil"
	RuleUnknownOp        = "statement/unknown-op"
	RuleMissingOperation = "statement/missing-operation"
	RuleUnknownOperation = "statement/unknown-operation-type"
	RuleEndpointDenied   = "api/endpoint-not-allowed"
	RuleEmptyBranch      = "conditional/empty-branch"
	RuleUnknownTest      = "condition/unknown-test"
	RuleMissingLimit     = "cypher/missing-limit"
)

// Severity classifies a validation issue.
type Severity string

const (
	// SeverityError blocks execution.
	SeverityError Severity = "error"

	// SeverityWarning is advisory only.
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding.
type Issue struct {
	// RuleID identifies the rule that produced this issue.
	RuleID string `json:"rule_id"`

	// Severity is "error" or "warning".
	Severity Severity `json:"severity"`

	// StatementIndex is the top-level statement the issue belongs to,
	// or -1 for program-level issues. Issues inside conditional branches
	// report the enclosing top-level statement's index; Field carries the
	// branch path.
	StatementIndex int `json:"statement_index"`

	// Field optionally narrows the issue to a field or branch path,
	// e.g. "operation.endpoint" or "then[1].operation".
	Field string `json:"field,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Result is the outcome of validating a program.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Validate checks a program's structure without executing anything.
//
// Description:
//
//	Pure function over the AST: no I/O, no mutation. Errors block
//	execution; warnings are advisory. Conditional branches are validated
//	recursively, reporting the enclosing top-level statement index with a
//	branch path in Field.
//
// Inputs:
//
//	p - The program to validate. A nil program yields a single error.
//
// Outputs:
//
//	Result - Valid is true iff Errors is empty.
func Validate(p *Program) Result {
	v := &validator{}
	if p == nil {
		v.errorf(RuleNilProgram, -1, "", "program is nil")
		return v.result()
	}
	if len(p.Statements) == 0 {
		v.errorf(RuleEmptyProgram, -1, "statements", "program has no statements")
	}
	for i, st := range p.Statements {
		v.statement(st, i, "")
	}
	return v.result()
}

type validator struct {
	errors   []Issue
	warnings []Issue
}

func (v *validator) statement(st Statement, index int, path string) {
	if !st.Op.Valid() {
		v.errorf(RuleUnknownOp, index, join(path, "op"),
			"unrecognized operator %q", string(st.Op))
	}

	switch op := st.Operation.(type) {
	case CypherOp:
		if op.Limit <= 0 {
			v.warnf(RuleMissingLimit, index, join(path, "operation.limit"),
				"cypher statement has no limit; result size is unbounded")
		}
	case ApiOp:
		if !EndpointAllowed(op.Endpoint) {
			v.errorf(RuleEndpointDenied, index, join(path, "operation.endpoint"),
				"endpoint %q is not on the allow-list", op.Endpoint)
		}
	case ConditionalOp:
		v.conditional(op, index, path)
	case nil:
		v.errorf(RuleMissingOperation, index, join(path, "operation"),
			"statement has no operation")
	default:
		v.errorf(RuleUnknownOperation, index, join(path, "operation"),
			"unrecognized operation type %q", op.OperationType())
	}
}

func (v *validator) conditional(op ConditionalOp, index int, path string) {
	if !op.Condition.KnownTest() {
		v.errorf(RuleUnknownTest, index, join(path, "operation.condition.test"),
			"unrecognized condition test %q", op.Condition.Test)
	}
	if len(op.Then) == 0 {
		v.errorf(RuleEmptyBranch, index, join(path, "operation.then"),
			"conditional then-branch has no statements")
	}
	for i, st := range op.Then {
		v.statement(st, index, join(path, fmt.Sprintf("then[%d]", i)))
	}
	// An absent else is fine; a present-but-empty one is a builder bug.
	if op.Else != nil && len(op.Else) == 0 {
		v.errorf(RuleEmptyBranch, index, join(path, "operation.else"),
			"conditional else-branch has no statements")
	}
	for i, st := range op.Else {
		v.statement(st, index, join(path, fmt.Sprintf("else[%d]", i)))
	}
}

func (v *validator) errorf(rule string, index int, field, format string, args ...any) {
	v.errors = append(v.errors, Issue{
		RuleID:         rule,
		Severity:       SeverityError,
		StatementIndex: index,
		Field:          field,
		Message:        fmt.Sprintf(format, args...),
	})
}

func (v *validator) warnf(rule string, index int, field, format string, args ...any) {
	v.warnings = append(v.warnings, Issue{
		RuleID:         rule,
		Severity:       SeverityWarning,
		StatementIndex: index,
		Field:          field,
		Message:        fmt.Sprintf(format, args...),
	})
}

func (v *validator) result() Result {
	return Result{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
