// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package script round-trips a program's statement list to and from the
// human-editable script form: `--` line comments, one statement per step
// prefixed with its operator, `;` terminators.
//
//	-- find the seed concepts
//	+ MATCH (n:Concept) WHERE n.label CONTAINS 'enzyme' RETURN n LIMIT 25;
//	- MATCH (n:Concept) WHERE n.ontology = 'deprecated' RETURN n;
//
// Statement bodies may continue across multiple lines until the next
// operator-prefixed line, a blank line, or a `;` terminator. A statement
// without an operator prefix defaults to `+`.
package script

import (
	"strings"

	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
)

// Step is one (operator, query) pair of a script.
type Step struct {
	Op     ast.Op `json:"op"`
	Cypher string `json:"cypher"`
}

// header lines emitted at the top of every serialized script. Static so
// that serialization is byte-deterministic.
const header = "-- conceptweave query script\n-- one statement per line: <op> <query>;\n"

// Serialize renders steps as a commented, `;`-terminated script.
//
// The output is byte-deterministic for a given step list: identical steps
// always produce identical bytes.
func Serialize(steps []Step) string {
	var b strings.Builder
	b.WriteString(header)
	for _, s := range steps {
		q := strings.TrimSpace(s.Cypher)
		if q == "" {
			continue
		}
		op := s.Op
		if !op.Valid() {
			op = ast.OpMerge
		}
		b.WriteString(string(op))
		b.WriteByte(' ')
		b.WriteString(q)
		b.WriteString(";\n")
	}
	return b.String()
}

// Parse decodes a script into its ordered steps.
//
// Comment (`--`) and blank lines are ignored; a blank line also terminates
// any open statement. An un-prefixed statement defaults to `+`. Queries
// are trimmed and `;` terminators stripped, so Parse(Serialize(steps))
// yields the same ordered (op, trimmed-query) pairs as steps.
func Parse(text string) []Step {
	var steps []Step
	var cur *Step
	var body []string

	flush := func() {
		if cur == nil {
			return
		}
		q := strings.TrimSpace(strings.Join(body, "\n"))
		if q != "" {
			steps = append(steps, Step{Op: cur.Op, Cypher: q})
		}
		cur = nil
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if strings.HasPrefix(trimmed, "--") {
			continue
		}

		if op, rest, ok := splitOp(trimmed); ok {
			flush()
			cur = &Step{Op: op}
			trimmed = rest
		} else if cur == nil {
			cur = &Step{Op: ast.OpMerge}
		}

		terminated := strings.HasSuffix(trimmed, ";")
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
		if trimmed != "" {
			body = append(body, trimmed)
		}
		if terminated {
			flush()
		}
	}
	flush()
	return steps
}

// splitOp splits a leading operator from a statement line. A `-` is only
// an operator here because `--` comment lines were already filtered out.
func splitOp(line string) (ast.Op, string, bool) {
	if line == "" {
		return "", "", false
	}
	op := ast.Op(line[:1])
	if !op.Valid() {
		return "", "", false
	}
	rest := line[1:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != ';' {
		// Not an operator prefix, just a query starting with that rune.
		return "", "", false
	}
	return op, strings.TrimSpace(rest), true
}

// FromStatements flattens a statement list into script steps. Conditional
// statements have no textual form; only their executed shape does, so they
// are skipped here. Use exec's step log for a linearized trace.
func FromStatements(statements []ast.Statement) []Step {
	steps := make([]Step, 0, len(statements))
	for _, st := range statements {
		switch op := st.Operation.(type) {
		case ast.CypherOp:
			steps = append(steps, Step{Op: st.Op, Cypher: op.Query})
		case ast.ApiOp:
			steps = append(steps, Step{Op: st.Op, Cypher: "CALL api('" + op.Endpoint + "')"})
		case ast.ConditionalOp:
			// no textual form
		}
	}
	return steps
}

// ToProgram lifts parsed steps into a canonical program of Cypher
// statements.
func ToProgram(steps []Step) *ast.Program {
	p := &ast.Program{Version: ast.ProgramVersion}
	for _, s := range steps {
		p.Statements = append(p.Statements, ast.Statement{
			Op:        s.Op,
			Operation: ast.CypherOp{Query: s.Cypher},
		})
	}
	return p
}
