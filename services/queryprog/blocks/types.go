// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blocks compiles a DAG of parameterized visual builder blocks
// into a query program.
//
// Compilation never fails as a whole: a block that cannot be satisfied
// (missing required upstream, connection cycle, unknown kind) is skipped
// and reported as a string in the compilation's Errors, while the
// remaining satisfiable blocks still compile. Identical block graphs
// always produce byte-identical output.
package blocks

import "github.com/AleutianAI/conceptweave/services/queryprog/ast"

// Block kinds understood by the compiler.
const (
	// KindSearch seeds the working graph with a concept search. Source
	// block: no upstream input.
	KindSearch = "search"

	// KindExpand grows the neighborhood of its upstream block's results.
	KindExpand = "expand"

	// KindFilter keeps only upstream results matching an ontology or
	// category predicate.
	KindFilter = "filter"

	// KindLimit truncates the upstream result set.
	KindLimit = "limit"

	// KindAPI calls an allow-listed graph-store endpoint. Source block.
	KindAPI = "api"

	// KindCypher passes a hand-written query through. Source block.
	KindCypher = "cypher"
)

// Block is one parameterized unit on the builder canvas.
type Block struct {
	// ID uniquely identifies the block within the graph. Topological
	// ties are broken by ID, so IDs also pin the output order.
	ID string `json:"id"`

	// Kind selects the statement synthesized for this block.
	Kind string `json:"kind"`

	// Op optionally overrides the fold operator. When absent, the
	// block kind's default applies.
	Op ast.Op `json:"op,omitempty"`

	// Params parameterizes the synthesized query (term, ontology,
	// depth, count, endpoint, query, ...).
	Params map[string]any `json:"params,omitempty"`
}

// Connection is a directed edge: the To block consumes the From block's
// result set as its implicit input.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the builder canvas handed to Compile.
type Graph struct {
	Blocks      []Block      `json:"blocks"`
	Connections []Connection `json:"connections"`
}

// Compilation is the outcome of compiling a block graph.
type Compilation struct {
	// Statements holds one statement per satisfiable block, in
	// deterministic topological order, each annotated with its
	// originating block.
	Statements []ast.Statement `json:"statements"`

	// Cypher is the concatenated human-readable script for the
	// statements; empty when no block compiled.
	Cypher string `json:"cypher"`

	// Errors lists the blocks that could not be compiled and why.
	Errors []string `json:"errors"`
}

// Program lifts the compilation into a canonical program.
func (c Compilation) Program() *ast.Program {
	return &ast.Program{
		Version:    ast.ProgramVersion,
		Statements: c.Statements,
	}
}
