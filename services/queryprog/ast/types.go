// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast defines the query-program AST: a bounded list of set-algebra
// statements over graph queries, plus structural validation.
//
// A Program is the canonical form produced by the block compiler
// (services/queryprog/blocks) or by parsing a textual script
// (services/queryprog/script), and consumed by the executor
// (services/queryprog/exec). Programs are plain data: nothing in this
// package performs I/O or touches a graph store.
package ast

// ProgramVersion is the current persisted program format version.
const ProgramVersion = 1

// Op is the set-algebra operator applied to a statement's result set.
type Op string

const (
	// OpMerge adds result entries absent from the working graph (`+`).
	OpMerge Op = "+"

	// OpSubtract removes result entries from the working graph (`-`).
	OpSubtract Op = "-"

	// OpIntersect keeps only working-graph entries present in the result (`&`).
	OpIntersect Op = "&"

	// OpTest executes the statement without mutating the working graph (`?`).
	OpTest Op = "?"

	// OpNegate replaces the working graph with the result's complement (`!`).
	OpNegate Op = "!"
)

// Valid reports whether o is one of the five recognized operators.
func (o Op) Valid() bool {
	switch o {
	case OpMerge, OpSubtract, OpIntersect, OpTest, OpNegate:
		return true
	default:
		return false
	}
}

// Program is an immutable, versioned list of statements.
type Program struct {
	Version    int         `json:"version"`
	Metadata   *Metadata   `json:"metadata,omitempty"`
	Params     []Param     `json:"params,omitempty"`
	Statements []Statement `json:"statements"`
}

// Metadata carries descriptive fields for a persisted program.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Created     string `json:"created,omitempty"`
}

// Param declares a named program parameter.
type Param struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default any    `json:"default,omitempty"`
}

// Statement is one step of a program: an operator plus the operation whose
// result the operator folds into the working graph.
type Statement struct {
	Op        Op         `json:"op"`
	Operation Operation  `json:"-"`
	Label     string     `json:"label,omitempty"`
	Block     *BlockInfo `json:"block,omitempty"`
}

// BlockInfo records the visual block a statement was compiled from, so a
// compiled program can be decompiled back onto the builder canvas.
type BlockInfo struct {
	BlockID string `json:"block_id"`
	Kind    string `json:"kind"`
}

// Operation type discriminants used in the JSON envelope.
const (
	OpTypeCypher      = "cypher"
	OpTypeAPI         = "api"
	OpTypeConditional = "conditional"
)

// Operation is the closed set of executable operation variants.
//
// Exactly three concrete types implement it: CypherOp, ApiOp and
// ConditionalOp. Consumers must switch exhaustively on the concrete type
// (or on OperationType) and treat anything else as a structural error.
type Operation interface {
	OperationType() string
}

// CypherOp submits a raw Cypher query to the query service.
type CypherOp struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// OperationType implements Operation.
func (CypherOp) OperationType() string { return OpTypeCypher }

// ApiOp calls one of the allow-listed graph-store REST endpoints.
type ApiOp struct {
	Endpoint string         `json:"endpoint"`
	Params   map[string]any `json:"params,omitempty"`
}

// OperationType implements Operation.
func (ApiOp) OperationType() string { return OpTypeAPI }

// ConditionalOp branches on the state of the working graph. The matching
// branch's statements execute against the same working graph; the
// conditional itself never folds anything.
type ConditionalOp struct {
	Condition Condition   `json:"condition"`
	Then      []Statement `json:"then"`
	Else      []Statement `json:"else,omitempty"`
}

// OperationType implements Operation.
func (ConditionalOp) OperationType() string { return OpTypeConditional }

// Condition test discriminants.
const (
	TestHasResults      = "has_results"
	TestEmpty           = "empty"
	TestCountGte        = "count_gte"
	TestCountLte        = "count_lte"
	TestHasOntology     = "has_ontology"
	TestHasRelationship = "has_relationship"
)

// Condition is a predicate over the current working graph. Test selects the
// variant; the remaining fields are payload for the variant that uses them.
type Condition struct {
	Test         string `json:"test"`
	Value        int    `json:"value,omitempty"`
	Ontology     string `json:"ontology,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// KnownTest reports whether the condition's discriminant is recognized.
func (c Condition) KnownTest() bool {
	switch c.Test {
	case TestHasResults, TestEmpty, TestCountGte, TestCountLte,
		TestHasOntology, TestHasRelationship:
		return true
	default:
		return false
	}
}

// AllowedEndpoints is the closed set of graph-store REST endpoints an ApiOp
// may target. Anything else fails validation before execution.
var AllowedEndpoints = []string{
	"/search/concepts",
	"/search/sources",
	"/vocabulary/status",
	"/concepts/batch",
	"/concepts/details",
	"/concepts/related",
}

// EndpointAllowed reports whether endpoint is on the allow-list.
func EndpointAllowed(endpoint string) bool {
	for _, e := range AllowedEndpoints {
		if e == endpoint {
			return true
		}
	}
	return false
}
