// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blocks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
	"github.com/AleutianAI/conceptweave/services/queryprog/script"
)

// workingPlaceholder marks where a synthesized query consumes the
// accumulated working graph instead of a literal constant. The query
// service binds it to the current working-graph concept ids.
const workingPlaceholder = "$working"

// Compile orders the block graph topologically and synthesizes one
// statement per satisfiable block.
//
// Description:
//
//	Source blocks (no incoming connection) compile first; a downstream
//	block consumes its upstream block's result set implicitly through
//	the $working placeholder. Blocks in a connection cycle, blocks whose
//	required upstream is missing or skipped, and blocks of unknown kind
//	are skipped with an entry in Errors; compilation continues for the
//	rest. Never panics, never returns an error value.
//
// Inputs:
//
//	g - The builder canvas.
//
// Outputs:
//
//	Compilation - Statements in deterministic order plus the script text;
//	              byte-identical for identical inputs.
func Compile(g Graph) Compilation {
	var comp Compilation

	if len(g.Blocks) == 0 {
		comp.Errors = append(comp.Errors, "block graph has no blocks")
		return comp
	}

	byID := make(map[string]Block, len(g.Blocks))
	for _, b := range g.Blocks {
		if b.ID == "" {
			comp.Errors = append(comp.Errors, "block with empty id skipped")
			continue
		}
		if _, dup := byID[b.ID]; dup {
			comp.Errors = append(comp.Errors, fmt.Sprintf("duplicate block id %q skipped", b.ID))
			continue
		}
		byID[b.ID] = b
	}

	incoming := make(map[string][]string)
	outgoing := make(map[string][]string)
	indegree := make(map[string]int)
	for id := range byID {
		indegree[id] = 0
	}
	for _, c := range g.Connections {
		if _, ok := byID[c.From]; !ok {
			comp.Errors = append(comp.Errors, fmt.Sprintf("connection references unknown block %q", c.From))
			continue
		}
		if _, ok := byID[c.To]; !ok {
			comp.Errors = append(comp.Errors, fmt.Sprintf("connection references unknown block %q", c.To))
			continue
		}
		incoming[c.To] = append(incoming[c.To], c.From)
		outgoing[c.From] = append(outgoing[c.From], c.To)
		indegree[c.To]++
	}

	order, cyclic := topoOrder(indegree, outgoing)
	for _, id := range cyclic {
		comp.Errors = append(comp.Errors, fmt.Sprintf("block %q is part of or blocked by a connection cycle; skipped", id))
	}

	emitted := make(map[string]bool)
	for _, id := range order {
		b := byID[id]
		st, err := synthesize(b, upstreamSatisfied(incoming[id], emitted))
		if err != nil {
			comp.Errors = append(comp.Errors, err.Error())
			continue
		}
		comp.Statements = append(comp.Statements, st)
		emitted[id] = true
	}

	if len(comp.Statements) == 0 {
		if len(comp.Errors) == 0 {
			comp.Errors = append(comp.Errors, "no block produced a statement")
		}
		return comp
	}

	comp.Cypher = script.Serialize(script.FromStatements(comp.Statements))
	return comp
}

// topoOrder runs Kahn's algorithm with ties broken by block ID, so the
// order is a pure function of the graph. Blocks left with non-zero
// indegree are cycle participants, returned sorted.
func topoOrder(indegree map[string]int, outgoing map[string][]string) (order, cyclic []string) {
	deg := make(map[string]int, len(indegree))
	var ready []string
	for id, d := range indegree {
		deg[id] = d
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := append([]string(nil), outgoing[id]...)
		sort.Strings(next)
		for _, succ := range next {
			deg[succ]--
			if deg[succ] == 0 {
				ready = insertSorted(ready, succ)
			}
		}
	}

	for id, d := range deg {
		if d > 0 {
			cyclic = append(cyclic, id)
		}
	}
	sort.Strings(cyclic)
	return order, cyclic
}

func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// upstreamSatisfied reports whether at least one upstream block was
// actually emitted. A connection from a skipped block does not count.
func upstreamSatisfied(upstream []string, emitted map[string]bool) bool {
	for _, id := range upstream {
		if emitted[id] {
			return true
		}
	}
	return false
}

// synthesize builds the statement for one block. hasUpstream reports
// whether an emitted upstream feeds this block.
func synthesize(b Block, hasUpstream bool) (ast.Statement, error) {
	annotate := func(st ast.Statement) ast.Statement {
		st.Block = &ast.BlockInfo{BlockID: b.ID, Kind: b.Kind}
		return st
	}

	switch b.Kind {
	case KindSearch:
		term := stringParam(b.Params, "term")
		if term == "" {
			return ast.Statement{}, fmt.Errorf("block %q (search) has no search term", b.ID)
		}
		query := fmt.Sprintf(
			"MATCH (n:Concept) WHERE toLower(n.label) CONTAINS toLower('%s') RETURN n",
			escape(term))
		return annotate(ast.Statement{
			Op:        opOrDefault(b.Op, ast.OpMerge),
			Operation: ast.CypherOp{Query: query, Limit: intParam(b.Params, "limit", 50)},
		}), nil

	case KindExpand:
		if !hasUpstream {
			return ast.Statement{}, fmt.Errorf("block %q (expand) requires an upstream block to expand from", b.ID)
		}
		relType := stringParam(b.Params, "relationship")
		relPattern := "-[r]-"
		if relType != "" {
			relPattern = fmt.Sprintf("-[r:%s]-", escape(relType))
		}
		query := fmt.Sprintf(
			"MATCH (n:Concept)%s(m:Concept) WHERE n.concept_id IN %s RETURN n, r, m",
			relPattern, workingPlaceholder)
		return annotate(ast.Statement{
			Op:        opOrDefault(b.Op, ast.OpMerge),
			Operation: ast.CypherOp{Query: query, Limit: intParam(b.Params, "limit", 200)},
		}), nil

	case KindFilter:
		if !hasUpstream {
			return ast.Statement{}, fmt.Errorf("block %q (filter) requires an upstream block to filter", b.ID)
		}
		var predicates []string
		if ont := stringParam(b.Params, "ontology"); ont != "" {
			predicates = append(predicates, fmt.Sprintf("n.ontology = '%s'", escape(ont)))
		}
		if cat := stringParam(b.Params, "category"); cat != "" {
			predicates = append(predicates, fmt.Sprintf("n.category = '%s'", escape(cat)))
		}
		if len(predicates) == 0 {
			return ast.Statement{}, fmt.Errorf("block %q (filter) has no predicate", b.ID)
		}
		query := fmt.Sprintf(
			"MATCH (n:Concept) WHERE n.concept_id IN %s AND %s RETURN n",
			workingPlaceholder, strings.Join(predicates, " AND "))
		return annotate(ast.Statement{
			Op:        opOrDefault(b.Op, ast.OpIntersect),
			Operation: ast.CypherOp{Query: query, Limit: intParam(b.Params, "limit", 0)},
		}), nil

	case KindLimit:
		if !hasUpstream {
			return ast.Statement{}, fmt.Errorf("block %q (limit) requires an upstream block to truncate", b.ID)
		}
		count := intParam(b.Params, "count", 0)
		if count <= 0 {
			return ast.Statement{}, fmt.Errorf("block %q (limit) has no positive count", b.ID)
		}
		query := fmt.Sprintf(
			"MATCH (n:Concept) WHERE n.concept_id IN %s RETURN n ORDER BY n.concept_id LIMIT %d",
			workingPlaceholder, count)
		return annotate(ast.Statement{
			Op:        opOrDefault(b.Op, ast.OpIntersect),
			Operation: ast.CypherOp{Query: query, Limit: count},
		}), nil

	case KindAPI:
		endpoint := stringParam(b.Params, "endpoint")
		if !ast.EndpointAllowed(endpoint) {
			return ast.Statement{}, fmt.Errorf("block %q (api) targets endpoint %q outside the allow-list", b.ID, endpoint)
		}
		params, _ := b.Params["params"].(map[string]any)
		return annotate(ast.Statement{
			Op:        opOrDefault(b.Op, ast.OpMerge),
			Operation: ast.ApiOp{Endpoint: endpoint, Params: params},
		}), nil

	case KindCypher:
		query := strings.TrimSpace(stringParam(b.Params, "query"))
		if query == "" {
			return ast.Statement{}, fmt.Errorf("block %q (cypher) has no query", b.ID)
		}
		return annotate(ast.Statement{
			Op:        opOrDefault(b.Op, ast.OpMerge),
			Operation: ast.CypherOp{Query: query, Limit: intParam(b.Params, "limit", 0)},
		}), nil

	default:
		return ast.Statement{}, fmt.Errorf("block %q has unrecognized kind %q", b.ID, b.Kind)
	}
}

func opOrDefault(op ast.Op, def ast.Op) ast.Op {
	if op.Valid() {
		return op
	}
	return def
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// escape keeps single-quoted Cypher string literals well-formed.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
