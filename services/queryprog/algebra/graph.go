// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package algebra implements the working-graph accumulator and the
// set-algebra folds (merge, subtract, intersect, negate) that combine
// query results into it.
//
// Identity is key-based, never reference-based: nodes are keyed by
// concept_id and links by (from_id, to_id, relationship_type). Two
// structurally-identical results from separate runs fold identically.
// Descriptive payload fields are not part of identity.
package algebra

import "sort"

// Node is one concept in the working graph. ConceptID is the identity;
// everything else is payload.
type Node struct {
	ConceptID   string  `json:"concept_id"`
	Label       string  `json:"label,omitempty"`
	Ontology    string  `json:"ontology,omitempty"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Grounding   float64 `json:"grounding_score,omitempty"`
	Diversity   float64 `json:"diversity_score,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`

	// Properties carries any additional store payload. Not identity.
	Properties map[string]any `json:"properties,omitempty"`
}

// Link is one relationship in the working graph, identified by the
// (FromID, ToID, Type) triple. Multiple links between the same node pair
// are allowed only with distinct relationship types.
type Link struct {
	FromID     string         `json:"from_id"`
	ToID       string         `json:"to_id"`
	Type       string         `json:"relationship_type"`
	Confidence float64        `json:"confidence,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Key returns the link's identity triple.
func (l Link) Key() LinkKey {
	return LinkKey{FromID: l.FromID, ToID: l.ToID, Type: l.Type}
}

// LinkKey is the identity of a link.
type LinkKey struct {
	FromID string
	ToID   string
	Type   string
}

// Graph is a node/link collection keyed per the identity rules above.
// It serves both as the working graph W and as the carrier for a query
// result set R.
//
// Not safe for concurrent use; the executor owns it for one run.
type Graph struct {
	nodes map[string]Node
	links map[LinkKey]Link
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		links: make(map[LinkKey]Link),
	}
}

// AddNode inserts a node. First write wins: an existing node with the same
// concept_id keeps its payload.
func (g *Graph) AddNode(n Node) {
	if n.ConceptID == "" {
		return
	}
	if _, ok := g.nodes[n.ConceptID]; !ok {
		g.nodes[n.ConceptID] = n
	}
}

// AddLink inserts a link. First write wins on the identity triple.
func (g *Graph) AddLink(l Link) {
	if l.FromID == "" || l.ToID == "" {
		return
	}
	k := l.Key()
	if _, ok := g.links[k]; !ok {
		g.links[k] = l
	}
}

// NodeCount returns |W.nodes|.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// LinkCount returns |W.links|.
func (g *Graph) LinkCount() int { return len(g.links) }

// HasNode reports whether a node with the given concept_id is present.
func (g *Graph) HasNode(conceptID string) bool {
	_, ok := g.nodes[conceptID]
	return ok
}

// HasLink reports whether a link with the given identity is present.
func (g *Graph) HasLink(k LinkKey) bool {
	_, ok := g.links[k]
	return ok
}

// HasOntology reports whether any node's ontology equals ont.
func (g *Graph) HasOntology(ont string) bool {
	for _, n := range g.nodes {
		if n.Ontology == ont {
			return true
		}
	}
	return false
}

// HasRelationship reports whether any link's relationship type equals typ.
func (g *Graph) HasRelationship(typ string) bool {
	for k := range g.links {
		if k.Type == typ {
			return true
		}
	}
	return false
}

// Nodes returns the nodes sorted by concept_id. The slice is a copy.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConceptID < out[j].ConceptID })
	return out
}

// Links returns the links sorted by (from_id, to_id, relationship_type).
// The slice is a copy.
func (g *Graph) Links() []Link {
	out := make([]Link, 0, len(g.links))
	for _, l := range g.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.Type < b.Type
	})
	return out
}

// Reset discards all nodes and links.
func (g *Graph) Reset() {
	g.nodes = make(map[string]Node)
	g.links = make(map[LinkKey]Link)
}

// dropDanglingLinks removes every link with an endpoint missing from the
// node set. Subtract and the replacing folds call this so that no fold
// leaves a link pointing at a removed node.
func (g *Graph) dropDanglingLinks() {
	for k := range g.links {
		if _, ok := g.nodes[k.FromID]; !ok {
			delete(g.links, k)
			continue
		}
		if _, ok := g.nodes[k.ToID]; !ok {
			delete(g.links, k)
		}
	}
}
