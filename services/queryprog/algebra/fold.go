// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algebra

// Merge folds r into g union-style: every node and link of r whose
// identity is absent from g is added; existing entries keep their payload
// (first write wins). Idempotent.
func (g *Graph) Merge(r *Graph) {
	if r == nil {
		return
	}
	for id, n := range r.nodes {
		if _, ok := g.nodes[id]; !ok {
			g.nodes[id] = n
		}
	}
	for k, l := range r.links {
		if _, ok := g.links[k]; !ok {
			g.links[k] = l
		}
	}
}

// Subtract removes from g every node whose identity appears in r, every
// link whose identity appears in r, and every link left with a removed
// endpoint. No dangling links survive. Idempotent.
func (g *Graph) Subtract(r *Graph) {
	if r == nil {
		return
	}
	for id := range r.nodes {
		delete(g.nodes, id)
	}
	for k := range r.links {
		delete(g.links, k)
	}
	g.dropDanglingLinks()
}

// Intersect keeps only the entries of g whose identity also appears in r,
// then drops links orphaned by the node removals. Idempotent.
func (g *Graph) Intersect(r *Graph) {
	if r == nil {
		g.Reset()
		return
	}
	for id := range g.nodes {
		if _, ok := r.nodes[id]; !ok {
			delete(g.nodes, id)
		}
	}
	for k := range g.links {
		if _, ok := r.links[k]; !ok {
			delete(g.links, k)
		}
	}
	g.dropDanglingLinks()
}

// Negate replaces g with the entries of r that are absent from g's
// pre-operation snapshot (the complement of g within r). Links whose
// endpoints do not survive the replacement are dropped.
//
// Unlike the other folds this is a replacement, not a filter, so applying
// it twice with the same r is not a no-op.
func (g *Graph) Negate(r *Graph) {
	nodes := make(map[string]Node)
	links := make(map[LinkKey]Link)
	if r != nil {
		for id, n := range r.nodes {
			if _, ok := g.nodes[id]; !ok {
				nodes[id] = n
			}
		}
		for k, l := range r.links {
			if _, ok := g.links[k]; !ok {
				links[k] = l
			}
		}
	}
	g.nodes = nodes
	g.links = links
	g.dropDanglingLinks()
}
