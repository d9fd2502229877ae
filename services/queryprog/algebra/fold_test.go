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

import (
	"reflect"
	"testing"
)

func graphOf(nodeIDs []string, links []Link) *Graph {
	g := NewGraph()
	for _, id := range nodeIDs {
		g.AddNode(Node{ConceptID: id, Label: "label-" + id})
	}
	for _, l := range links {
		g.AddLink(l)
	}
	return g
}

func link(from, to, typ string) Link {
	return Link{FromID: from, ToID: to, Type: typ}
}

func sameGraph(t *testing.T, a, b *Graph) {
	t.Helper()
	if !reflect.DeepEqual(a.Nodes(), b.Nodes()) {
		t.Errorf("nodes differ:\n  a=%+v\n  b=%+v", a.Nodes(), b.Nodes())
	}
	if !reflect.DeepEqual(a.Links(), b.Links()) {
		t.Errorf("links differ:\n  a=%+v\n  b=%+v", a.Links(), b.Links())
	}
}

func TestMerge_FirstWriteWins(t *testing.T) {
	w := NewGraph()
	w.AddNode(Node{ConceptID: "c1", Label: "original"})

	r := NewGraph()
	r.AddNode(Node{ConceptID: "c1", Label: "replacement"})
	r.AddNode(Node{ConceptID: "c2", Label: "new"})

	w.Merge(r)

	if w.NodeCount() != 2 {
		t.Fatalf("NodeCount = %d, want 2", w.NodeCount())
	}
	for _, n := range w.Nodes() {
		if n.ConceptID == "c1" && n.Label != "original" {
			t.Errorf("merge overwrote existing payload: %+v", n)
		}
	}
}

func TestMerge_DistinctRelationshipTypes(t *testing.T) {
	w := graphOf([]string{"a", "b"}, []Link{link("a", "b", "is_a")})
	r := graphOf([]string{"a", "b"}, []Link{link("a", "b", "part_of"), link("a", "b", "is_a")})

	w.Merge(r)

	if w.LinkCount() != 2 {
		t.Errorf("LinkCount = %d, want 2 (same pair, distinct types)", w.LinkCount())
	}
}

func TestSubtract_NoDanglingLinks(t *testing.T) {
	// Spec scenario: Q1 yields 5 nodes / 6 links, Q2 yields 1 of those
	// nodes which is an endpoint of 2 of those links.
	w := graphOf(
		[]string{"n1", "n2", "n3", "n4", "n5"},
		[]Link{
			link("n1", "n2", "rel"),
			link("n2", "n3", "rel"),
			link("n3", "n4", "rel"),
			link("n4", "n5", "rel"),
			link("n5", "n1", "rel"),
			link("n2", "n4", "rel"),
		},
	)
	r := graphOf([]string{"n3"}, nil)

	w.Subtract(r)

	if w.NodeCount() != 4 {
		t.Errorf("NodeCount = %d, want 4", w.NodeCount())
	}
	if w.LinkCount() != 4 {
		t.Errorf("LinkCount = %d, want 4", w.LinkCount())
	}
	for _, l := range w.Links() {
		if !w.HasNode(l.FromID) || !w.HasNode(l.ToID) {
			t.Errorf("dangling link survived: %+v", l)
		}
	}
}

func TestIntersect(t *testing.T) {
	w := graphOf([]string{"a", "b", "c"}, []Link{link("a", "b", "rel"), link("b", "c", "rel")})
	r := graphOf([]string{"a", "b"}, []Link{link("a", "b", "rel")})

	w.Intersect(r)

	if w.NodeCount() != 2 || w.LinkCount() != 1 {
		t.Errorf("got %d nodes / %d links, want 2/1", w.NodeCount(), w.LinkCount())
	}
	if !w.HasNode("a") || !w.HasNode("b") || w.HasNode("c") {
		t.Errorf("wrong node survivors: %+v", w.Nodes())
	}
}

func TestIntersect_NilResultEmptiesGraph(t *testing.T) {
	w := graphOf([]string{"a"}, nil)
	w.Intersect(nil)
	if w.NodeCount() != 0 {
		t.Errorf("NodeCount = %d, want 0", w.NodeCount())
	}
}

func TestNegate_Complement(t *testing.T) {
	w := graphOf([]string{"a", "b"}, nil)
	r := graphOf([]string{"b", "c", "d"}, []Link{link("c", "d", "rel")})

	w.Negate(r)

	if w.HasNode("a") || w.HasNode("b") {
		t.Errorf("negate kept pre-op entries: %+v", w.Nodes())
	}
	if !w.HasNode("c") || !w.HasNode("d") {
		t.Errorf("negate dropped complement entries: %+v", w.Nodes())
	}
	if w.LinkCount() != 1 {
		t.Errorf("LinkCount = %d, want 1", w.LinkCount())
	}
}

func TestFolds_Idempotent(t *testing.T) {
	base := func() *Graph {
		return graphOf([]string{"a", "b", "c"},
			[]Link{link("a", "b", "rel"), link("b", "c", "rel")})
	}
	r := graphOf([]string{"b", "c", "d"}, []Link{link("b", "c", "rel"), link("c", "d", "rel")})

	tests := []struct {
		name string
		fold func(*Graph)
	}{
		{"merge", func(g *Graph) { g.Merge(r) }},
		{"subtract", func(g *Graph) { g.Subtract(r) }},
		{"intersect", func(g *Graph) { g.Intersect(r) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			once := base()
			tc.fold(once)
			twice := base()
			tc.fold(twice)
			tc.fold(twice)
			sameGraph(t, once, twice)
		})
	}
}

func TestFolds_IdentityNotReference(t *testing.T) {
	// Two structurally-identical result sets built from distinct instances
	// must fold identically.
	w1 := NewGraph()
	w2 := NewGraph()
	w1.Merge(graphOf([]string{"x", "y"}, []Link{link("x", "y", "rel")}))
	w2.Merge(graphOf([]string{"x", "y"}, []Link{link("x", "y", "rel")}))
	sameGraph(t, w1, w2)
}
