// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package replay

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
	"github.com/AleutianAI/conceptweave/services/queryprog/script"
)

type stubService struct {
	mu      sync.Mutex
	results map[string]*exec.ResultSet
	errs    map[string]error
	block   chan struct{} // if non-nil, Query blocks until closed
}

func (s *stubService) Query(_ context.Context, req exec.QueryRequest) (*exec.ResultSet, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[req.Query]; ok {
		return nil, err
	}
	if rs, ok := s.results[req.Query]; ok {
		return rs, nil
	}
	return &exec.ResultSet{}, nil
}

func conceptNodes(ids ...string) []exec.RawNode {
	out := make([]exec.RawNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, exec.RawNode{ID: "h-" + id, Properties: map[string]any{"concept_id": id}})
	}
	return out
}

func newReplayer(t *testing.T, svc exec.QueryService) *Replayer {
	t.Helper()
	ex, err := exec.NewExecutor(svc, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	r, err := NewReplayer(ex, nil)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	return r
}

func TestReplay_ScriptDefinitionRoundTrips(t *testing.T) {
	svc := &stubService{results: map[string]*exec.ResultSet{
		"MATCH (n:Concept) RETURN n LIMIT 10":          {Nodes: conceptNodes("a", "b", "c")},
		"MATCH (n:Concept {ontology: 'old'}) RETURN n": {Nodes: conceptNodes("b")},
	}}
	r := newReplayer(t, svc)

	original := `-- saved session
+ MATCH (n:Concept) RETURN n LIMIT 10;
- MATCH (n:Concept {ontology: 'old'}) RETURN n;
`
	res, err := r.Replay(context.Background(), Definition{Type: DefinitionCypherScript, Raw: original})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(res.Steps))
	}

	// Export of the rebuilt log parses back to the same (op, query) pairs
	// as the original script.
	got := script.Parse(r.Export())
	want := script.Parse(original)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("export mismatch:\n got=%+v\nwant=%+v", got, want)
	}

	// SaveProgram rebuilds an executable program of the same shape.
	p := r.SaveProgram()
	if len(p.Statements) != 2 {
		t.Errorf("saved program statements = %d, want 2", len(p.Statements))
	}

	// The rebuilt working graph is readable after the replay.
	w, ok := r.Session().Graph()
	if !ok {
		t.Fatal("graph not readable after replay")
	}
	if w.NodeCount() != 2 {
		t.Errorf("NodeCount = %d, want 2", w.NodeCount())
	}
}

func TestReplay_JSONDefinition(t *testing.T) {
	svc := &stubService{results: map[string]*exec.ResultSet{
		"Q1": {Nodes: conceptNodes("a")},
	}}
	r := newReplayer(t, svc)

	def := Definition{Type: DefinitionProgramJSON, Raw: `{
		"version": 1,
		"statements": [{"op": "+", "operation": {"type": "cypher", "query": "Q1", "limit": 5}}]
	}`}
	res, err := r.Replay(context.Background(), def)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(res.Steps) != 1 || res.Steps[0].NodeCount != 1 {
		t.Errorf("steps = %+v", res.Steps)
	}
}

func TestReplay_MidFailureLeavesLogConsistent(t *testing.T) {
	boom := errors.New("gateway down")
	svc := &stubService{
		results: map[string]*exec.ResultSet{"Q1": {Nodes: conceptNodes("a", "b")}},
		errs:    map[string]error{"Q2": boom},
	}
	r := newReplayer(t, svc)

	_, err := r.Replay(context.Background(), Definition{
		Type: DefinitionCypherScript,
		Raw:  "+ Q1;\n- Q2;\n+ Q3;",
	})
	var stErr *exec.StatementError
	if !errors.As(err, &stErr) || stErr.Index != 1 {
		t.Fatalf("err = %v, want StatementError at index 1", err)
	}

	// The log covers exactly the statements that folded; the graph
	// matches the last entry.
	log := r.Log()
	if len(log) != 1 {
		t.Fatalf("log = %d entries, want 1", len(log))
	}
	w, ok := r.Session().Graph()
	if !ok {
		t.Fatal("graph not readable after aborted replay")
	}
	if w.NodeCount() != log[len(log)-1].NodeCount {
		t.Errorf("graph (%d nodes) inconsistent with log tail (%d)", w.NodeCount(), log[len(log)-1].NodeCount)
	}
}

func TestReplay_RejectsConcurrentReplay(t *testing.T) {
	svc := &stubService{block: make(chan struct{})}
	r := newReplayer(t, svc)

	done := make(chan error, 1)
	go func() {
		_, err := r.Replay(context.Background(), Definition{Type: DefinitionCypherScript, Raw: "+ Q1;"})
		done <- err
	}()

	// Wait for the first replay to be mid-statement.
	for !r.Replaying() {
		time.Sleep(time.Millisecond)
	}

	_, err := r.Replay(context.Background(), Definition{Type: DefinitionCypherScript, Raw: "+ Q2;"})
	if !errors.Is(err, ErrReplayInProgress) {
		t.Errorf("err = %v, want ErrReplayInProgress", err)
	}

	close(svc.block)
	if err := <-done; err != nil {
		t.Errorf("first replay failed: %v", err)
	}
	if r.Replaying() {
		t.Error("replaying flag stuck after completion")
	}
}

func TestReplay_BadDefinitions(t *testing.T) {
	r := newReplayer(t, &stubService{})

	_, err := r.Replay(context.Background(), Definition{Type: "parquet", Raw: "x"})
	if !errors.Is(err, ErrUnknownDefinitionType) {
		t.Errorf("err = %v, want ErrUnknownDefinitionType", err)
	}

	_, err = r.Replay(context.Background(), Definition{Type: DefinitionCypherScript, Raw: "-- only comments\n"})
	if !errors.Is(err, ErrEmptyDefinition) {
		t.Errorf("err = %v, want ErrEmptyDefinition", err)
	}
}
