// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := DefaultConfig(baseURL)
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxRetryBackoff = 5 * time.Millisecond
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestQuery_CypherPostsToQueryPath(t *testing.T) {
	var gotPath string
	var gotBody queryPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(exec.ResultSet{
			Nodes: []exec.RawNode{{ID: "n1", Properties: map[string]any{"concept_id": "GO:1"}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	rs, err := c.Query(context.Background(), exec.QueryRequest{
		Query: "MATCH (n:Concept) RETURN n",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotPath != "/query" {
		t.Errorf("path = %q, want /query", gotPath)
	}
	if gotBody.Query == "" || gotBody.Limit != 10 {
		t.Errorf("request body = %+v", gotBody)
	}
	if len(rs.Nodes) != 1 || rs.Nodes[0].ID != "n1" {
		t.Errorf("result = %+v", rs)
	}
}

func TestQuery_ApiEndpointAllowList(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(exec.ResultSet{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	if _, err := c.Query(context.Background(), exec.QueryRequest{
		Endpoint: "/search/concepts",
		Params:   map[string]any{"term": "kinase"},
	}); err != nil {
		t.Fatalf("allowed endpoint: %v", err)
	}
	if gotPath != "/search/concepts" {
		t.Errorf("path = %q, want /search/concepts", gotPath)
	}

	_, err := c.Query(context.Background(), exec.QueryRequest{Endpoint: "/admin/delete"})
	if !errors.Is(err, ErrEndpointNotAllowed) {
		t.Errorf("disallowed endpoint err = %v, want ErrEndpointNotAllowed", err)
	}
}

func TestQuery_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(exec.ResultSet{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Query(context.Background(), exec.QueryRequest{Query: "RETURN 1"}); err != nil {
		t.Fatalf("Query after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestQuery_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Query(context.Background(), exec.QueryRequest{Query: "GARBAGE"})
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("err = %v, want ErrBadStatus", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestQuery_UnreachableGateway(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1") // nothing listens here
	_, err := c.Query(context.Background(), exec.QueryRequest{Query: "RETURN 1"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Errorf("err = %v, want ErrGatewayUnavailable", err)
	}
}

func TestQuery_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.RetryBackoff = time.Second
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Query(ctx, exec.QueryRequest{Query: "RETURN 1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty base url")
	}
	cfg := DefaultConfig("http://localhost:7801")
	cfg.RetryJitter = 2
	if _, err := NewClient(cfg); err == nil {
		t.Error("expected error for jitter out of range")
	}
}

func TestCalculateBackoff_CappedAndJittered(t *testing.T) {
	cfg := DefaultConfig("http://x")
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.MaxRetryBackoff = 400 * time.Millisecond
	cfg.RetryJitter = 0.25
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	for attempt := 1; attempt <= 10; attempt++ {
		b := c.calculateBackoff(attempt)
		if b > 500*time.Millisecond {
			t.Errorf("attempt %d backoff %v exceeds cap plus jitter", attempt, b)
		}
		if b <= 0 {
			t.Errorf("attempt %d backoff %v not positive", attempt, b)
		}
	}
}
