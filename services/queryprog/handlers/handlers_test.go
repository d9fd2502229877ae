// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
	"github.com/AleutianAI/conceptweave/services/queryprog/observability"
	"github.com/AleutianAI/conceptweave/services/queryprog/replay"
	storage "github.com/AleutianAI/conceptweave/services/queryprog/storage/badger"
)

// fakeService serves canned result sets keyed by query text.
type fakeService struct {
	results map[string]*exec.ResultSet
	fail    map[string]bool
}

func (f *fakeService) Query(_ context.Context, req exec.QueryRequest) (*exec.ResultSet, error) {
	key := req.Query
	if key == "" {
		key = req.Endpoint
	}
	if f.fail[key] {
		return nil, fmt.Errorf("query service rejected %q", key)
	}
	if rs, ok := f.results[key]; ok {
		return rs, nil
	}
	return &exec.ResultSet{}, nil
}

func nodeResult(ids ...string) *exec.ResultSet {
	rs := &exec.ResultSet{}
	for _, id := range ids {
		rs.Nodes = append(rs.Nodes, exec.RawNode{
			ID:         "h-" + id,
			Label:      id,
			Properties: map[string]any{"concept_id": id},
		})
	}
	return rs
}

func newTestRouter(t *testing.T, svc exec.QueryService) (*gin.Engine, *storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidations()

	store, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	executor, err := exec.NewExecutor(svc, nil)
	require.NoError(t, err)
	replayer, err := replay.NewReplayer(executor, nil)
	require.NoError(t, err)

	router := gin.New()
	programs := router.Group("/v1/programs")
	programs.POST("", CreateProgram(store))
	programs.GET("", ListPrograms(store))
	programs.GET("/:programId", GetProgram(store))
	programs.DELETE("/:programId", DeleteProgram(store))
	programs.POST("/validate", ValidateProgram())
	programs.POST("/compile", CompileBlocks())
	programs.POST("/run", ExecuteProgram(executor, store, nil))
	programs.POST("/replay", ReplayProgram(replayer, store))
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProgramCRUD(t *testing.T) {
	router, _ := newTestRouter(t, &fakeService{})

	w := doJSON(t, router, http.MethodPost, "/v1/programs", gin.H{
		"name":            "kinases",
		"definition_type": "cypher_script",
		"definition":      "+ MATCH (n:Concept) RETURN n;\n",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var rec storage.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, rec.Version)

	w = doJSON(t, router, http.MethodGet, "/v1/programs/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/programs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), rec.ID)

	w = doJSON(t, router, http.MethodDelete, "/v1/programs/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/programs/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateProgram_Rejections(t *testing.T) {
	router, _ := newTestRouter(t, &fakeService{})

	// Unknown definition type fails binding.
	w := doJSON(t, router, http.MethodPost, "/v1/programs", gin.H{
		"definition_type": "yaml",
		"definition":      "whatever",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Structurally invalid program JSON is rejected before saving.
	w = doJSON(t, router, http.MethodPost, "/v1/programs", gin.H{
		"definition_type": "program_json",
		"definition":      `{"version":1,"statements":[]}`,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestValidateProgram_ReportsIssues(t *testing.T) {
	router, _ := newTestRouter(t, &fakeService{})

	body := gin.H{
		"version": 1,
		"statements": []gin.H{
			{"op": "+", "operation": gin.H{"type": "api", "endpoint": "/admin/delete"}},
		},
	}
	w := doJSON(t, router, http.MethodPost, "/v1/programs/validate", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
	assert.Contains(t, w.Body.String(), "api/endpoint-not-allowed")
}

func TestCompileBlocks_Endpoint(t *testing.T) {
	router, _ := newTestRouter(t, &fakeService{})

	body := gin.H{
		"blocks": []gin.H{
			{"id": "b1", "kind": "search", "params": gin.H{"term": "kinase"}},
		},
	}
	w := doJSON(t, router, http.MethodPost, "/v1/programs/compile", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kinase")
}

func TestExecuteProgram_InlineScript(t *testing.T) {
	svc := &fakeService{results: map[string]*exec.ResultSet{
		"Q1": nodeResult("GO:1", "GO:2"),
	}}
	router, _ := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/v1/programs/run", gin.H{
		"definition_type": "cypher_script",
		"definition":      "+ Q1;\n",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		SessionID string           `json:"session_id"`
		Steps     []exec.StepEntry `json:"steps"`
		Graph     graphPayload     `json:"graph"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Steps, 1)
	assert.Len(t, resp.Graph.Nodes, 2)
}

func TestExecuteProgram_SavedProgramReference(t *testing.T) {
	svc := &fakeService{results: map[string]*exec.ResultSet{
		"Q1": nodeResult("GO:1"),
	}}
	router, store := newTestRouter(t, svc)

	rec, err := store.Put(storage.Record{
		DefinitionType: "cypher_script",
		Definition:     "+ Q1;\n",
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/v1/programs/run", gin.H{
		"program_id": rec.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/v1/programs/run", gin.H{
		"program_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteProgram_ValidationFailure(t *testing.T) {
	router, _ := newTestRouter(t, &fakeService{})

	w := doJSON(t, router, http.MethodPost, "/v1/programs/run", gin.H{
		"program": gin.H{
			"version": 1,
			"statements": []gin.H{
				{"op": "+", "operation": gin.H{"type": "api", "endpoint": "/admin/delete"}},
			},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "api/endpoint-not-allowed")
}

func TestExecuteProgram_StatementFailure(t *testing.T) {
	svc := &fakeService{
		results: map[string]*exec.ResultSet{"Q1": nodeResult("GO:1")},
		fail:    map[string]bool{"Q2": true},
	}
	router, _ := newTestRouter(t, svc)

	w := doJSON(t, router, http.MethodPost, "/v1/programs/run", gin.H{
		"definition_type": "cypher_script",
		"definition":      "+ Q1;\n+ Q2;\n",
	})
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Failed int              `json:"failed_statement"`
		Steps  []exec.StepEntry `json:"steps"`
		Graph  graphPayload     `json:"graph"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Failed)
	// The step log and graph stop exactly at the failure point.
	require.Len(t, resp.Steps, 1)
	assert.Len(t, resp.Graph.Nodes, 1)
}

func TestReplayProgram_RoundTrip(t *testing.T) {
	svc := &fakeService{results: map[string]*exec.ResultSet{
		"Q1": nodeResult("GO:1", "GO:2"),
		"Q2": nodeResult("GO:2"),
	}}
	router, store := newTestRouter(t, svc)

	rec, err := store.Put(storage.Record{
		DefinitionType: "cypher_script",
		Definition:     "+ Q1;\n- Q2;\n",
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/v1/programs/replay", gin.H{
		"program_id": rec.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Steps  []exec.StepEntry `json:"steps"`
		Cypher string           `json:"cypher"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Steps, 2)
	assert.Contains(t, resp.Cypher, "+ Q1;")
	assert.Contains(t, resp.Cypher, "- Q2;")
}

func TestExecuteProgram_RecordsStatementMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeService{
		results: map[string]*exec.ResultSet{"Q1": nodeResult("GO:1", "GO:2")},
		fail:    map[string]bool{"Q2": true},
	}
	executor, err := exec.NewExecutor(svc, nil)
	require.NoError(t, err)

	m := observability.NewMetrics(prometheus.NewRegistry())
	router := gin.New()
	router.POST("/run", ExecuteProgram(executor, nil, m))

	w := doJSON(t, router, http.MethodPost, "/run", gin.H{
		"definition_type": "cypher_script",
		"definition":      "+ Q1;\n- Q2;\n",
	})
	require.Equal(t, http.StatusBadGateway, w.Code)

	// The folded statement and the failed one both land in the counters.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatementsTotal.WithLabelValues("+", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatementsTotal.WithLabelValues("-", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("execute", "error")))

	// The latency histogram fires once per fold (one "+"-labeled series).
	assert.Equal(t, 1, testutil.CollectAndCount(m.StatementDurationSeconds))
}

func TestReplayProgram_BadDefinition(t *testing.T) {
	router, _ := newTestRouter(t, &fakeService{})

	w := doJSON(t, router, http.MethodPost, "/v1/programs/replay", gin.H{
		"definition_type": "cypher_script",
		"definition":      "-- only a comment\n",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
