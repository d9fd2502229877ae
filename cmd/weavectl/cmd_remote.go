// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// stepView mirrors the server's step-log entry for display.
type stepView struct {
	Index     int    `json:"index"`
	Op        string `json:"op"`
	Query     string `json:"query"`
	NodeCount int    `json:"node_count"`
	LinkCount int    `json:"link_count"`
}

type runResponse struct {
	SessionID string     `json:"session_id"`
	Steps     []stepView `json:"steps"`
	Cypher    string     `json:"cypher,omitempty"`
	Error     string     `json:"error,omitempty"`
	Failed    *int       `json:"failed_statement,omitempty"`
	Graph     struct {
		Nodes []json.RawMessage `json:"nodes"`
		Links []json.RawMessage `json:"links"`
	} `json:"graph"`
}

func postJSON(path string, body map[string]any) (*runResponse, int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	client := &http.Client{Timeout: time.Duration(config.Timeout) * time.Second}
	url := strings.TrimSuffix(config.ServerURL, "/") + path
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("cannot reach weave server at %s: %w", config.ServerURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	var out runResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("unexpected server response: %s", raw)
	}
	return &out, resp.StatusCode, nil
}

// buildRunBody assembles the request from --program-id or a file argument.
func buildRunBody(args []string) (map[string]any, error) {
	if programID != "" {
		body := map[string]any{"program_id": programID}
		if versionFlag > 0 {
			body["version"] = versionFlag
		}
		return body, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("either --program-id or a program file is required")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, err
	}
	if isJSONDefinition(args[0], data) {
		return map[string]any{
			"definition_type": "program_json",
			"definition":      string(data),
		}, nil
	}
	return map[string]any{
		"definition_type": "cypher_script",
		"definition":      string(data),
	}, nil
}

func printSteps(steps []stepView) {
	for _, s := range steps {
		fmt.Printf("  [%d] %s %s  ->  %d nodes, %d links\n",
			s.Index, s.Op, s.Query, s.NodeCount, s.LinkCount)
	}
}

func runRunCommand(cmd *cobra.Command, args []string) {
	body, err := buildRunBody(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	resp, status, err := postJSON("/v1/programs/run", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if status != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Run failed (%d): %s\n", status, resp.Error)
		if resp.Failed != nil {
			fmt.Fprintf(os.Stderr, "Failed at statement %d; completed steps:\n", *resp.Failed)
			printSteps(resp.Steps)
		}
		os.Exit(1)
	}

	fmt.Printf("Session %s: %d statements, %d nodes, %d links\n",
		resp.SessionID, len(resp.Steps), len(resp.Graph.Nodes), len(resp.Graph.Links))
	printSteps(resp.Steps)
}

func runReplayCommand(cmd *cobra.Command, args []string) {
	if programID == "" {
		fmt.Fprintln(os.Stderr, "Error: --program-id is required")
		os.Exit(1)
	}
	body := map[string]any{"program_id": programID}
	if versionFlag > 0 {
		body["version"] = versionFlag
	}

	resp, status, err := postJSON("/v1/programs/replay", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	switch status {
	case http.StatusOK:
	case http.StatusConflict:
		fmt.Fprintln(os.Stderr, "Error: a replay is already in progress on the server")
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Replay failed (%d): %s\n", status, resp.Error)
		printSteps(resp.Steps)
		os.Exit(1)
	}

	fmt.Printf("Replayed session %s (%d steps)\n", resp.SessionID, len(resp.Steps))
	printSteps(resp.Steps)
	if resp.Cypher != "" {
		fmt.Println("\nReconstructed script:")
		fmt.Print(resp.Cypher)
	}
}
