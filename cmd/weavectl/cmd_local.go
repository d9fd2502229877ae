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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conceptweave/services/queryprog/ast"
	"github.com/AleutianAI/conceptweave/services/queryprog/blocks"
	"github.com/AleutianAI/conceptweave/services/queryprog/script"
)

// loadProgramFile reads a file and lifts it into a program. JSON files
// decode as canonical programs, everything else parses as script text.
func loadProgramFile(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isJSONDefinition(path, data) {
		return ast.DecodeProgram(data)
	}
	steps := script.Parse(string(data))
	if len(steps) == 0 {
		return nil, fmt.Errorf("%s contains no statements", path)
	}
	return script.ToProgram(steps), nil
}

func isJSONDefinition(path string, data []byte) bool {
	if strings.HasSuffix(path, ".json") {
		return true
	}
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{")
}

func runValidateCommand(cmd *cobra.Command, args []string) {
	program, err := loadProgramFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	res := ast.Validate(program)
	for _, issue := range res.Warnings {
		fmt.Printf("warning: statement %d: %s (%s)\n",
			issue.StatementIndex, issue.Message, issue.RuleID)
	}
	for _, issue := range res.Errors {
		fmt.Printf("error: statement %d: %s (%s)\n",
			issue.StatementIndex, issue.Message, issue.RuleID)
	}
	if !res.Valid {
		fmt.Printf("%s: invalid (%d errors)\n", args[0], len(res.Errors))
		os.Exit(1)
	}
	fmt.Printf("%s: valid (%d statements)\n", args[0], len(program.Statements))
}

func runCompileCommand(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var g blocks.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing block graph: %v\n", err)
		os.Exit(1)
	}

	comp := blocks.Compile(g)
	for _, e := range comp.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s\n", e)
	}
	if len(comp.Statements) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no block compiled to a statement")
		os.Exit(1)
	}
	fmt.Print(comp.Cypher)
}

func runFmtCommand(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	steps := script.Parse(string(data))
	if len(steps) == 0 {
		fmt.Fprintf(os.Stderr, "Error: %s contains no statements\n", args[0])
		os.Exit(1)
	}
	out := script.Serialize(steps)

	if writeInline {
		if err := os.WriteFile(args[0], []byte(out), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", args[0], err)
			os.Exit(1)
		}
		return
	}
	fmt.Print(out)
}
