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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL   string
	programID   string
	versionFlag int
	writeInline bool

	rootCmd = &cobra.Command{
		Use:   "weavectl",
		Short: "A cli to build and run ConceptWeave query programs",
		Long: `Weavectl works with ConceptWeave query programs: small declarative
scripts executed against a knowledge graph. Programs can be validated,
compiled from block graphs, formatted, and run locally or replayed
through a weave server.`,
	}

	validateCmd = &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a program file (.cypher script or .json program)",
		Args:  cobra.ExactArgs(1),
		Run:   runValidateCommand, // Defined in cmd_local.go
	}

	compileCmd = &cobra.Command{
		Use:   "compile [blocks.json]",
		Short: "Compile a visual block graph into a program script",
		Args:  cobra.ExactArgs(1),
		Run:   runCompileCommand,
	}

	fmtCmd = &cobra.Command{
		Use:   "fmt [file]",
		Short: "Normalize a program script to canonical form",
		Args:  cobra.ExactArgs(1),
		Run:   runFmtCommand,
	}

	runCmd = &cobra.Command{
		Use:   "run [file]",
		Short: "Execute a program through the weave server",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRunCommand, // Defined in cmd_remote.go
	}

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Replay a saved program and print the rebuilt step log",
		Run:   runReplayCommand,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Weave server URL (overrides weavectl.yaml)")

	fmtCmd.Flags().BoolVarP(&writeInline, "write", "w", false,
		"Write the result back to the file instead of stdout")

	runCmd.Flags().StringVar(&programID, "program-id", "", "Run a saved program by id")
	runCmd.Flags().IntVar(&versionFlag, "version", 0, "Program version (default: latest)")

	replayCmd.Flags().StringVar(&programID, "program-id", "", "Replay a saved program by id")
	replayCmd.Flags().IntVar(&versionFlag, "version", 0, "Program version (default: latest)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
}
