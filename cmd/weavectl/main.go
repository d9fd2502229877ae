// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command weavectl is the ConceptWeave CLI: validate, compile, format,
// run and replay query programs from the terminal.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the optional weavectl.yaml configuration.
type Config struct {
	// ServerURL is the weave API server base URL.
	ServerURL string `yaml:"server_url"`

	// Timeout is the request timeout in seconds for remote commands.
	Timeout int `yaml:"timeout"`
}

var config = Config{
	ServerURL: "http://localhost:7800",
	Timeout:   120,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loadConfig()
		if serverURL != "" {
			config.ServerURL = serverURL
		}
	}
}

// loadConfig reads weavectl.yaml from the working directory or
// ~/.conceptweave/. A missing file keeps the defaults.
func loadConfig() {
	paths := []string{"weavectl.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".conceptweave", "weavectl.yaml"))
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			log.Fatalf("Error parsing %s: %v", path, err)
		}
		return
	}
}
