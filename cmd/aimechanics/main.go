// Package main provides the aimechanics CLI tool.
//
// Usage:
//
//	aimechanics [flags] <command> [args]
//
// Commands:
//
//	generate  - Write a synthetic training corpus
//	train     - Train, evaluate and register a model
//	evaluate  - Score a model against a labeled corpus
//	classify  - Classify WAV recordings
//	models    - Manage registered models
//	serve     - Serve classification over HTTP
//	history   - Show served classifications
//	config    - Configuration management
//
// Configuration:
//
//	The CLI reads ~/.aimechanics/config.yaml.
//	Use 'aimechanics config init' to write the defaults there.
package main

import (
	"fmt"
	"os"

	"github.com/kehinde-elelu/aimechanics/cmd/aimechanics/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
