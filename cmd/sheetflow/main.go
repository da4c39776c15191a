// Package main provides the CLI entry point for the SheetFlow spreadsheet
// agent runtime.
//
// SheetFlow runs an interactive agent over the user's spreadsheet workspace:
// the model reads, analyses, and modifies Excel and CSV files through tools,
// with window perception keeping repeated sheet reads out of the context.
//
// # Basic Usage
//
// Start an interactive chat in the current workspace:
//
//	sheetflow chat
//
// Resume a previous conversation:
//
//	sheetflow chat --session <id>
//
// Manage persisted state:
//
//	sheetflow sessions list
//	sheetflow memory list
//	sheetflow migrate
//
// # Environment Variables
//
//   - SHEETFLOW_CONFIG: Path to configuration file (default: sheetflow.yaml)
//   - OPENAI_API_KEY: API key used when the config names no provider key
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
