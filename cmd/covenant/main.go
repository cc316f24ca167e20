// Package main implements the covenant CLI, the thin driver around the
// internal/compiler pipeline.
//
// This file is the entry point and command registration hub; each
// subcommand's implementation lives in its own cmd_*.go file.
//
// File index:
//   - main.go       - entry point, rootCmd, global flags, init()
//   - cmd_build.go  - buildCmd, runBuild()
//   - cmd_check.go  - checkCmd, runCheck()
//   - cmd_query.go  - queryCmd, runQuery()
//   - cmd_gai.go    - gaiDumpCmd, runGAIDump()
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"covenant/internal/logging"
)

var (
	verbose   bool
	workspace string
	timeout   time.Duration
	cfgPath   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "covenant",
	Short: "covenant - compiles .cov snippet modules to WebAssembly",
	Long: `covenant compiles a module of fn/test/data/extern snippets through a
fixed pipeline (parse, symbol graph, effect closure, types, requirement
coverage, optimize, emit) and produces a single WebAssembly module whose
exports include the Graph Access Interface described by the language spec.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "compile timeout")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "covenant.yaml", "path to covenant.yaml/covenant.json")

	rootCmd.AddCommand(buildCmd, checkCmd, queryCmd, gaiDumpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
