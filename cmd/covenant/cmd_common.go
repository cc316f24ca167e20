package main

import (
	"fmt"
	"os"
	"time"

	"covenant/internal/compiler"
	"covenant/internal/config"
	"covenant/internal/diag"
)

// loadConfig resolves --config, falling back to defaults when the file is
// absent (internal/config.Load already does this; covenant.json is tried
// too when the --config path ends in .json).
func loadConfig() *config.CovenantConfig {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load %s, using defaults: %v\n", cfgPath, err)
		return config.DefaultConfig()
	}
	return cfg
}

// readSourceWithLimit reads path and rejects it outright if it exceeds
// cfg.Limits.MaxSourceBytes, the one enforcement internal/compiler itself
// does not perform (a single compile invocation's resource bound is a CLI
// concern, not a pipeline-phase concern).
func readSourceWithLimit(path string, cfg *config.CovenantConfig) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if max := cfg.Limits.MaxSourceBytes; max > 0 && len(src) > max {
		return nil, fmt.Errorf("%s is %d bytes, exceeding the configured limit of %d", path, len(src), max)
	}
	return src, nil
}

// printDiagnostics writes every diagnostic, sorted for display by
// spec.md's file/offset order, to stderr.
func printDiagnostics(diags *diag.Bag) {
	for _, d := range diag.SortBySpan(diags.All()) {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

// compileFile is the shared build/check/query/gai-dump entry: load
// config, read and size-check the source, then run the pipeline under the
// configured compile deadline (--timeout overrides covenant.yaml's
// limits.max_compile_seconds when explicitly set).
func compileFile(path string) (*compiler.Result, error) {
	cfg := loadConfig()
	src, err := readSourceWithLimit(path, cfg)
	if err != nil {
		return nil, err
	}

	deadline := cfg.GetCompileTimeout()
	if rootCmd.PersistentFlags().Changed("timeout") && timeout > 0 {
		deadline = timeout
	}

	done := make(chan *compiler.Result, 1)
	go func() { done <- compiler.Compile(path, src) }()

	select {
	case res := <-done:
		return res, nil
	case <-time.After(deadline):
		return nil, fmt.Errorf("compile of %s exceeded the %s limit", path, deadline)
	}
}
