package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"covenant/internal/compiler"
	"covenant/internal/compilerstore"
)

var (
	buildOut   string
	buildCache bool
)

var buildCmd = &cobra.Command{
	Use:   "build <file>",
	Short: "compile a module and emit its WebAssembly bytes",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "output .wasm path (default: <file> with .wasm suffix)")
	buildCmd.Flags().BoolVar(&buildCache, "cache", true, "memoize by source hash in the compile cache (covenant.yaml's store.path)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg := loadConfig()

	var res *compiler.Result
	if buildCache && cfg.Store.Path != "" {
		store, err := compilerstore.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening compile cache: %w", err)
		}
		defer store.Close()

		src, err := readSourceWithLimit(path, cfg)
		if err != nil {
			return err
		}
		res, err = compiler.CompileCached(store, path, src)
		if err != nil {
			return err
		}
	} else {
		var err error
		res, err = compileFile(path)
		if err != nil {
			return err
		}
	}

	printDiagnostics(res.Diags)
	if res.Module == nil {
		return fmt.Errorf("%s failed to compile", path)
	}

	out := buildOut
	if out == "" {
		out = path + ".wasm"
	}
	if err := os.WriteFile(out, res.Module, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if logger != nil {
		logger.Info("build succeeded", zap.String("file", path), zap.String("out", out), zap.Int("bytes", len(res.Module)))
	}
	return nil
}
