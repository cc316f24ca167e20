package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"covenant/internal/wasm"
)

var gaiDumpOut string

var gaiDumpCmd = &cobra.Command{
	Use:   "gai-dump <file>",
	Short: "dump the symbol-graph JSON backing the Graph Access Interface",
	Args:  cobra.ExactArgs(1),
	RunE:  runGAIDump,
}

func init() {
	gaiDumpCmd.Flags().StringVarP(&gaiDumpOut, "out", "o", "", "output path (default: stdout)")
}

func runGAIDump(cmd *cobra.Command, args []string) error {
	path := args[0]
	res, err := compileFile(path)
	if err != nil {
		return err
	}
	printDiagnostics(res.Diags)
	if res.Graph == nil {
		return fmt.Errorf("%s did not reach the symbol-graph phase", path)
	}

	blob, err := wasm.DumpSymbolGraph(res.Graph)
	if err != nil {
		return fmt.Errorf("rendering symbol-graph JSON: %w", err)
	}

	if gaiDumpOut == "" {
		_, err = os.Stdout.Write(blob)
		return err
	}
	return os.WriteFile(gaiDumpOut, blob, 0644)
}
