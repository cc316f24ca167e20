package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"covenant/internal/diag"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "run the pipeline without emitting, reporting diagnostics only",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	res, err := compileFile(path)
	if err != nil {
		return err
	}

	printDiagnostics(res.Diags)
	if res.Diags.HasErrors() {
		return fmt.Errorf("%s has errors", path)
	}

	warnings := 0
	for _, d := range res.Diags.All() {
		if d.Severity == diag.Warning {
			warnings++
		}
	}
	if logger != nil {
		logger.Info("check passed", zap.String("file", path), zap.Int("warnings", warnings))
	}
	return nil
}
