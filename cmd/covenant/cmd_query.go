package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <file> <snippet-id>",
	Short: "print a snippet's declared vs. transitively-required effects",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	path, id := args[0], args[1]
	res, err := compileFile(path)
	if err != nil {
		return err
	}
	printDiagnostics(res.Diags)
	if res.Graph == nil {
		return fmt.Errorf("%s did not reach the symbol-graph phase", path)
	}
	node, ok := res.Graph.Nodes[id]
	if !ok {
		return fmt.Errorf("no snippet named %q in %s", id, path)
	}

	declared := append([]string(nil), node.Snippet.Effects...)
	sort.Strings(declared)
	var required []string
	if res.Effects != nil {
		required = res.Effects.Required[id]
	}

	fmt.Printf("%s declares: %v\n", id, declared)
	fmt.Printf("%s requires (transitive closure): %v\n", id, required)
	return nil
}
