package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petal-labs/flowstep/registry"
)

// NewToolsCmd creates the "tools" subcommand.
func NewToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools",
		RunE:  runTools,
	}
}

func runTools(cmd *cobra.Command, _ []string) error {
	reg := registry.New()
	if err := registry.RegisterBuiltins(reg); err != nil {
		return exitError(exitRuntime, "registering builtins: %v", err)
	}
	for _, name := range reg.Names() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
