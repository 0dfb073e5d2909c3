package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/flowstep"
	"github.com/petal-labs/flowstep/loader"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a graph definition file",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	gf, err := loadGraphFile(args[0])
	if err != nil {
		return err
	}

	g, err := flowstep.NewGraph(gf.Nodes, gf.Edges, gf.StartNode)
	if err != nil {
		return exitError(exitValidation, "invalid graph: %v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Validation successful: %d node(s), %d edge(s), start %q.\n",
		len(g.Nodes), len(g.Edges), g.Start)
	return nil
}

// loadGraphFile wraps loader.Load with CLI exit-code mapping.
func loadGraphFile(path string) (*loader.GraphFile, error) {
	gf, err := loader.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "%v", err)
		}
		return nil, exitError(exitInputParse, "%v", err)
	}
	return gf, nil
}
