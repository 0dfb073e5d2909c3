package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/flowstep"
	"github.com/petal-labs/flowstep/engine"
	"github.com/petal-labs/flowstep/registry"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a graph definition file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("input", "i", "", "Initial state as inline JSON object")
	cmd.Flags().StringP("input-file", "f", "", "Initial state from a JSON file")
	cmd.Flags().String("format", "pretty", "Output format: json | pretty")
	cmd.Flags().Int("max-steps", 0, "Step limit per run (0 = default)")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Execution timeout")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	gf, err := loadGraphFile(args[0])
	if err != nil {
		return err
	}

	initial, err := buildInitialState(cmd)
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := registry.RegisterBuiltins(reg); err != nil {
		return exitError(exitRuntime, "registering builtins: %v", err)
	}

	maxSteps, _ := cmd.Flags().GetInt("max-steps")
	eng := engine.New(reg, engine.Options{MaxSteps: maxSteps})

	g, err := eng.CreateGraph(gf.Nodes, gf.Edges, gf.StartNode)
	if err != nil {
		return exitError(exitValidation, "invalid graph: %v", err)
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	snap, err := eng.StartRun(ctx, g.ID, initial)
	if err != nil {
		return exitError(exitRuntime, "starting run: %v", err)
	}

	format, _ := cmd.Flags().GetString("format")
	if err := printRun(cmd, snap, format); err != nil {
		return err
	}

	if snap.Status != flowstep.StatusSuccess {
		return exitError(exitRuntime, "run %s: %s", snap.Status, snap.Error)
	}
	return nil
}

func buildInitialState(cmd *cobra.Command) (flowstep.State, error) {
	inline, _ := cmd.Flags().GetString("input")
	fromFile, _ := cmd.Flags().GetString("input-file")

	if inline != "" && fromFile != "" {
		return nil, exitError(exitInputParse, "use either --input or --input-file, not both")
	}

	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case fromFile != "":
		b, err := os.ReadFile(fromFile) // #nosec G304 -- path from caller
		if err != nil {
			return nil, exitError(exitFileNotFound, "reading input file: %v", err)
		}
		data = b
	default:
		return flowstep.State{}, nil
	}

	var state flowstep.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, exitError(exitInputParse, "parsing initial state: %v", err)
	}
	return state, nil
}

func printRun(cmd *cobra.Command, snap engine.RunSnapshot, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "pretty":
		fmt.Fprintf(out, "Run %s finished: %s\n", snap.RunID, snap.Status)
		if snap.Error != "" {
			fmt.Fprintf(out, "Error: %s\n", snap.Error)
		}
		for i, step := range snap.Log {
			fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, step.Node, step.Tool)
		}
		stateJSON, err := json.MarshalIndent(snap.State, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding final state: %v", err)
		}
		fmt.Fprintf(out, "Final state:\n%s\n", stateJSON)
		return nil
	default:
		return exitError(exitInputParse, "unsupported format %q", format)
	}
}
