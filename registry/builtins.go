package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/petal-labs/flowstep"
)

// RegisterBuiltins installs the native code-review tool set. It is called at
// process start by the server and CLI before any user registrations, so the
// names below are always available to graphs.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		name string
		tool flowstep.Tool
	}{
		{"echo", echoTool},
		{"extract_functions", extractFunctionsTool},
		{"count_lines", countLinesTool},
		{"check_style", checkStyleTool},
		{"summarize_review", summarizeReviewTool},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.tool); err != nil {
			return err
		}
	}
	return nil
}

// echoTool returns its input state unchanged.
func echoTool(_ context.Context, state flowstep.State) (flowstep.State, error) {
	return state, nil
}

// extractFunctionsTool scans the "code" value for function definitions and
// writes their signatures to "functions".
func extractFunctionsTool(_ context.Context, state flowstep.State) (flowstep.State, error) {
	code, err := codeValue(state)
	if err != nil {
		return nil, err
	}

	functions := make([]string, 0)
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "func ") {
			functions = append(functions, strings.TrimSpace(strings.TrimSuffix(trimmed, "{")))
		}
	}

	next := state.Clone()
	next["functions"] = functions
	return next, nil
}

// countLinesTool writes the number of lines in "code" to "line_count".
func countLinesTool(_ context.Context, state flowstep.State) (flowstep.State, error) {
	code, err := codeValue(state)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next["line_count"] = len(strings.Split(code, "\n"))
	return next, nil
}

// checkStyleTool flags long lines and trailing whitespace in "code",
// writing human-readable findings to "style_issues".
func checkStyleTool(_ context.Context, state flowstep.State) (flowstep.State, error) {
	code, err := codeValue(state)
	if err != nil {
		return nil, err
	}

	issues := make([]string, 0)
	for i, line := range strings.Split(code, "\n") {
		if len(line) > 100 {
			issues = append(issues, fmt.Sprintf("line %d exceeds 100 characters", i+1))
		}
		if line != strings.TrimRight(line, " \t") {
			issues = append(issues, fmt.Sprintf("line %d has trailing whitespace", i+1))
		}
	}

	next := state.Clone()
	next["style_issues"] = issues
	return next, nil
}

// summarizeReviewTool condenses the outputs of the other review tools into a
// single "summary" string. Missing inputs are reported as zero counts so the
// tool can close out a partial pipeline.
func summarizeReviewTool(_ context.Context, state flowstep.State) (flowstep.State, error) {
	next := state.Clone()
	next["summary"] = fmt.Sprintf("%d function(s), %d line(s), %d style issue(s)",
		sliceLen(state["functions"]), intValue(state["line_count"]), sliceLen(state["style_issues"]))
	return next, nil
}

func codeValue(state flowstep.State) (string, error) {
	v, ok := state["code"]
	if !ok {
		return "", fmt.Errorf("state key %q is required", "code")
	}
	code, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("state key %q must be a string, got %T", "code", v)
	}
	return code, nil
}

func sliceLen(v any) int {
	switch s := v.(type) {
	case []string:
		return len(s)
	case []any:
		return len(s)
	default:
		return 0
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		// JSON numbers decode as float64.
		return int(n)
	default:
		return 0
	}
}
