package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

// errSolveFailed marks a solver rejection; the failure itself is printed.
var errSolveFailed = errors.New("solve failed")

type solveOptions struct {
	*rootOptions
	Type      string
	FactsPath string
	Input     string
	StatePath string
	Save      bool
}

// solveOutput is printed as JSON after every solve.
type solveOutput struct {
	Type     string          `json:"type"`
	Solved   bool            `json:"solved"`
	Solution solver.Blob     `json:"solution,omitempty"`
	State    solver.Blob     `json:"state,omitempty"`
	Failure  *solver.Failure `json:"failure,omitempty"`
}

func newSolveCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &solveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Run one input through a module solver",
		Long: `Run one input through a module solver and print the result as JSON.

Stateful modules read their previous state from --state; with --save the new
state is written back so the next stage can be solved.

Example:
  defusalctl solve --type wires --facts bomb.yaml --input '{"wires":["red","blue","white"]}'
  defusalctl solve --type memory --input '{"display":3,"labels":[2,4,1,3]}' --state mem.json --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "module type (see 'defusalctl types')")
	cmd.Flags().StringVar(&opts.FactsPath, "facts", "", "YAML file with the device facts")
	cmd.Flags().StringVar(&opts.Input, "input", "{}", "operator input as JSON")
	cmd.Flags().StringVar(&opts.StatePath, "state", "", "JSON file holding the module state")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "write the new state back to --state")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runSolve(cmd *cobra.Command, opts *solveOptions) error {
	if opts.Save && opts.StatePath == "" {
		return errors.New("--save requires --state")
	}
	reg, err := opts.registry()
	if err != nil {
		return err
	}

	var input solver.Blob
	if err := json.Unmarshal([]byte(opts.Input), &input); err != nil {
		return fmt.Errorf("invalid --input JSON: %w", err)
	}
	facts, err := loadFacts(opts.FactsPath)
	if err != nil {
		return err
	}
	state, err := loadState(opts.StatePath)
	if err != nil {
		return err
	}

	t := solver.Type(opts.Type)
	out := reg.Solve(t, solver.Request{Module: "cli", Facts: facts, State: state, Input: input})

	result := solveOutput{Type: opts.Type, Solved: out.Solved, Solution: out.Solution, State: out.State, Failure: out.Failure}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !out.OK() {
		return errSolveFailed
	}

	if opts.Save {
		return saveState(opts.StatePath, out.State)
	}
	return nil
}

func loadFacts(path string) (device.Facts, error) {
	var facts device.Facts
	if path == "" {
		return facts, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return facts, fmt.Errorf("failed to read facts: %w", err)
	}
	if err := yaml.Unmarshal(b, &facts); err != nil {
		return facts, fmt.Errorf("failed to parse facts %s: %w", path, err)
	}
	return facts, nil
}

// loadState reads a state file. A missing file is an empty state, so the
// first stage of a module can be solved with --save.
func loadState(path string) (solver.Blob, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	var state solver.Blob
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", path, err)
	}
	return state, nil
}

func saveState(path string, state solver.Blob) error {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}
