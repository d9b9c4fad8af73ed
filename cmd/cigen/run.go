package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/workflows"
)

var runModel string

var runCmd = &cobra.Command{
	Use:   "run <repo-url>",
	Short: "Generate and verify a CI workflow for one repository",
	Long: `Run the full pipeline for one repository and print the result as JSON.

Examples:
  cigen run https://github.com/acme/widget
  cigen run --model gpt-4o https://github.com/acme/widget`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "model label for branch names (default llm.model)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ev, err := a.evaluator(ctx)
	if err != nil {
		return err
	}

	in := workflows.RepoRunInput{RepoURL: args[0], Model: modelOrDefault(runModel, a.cfg.LLM.Model)}
	res, err := ev.Evaluate(ctx, in, func(step string) {
		a.logger.Info(ctx, "pipeline step", zap.String("step", step))
	})
	if err != nil && res.RunID == "" {
		return err
	}
	if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
		return werr
	}
	return err
}

func modelOrDefault(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
