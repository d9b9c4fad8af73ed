package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/cigen/internal/workflows"
)

var submitSummary string

var submitCmd = &cobra.Command{
	Use:   "submit [repo-url...]",
	Short: "Start a batch evaluation on the Temporal worker",
	Long: `Start BatchEvaluationWorkflow for the given repositories and print its
workflow ID. Use "cigen status" to follow it.

Examples:
  cigen submit https://github.com/acme/widget
  cigen submit --repos-file repos.txt --summary /var/lib/cigen/summary.json`,
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show the state of a submitted batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	addBatchFlags(submitCmd)
	submitCmd.Flags().StringVar(&submitSummary, "summary", "", "summary path written by the worker")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	repos, err := collectRepos(args, batchReposFile)
	if err != nil {
		return err
	}

	c, err := dialTemporal(a)
	if err != nil {
		return err
	}
	defer c.Close()

	ref, err := workflows.NewBatchClient(c, a.cfg.Temporal.TaskQueue).Submit(ctx, workflows.BatchConfig{
		Repos:       repos,
		Model:       modelOrDefault(batchModel, a.cfg.LLM.Model),
		Concurrency: batchConcurrency,
		SummaryPath: submitSummary,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), ref)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	c, err := dialTemporal(a)
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := workflows.NewBatchClient(c, a.cfg.Temporal.TaskQueue).Status(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), status)
}
