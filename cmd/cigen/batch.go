package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/workflows"
)

var (
	batchReposFile   string
	batchModel       string
	batchConcurrency int
	batchSummary     string
)

var batchCmd = &cobra.Command{
	Use:   "batch [repo-url...]",
	Short: "Evaluate many repositories in-process",
	Long: `Evaluate repositories concurrently without a Temporal server and print the
aggregated result. Repositories come from arguments and --repos-file.

Examples:
  cigen batch https://github.com/acme/widget https://github.com/acme/gadget
  cigen batch --repos-file repos.txt --concurrency 8 --summary out/summary.json`,
	RunE: runBatch,
}

func init() {
	addBatchFlags(batchCmd)
	batchCmd.Flags().StringVar(&batchSummary, "summary", "", "write a JSON summary to this path")
}

// addBatchFlags registers the flags shared by batch and submit.
func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&batchReposFile, "repos-file", "", "file with one repository URL per line")
	cmd.Flags().StringVar(&batchModel, "model", "", "model label for branch names (default llm.model)")
	cmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "repositories evaluated at once (default 4)")
}

func runBatch(cmd *cobra.Command, args []string) error {
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
	ev, err := a.evaluator(ctx)
	if err != nil {
		return err
	}

	cfg := workflows.BatchConfig{
		Repos:       repos,
		Model:       modelOrDefault(batchModel, a.cfg.LLM.Model),
		Concurrency: batchConcurrency,
		SummaryPath: batchSummary,
	}
	result, err := workflows.RunLocal(ctx, ev, cfg, a.logger.Named("batch"))
	if err != nil && result == nil {
		return err
	}
	a.logger.Info(ctx, "batch finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
		return werr
	}
	return err
}

// collectRepos merges argument URLs with a file of URLs. Blank lines and
// lines starting with # are skipped.
func collectRepos(args []string, path string) ([]string, error) {
	repos := append([]string(nil), args...)
	if path == "" {
		return repos, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening repos file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		repos = append(repos, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading repos file: %w", err)
	}
	return repos, nil
}
