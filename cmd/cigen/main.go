// Package main implements the cigen CLI.
//
// cigen generates a GitHub Actions workflow for a repository, checks it
// statically, runs it on a work branch and opens a pull request with the
// result. Many repositories can be evaluated locally or on a Temporal worker.
//
// Usage:
//
//	# Evaluate one repository
//	GITHUB_TOKEN=ghp_xxx LLM_API_KEY=sk-xxx cigen run https://github.com/acme/widget
//
//	# Evaluate a list in-process
//	cigen batch --repos-file repos.txt --summary out/summary.json
//
//	# Run the durable worker and submit to it
//	cigen worker
//	cigen submit https://github.com/acme/widget https://github.com/acme/gadget
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	logLevel   string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cigen",
	Short: "Generate and verify CI workflows with a language model",
	Long: `cigen drafts a GitHub Actions workflow for a repository, validates it with
yaml, actionlint, ghalint and secret checks, runs it on a work branch and opens a
pull request explaining the outcome.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/cigen/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides logging.level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
}
