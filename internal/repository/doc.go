// Package repository implements the Git host and working copy operations used
// by the orchestrator.
//
// Local operations (clone, branch, stage, commit, push) use go-git. Host
// operations (repository metadata, Actions run lookup, pull requests) use the
// GitHub REST API through go-github, rate limited with golang.org/x/time/rate
// and retried with exponential backoff on transient and rate limit errors.
//
// # Working copies
//
// Each clone lives in its own directory under the configured work directory,
// named after the run id carried by the context (see logging.WithRunID) or a
// fresh UUID. DeleteLocalClone refuses to remove anything outside the work
// directory.
//
// # Security
//
//   - Relative paths are resolved inside the working copy; ".." escapes fail
//   - The token is sent only over HTTP(S) remotes, as basic auth
//   - ReadFile rejects files over 1MB and files that are not valid UTF-8
//
// # Usage
//
//	svc, err := repository.New(ctx, cfg.GitHub, cfg.Git, repository.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	path, err := svc.Clone(ctx, "https://github.com/acme/widget")
package repository
