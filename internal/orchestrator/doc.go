// Package orchestrator drives the generation of a CI workflow for one
// repository through a bounded state machine.
//
// # Overview
//
// A run starts at Parse and ends at Explain, or earlier when a node reports
// an infrastructure failure:
//
//	parse → generate → validate → {execute | generate} → {explain | generate} → explain
//
// Generate runs at most LoopMax times. The edges back to Generate are taken
// only for failures the Classifier marks retryable (configError) while
// budget remains; see ProceedToExecute and ProceedToExplain.
//
// # State
//
// State is passed to each Node by value. A Node returns an Update holding
// only the fields it changed, and State.Apply merges it with explicit
// per-field rules: scalars are last write wins, logs append, and the file
// tree and required files are replaced whole. Every log grows by exactly
// one entry per run of its node, including runs that abort.
//
// # Collaborators
//
// Git hosting, the generative model, static checks and retrieval are
// consumed through RepositoryService, GenerationService, ValidationService
// and RetrievalService. Implementations live in the repository,
// generation, validation and retrieval packages.
//
// # Usage
//
//	orch, err := orchestrator.New(orchestrator.Deps{
//	    Repository: repo,
//	    Generation: gen,
//	    Validation: checks,
//	}, orchestrator.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	final, err := orch.Evaluate(ctx, orchestrator.RunConfig{RepoURL: url})
//
// Run returns an error only for cancellation or a broken invariant such as
// ErrStepLimit. All other outcomes are reported through State.FinalStatus.
package orchestrator
