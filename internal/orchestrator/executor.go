package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/logging"
)

// Default CI polling parameters.
const (
	DefaultPollInterval = 15 * time.Second
	DefaultPollAttempts = 40
)

// ProgressStatus is the phase of a progress report.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressAborted   ProgressStatus = "aborted"
)

// Progress reports one node transition.
type Progress struct {
	RunID     string         `json:"run_id"`
	Node      NodeTag        `json:"node"`
	Status    ProgressStatus `json:"status"`
	Step      int            `json:"step"`
	StepLimit int            `json:"step_limit"`
	LoopCount int            `json:"loop_count"`
	Message   string         `json:"message,omitempty"`
}

// ProgressCallback receives progress updates during a run.
type ProgressCallback func(p Progress)

// Deps are the collaborators a run needs. Retrieval is optional.
type Deps struct {
	Repository RepositoryService
	Generation GenerationService
	Validation ValidationService
	Retrieval  RetrievalService
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMeter sets the meter used for run and node metrics.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithTracer sets the tracer used for run and node spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithPolling sets the CI polling interval and attempt ceiling.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(o *Orchestrator) {
		o.pollInterval = interval
		o.pollAttempts = attempts
	}
}

// WithSleep replaces the wait between CI polls.
func WithSleep(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithClassifier replaces the default RuleClassifier.
func WithClassifier(c Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithProgress sets the progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(o *Orchestrator) { o.progress = cb }
}

// Orchestrator sequences the pipeline nodes for one run at a time. It holds
// no per-run state, so one Orchestrator may drive concurrent runs.
type Orchestrator struct {
	deps         Deps
	logger       *logging.Logger
	meter        metric.Meter
	tracer       trace.Tracer
	metrics      *Metrics
	classifier   Classifier
	pollInterval time.Duration
	pollAttempts int
	sleep        Sleeper
	now          func() time.Time
	progress     ProgressCallback

	nodes map[NodeTag]Node
}

// New creates an Orchestrator over deps.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Repository == nil {
		return nil, errors.New("repository service is required")
	}
	if deps.Generation == nil {
		return nil, errors.New("generation service is required")
	}
	if deps.Validation == nil {
		return nil, errors.New("validation service is required")
	}

	o := &Orchestrator{
		deps:         deps,
		logger:       logging.NewNop(),
		classifier:   RuleClassifier{},
		pollInterval: DefaultPollInterval,
		pollAttempts: DefaultPollAttempts,
		sleep:        sleepContext,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.pollInterval < 0 {
		return nil, fmt.Errorf("poll interval must not be negative, got %s", o.pollInterval)
	}
	if o.pollAttempts < 1 {
		return nil, fmt.Errorf("poll attempts must be >= 1, got %d", o.pollAttempts)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(InstrumentationName)
	}

	m, err := NewMetrics(o.meter)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}
	o.metrics = m

	o.nodes = map[NodeTag]Node{
		NodeParse: &parseNode{
			repo:      deps.Repository,
			gen:       deps.Generation,
			retrieval: deps.Retrieval,
			now:       o.now,
		},
		NodeGenerate: &generateNode{repo: deps.Repository, gen: deps.Generation},
		NodeValidate: &validateNode{checks: deps.Validation, classifier: o.classifier},
		NodeExecute: &executeNode{
			repo:         deps.Repository,
			classifier:   o.classifier,
			pollInterval: o.pollInterval,
			pollAttempts: o.pollAttempts,
			sleep:        o.sleep,
			now:          o.now,
		},
		NodeExplain: &explainNode{repo: deps.Repository, gen: deps.Generation},
	}
	return o, nil
}

// Evaluate creates a run state from cfg and runs it.
func (o *Orchestrator) Evaluate(ctx context.Context, cfg RunConfig) (State, error) {
	s, err := NewState(cfg)
	if err != nil {
		return State{}, err
	}
	return o.Run(ctx, s)
}

// Run drives s from Parse to a terminal state and returns the final state.
// Infrastructure failures end the run normally with FinishEarly set. An
// error is returned only for cancellation or a broken invariant, together
// with the state reached so far. The working copy is released in every case.
func (o *Orchestrator) Run(ctx context.Context, s State) (final State, err error) {
	if s.RunID == "" || s.LoopMax < 1 {
		return s, errors.New("run state must be created with NewState")
	}
	ctx = logging.WithRunID(ctx, s.RunID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(
			attribute.String("run.id", s.RunID),
			attribute.String("repo.url", s.RepoURL),
			attribute.Int("loop.max", s.LoopMax),
		),
	)
	defer span.End()

	o.metrics.runStarted(ctx)
	o.logger.Info(ctx, "run started",
		zap.String("repo_url", s.RepoURL),
		zap.String("work_branch", s.WorkBranch),
		zap.Int("loop_max", s.LoopMax),
	)

	defer func() {
		o.release(ctx, final)
		status := final.FinalStatus
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.String("run.final_status", status),
			attribute.Int("run.loop_count", final.LoopCount),
		)
		o.metrics.runFinished(ctx, status)
	}()

	limit := StepLimit(s.LoopMax)
	current := NodeParse
	for step := 1; ; step++ {
		if step > limit {
			return s, fmt.Errorf("%w: %d steps, history %v", ErrStepLimit, limit, s.NodeHistory)
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		default:
		}

		s, err = o.step(ctx, current, s, step, limit)
		if err != nil {
			return s, err
		}

		if current == NodeParse && s.Repo.Owner != "" {
			if rctx, rerr := logging.WithRepository(ctx, s.Repo.Owner, s.Repo.Name); rerr == nil {
				ctx = rctx
			}
		}

		next, done := nextNode(current, s)
		if done {
			break
		}
		current = next
	}

	o.logger.Info(ctx, "run finished",
		zap.String("final_status", s.FinalStatus),
		zap.Bool("finish_early", s.FinishEarly),
		zap.Int("loop_count", s.LoopCount),
		zap.Int("steps", len(s.NodeHistory)),
		zap.String("merge_request", s.MergeRequestURL),
	)
	return s, nil
}

// step runs one node and merges its update.
func (o *Orchestrator) step(ctx context.Context, tag NodeTag, s State, step, limit int) (State, error) {
	node, ok := o.nodes[tag]
	if !ok {
		return s, fmt.Errorf("no node registered for %q", tag)
	}

	ctx, span := o.tracer.Start(ctx, "node."+string(tag),
		trace.WithAttributes(
			attribute.Int("step", step),
			attribute.Int("loop.count", s.LoopCount),
		),
	)
	defer span.End()

	o.report(Progress{RunID: s.RunID, Node: tag, Status: ProgressStarted, Step: step, StepLimit: limit, LoopCount: s.LoopCount})
	o.logger.Debug(ctx, "node started", zap.String("node", string(tag)), zap.Int("step", step))

	start := o.now()
	u, err := node.Run(ctx, s)
	elapsed := o.now().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.recordNode(ctx, tag, "error", elapsed)
		o.logger.Error(ctx, "node failed", zap.String("node", string(tag)), zap.Error(err))
		return s, fmt.Errorf("%s: %w", tag, err)
	}

	u.NodeTimings = append(u.NodeTimings, NodeTiming{Node: tag, Duration: elapsed})
	next := s.Apply(u)

	if tag == NodeGenerate && len(next.GenerationAttempts) > 0 {
		o.metrics.recordGenerate(ctx, next.GenerationAttempts[len(next.GenerationAttempts)-1].Source)
	}

	status, result := ProgressCompleted, "ok"
	if next.FinishEarly {
		status, result = ProgressAborted, "aborted"
		span.SetStatus(codes.Error, next.FinalStatus)
		o.logger.Warn(ctx, "run aborted",
			zap.String("node", string(tag)),
			zap.String("final_status", next.FinalStatus),
			zap.Strings("errors", u.Errors),
		)
	} else {
		for _, e := range u.Errors {
			o.logger.Warn(ctx, "node recorded error", zap.String("node", string(tag)), zap.String("error", e))
		}
	}
	o.metrics.recordNode(ctx, tag, result, elapsed)
	o.logger.Info(ctx, "node completed",
		zap.String("node", string(tag)),
		zap.Int("loop_count", next.LoopCount),
		zap.Duration("duration", elapsed),
	)
	o.report(Progress{
		RunID:     s.RunID,
		Node:      tag,
		Status:    status,
		Step:      step,
		StepLimit: limit,
		LoopCount: next.LoopCount,
		Message:   next.FinalStatus,
	})
	return next, nil
}

// release deletes the working copy. It runs after cancellation too and never
// changes the run state.
func (o *Orchestrator) release(ctx context.Context, s State) {
	if s.LocalPath == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := o.deps.Repository.DeleteLocalClone(ctx, s.LocalPath); err != nil {
		o.logger.Warn(ctx, "failed to release working copy",
			zap.String("local_path", s.LocalPath),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) report(p Progress) {
	if o.progress != nil {
		o.progress(p)
	}
}
