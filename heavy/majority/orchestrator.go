package majority

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/heavy-vote/heavy/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a phase of a run.
type State string

const (
	StateCollecting  State = "COLLECTING"
	StateAggregating State = "AGGREGATING"
	StateFinalizing  State = "FINALIZING"
	StateDone        State = "DONE"
	StateAborted     State = "ABORTED"
)

// Result is the outcome of a completed run.
type Result struct {
	Run         RunInfo
	Candidates  []Candidate
	Aggregation Aggregation
	Final       string
}

// Options configures an Orchestrator.
type Options struct {
	Agents         int
	Workers        int
	SortCandidates bool
	Model          string
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

// Orchestrator sequences COLLECTING -> AGGREGATING -> FINALIZING -> DONE.
// Any error aborts the run; nothing is retried.
type Orchestrator struct {
	runner     *AgentRunner
	aggregator Aggregator
	finalizer  *Finalizer
	opts       Options
	logger     zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewOrchestrator wires the phases. A nil finalizer skips FINALIZING and the
// aggregated text becomes the final text.
func NewOrchestrator(runner *AgentRunner, aggregator Aggregator, finalizer *Finalizer, opts Options) *Orchestrator {
	if opts.Agents <= 0 {
		opts.Agents = 1
	}
	return &Orchestrator{
		runner:     runner,
		aggregator: aggregator,
		finalizer:  finalizer,
		opts:       opts,
		logger:     opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// RunOption customizes one run.
type RunOption func(*runConfig)

type runConfig struct {
	recorder Recorder
	observe  func(RunInfo, State)
}

// WithRecorder persists the run through rec.
func WithRecorder(rec Recorder) RunOption {
	return func(c *runConfig) { c.recorder = rec }
}

// WithObserver is called on every state transition, including ABORTED.
func WithObserver(fn func(RunInfo, State)) RunOption {
	return func(c *runConfig) { c.observe = fn }
}

func (o *Orchestrator) Mode() Mode { return o.aggregator.Mode() }

// Run executes one full orchestration over conv.
func (o *Orchestrator) Run(ctx context.Context, conv Conversation, opts ...RunOption) (res *Result, err error) {
	cfg := runConfig{recorder: nopRecorder{}, observe: func(RunInfo, State) {}}
	for _, opt := range opts {
		opt(&cfg)
	}

	run := RunInfo{
		ID:        o.newID(),
		Mode:      o.aggregator.Mode(),
		Model:     o.opts.Model,
		Prompt:    conv.Prompt(),
		StartedAt: o.now(),
	}
	logger := o.logger.With().Str("run_id", run.ID).Str("mode", string(run.Mode)).Logger()

	if err := cfg.recorder.Begin(ctx, run); err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	state := StateCollecting
	enter := func(s State) {
		state = s
		logger.Info().Str("state", string(s)).Msg("run state")
		cfg.observe(run, s)
	}

	defer func() {
		o.opts.Metrics.ObserveRun(string(run.Mode), err, o.now().Sub(run.StartedAt))
		if err == nil {
			return
		}
		failedIn := state
		enter(StateAborted)
		if ferr := cfg.recorder.Finish(ctx, run, StateAborted, err); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record aborted run")
		}
		logger.Error().Err(err).Str("failed_in", string(failedIn)).Msg("run aborted")
		err = fmt.Errorf("run %s aborted in %s: %w", run.ID, failedIn, err)
		res = nil
	}()

	enter(StateCollecting)
	candidates, err := Collect(ctx, o.runner, conv, o.opts.Agents, o.opts.Workers)
	if err != nil {
		return nil, err
	}
	if o.opts.SortCandidates {
		candidates = SortByAgent(candidates)
	}
	if err = cfg.recorder.Candidates(ctx, run, candidates); err != nil {
		return nil, err
	}

	enter(StateAggregating)
	agg, err := o.aggregator.Aggregate(ctx, conv, candidates)
	if err != nil {
		return nil, err
	}
	if err = cfg.recorder.Aggregation(ctx, run, agg); err != nil {
		return nil, err
	}

	final := agg.Text
	if o.finalizer != nil {
		enter(StateFinalizing)
		if final, err = o.finalizer.Finalize(ctx, conv, agg.Text); err != nil {
			return nil, err
		}
	}
	if err = cfg.recorder.Final(ctx, run, final); err != nil {
		return nil, err
	}

	if err = cfg.recorder.Finish(ctx, run, StateDone, nil); err != nil {
		return nil, err
	}
	enter(StateDone)

	return &Result{Run: run, Candidates: candidates, Aggregation: agg, Final: final}, nil
}
