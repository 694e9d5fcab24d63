// Package batch runs the file-based variants: read a prompt file, run one
// orchestration, and write the debug trace and output file.
package batch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/heavy-vote/heavy/artifact"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/config"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

// Report describes one finished batch run.
type Report struct {
	RunID      string
	DebugPath  string
	OutputPath string
	Final      string
}

// Runner executes batch runs with a fixed orchestrator.
type Runner struct {
	orch   *majority.Orchestrator
	cfg    config.BatchConfig
	system string
	guard  *harness.Guardrails
	extra  []majority.Recorder
	logger zerolog.Logger
}

// NewRunner builds a batch runner. systemPrompt, when set, is placed before
// the prompt as static role history. extra recorders receive every stage
// after the debug file.
func NewRunner(orch *majority.Orchestrator, cfg config.BatchConfig, systemPrompt string, guard *harness.Guardrails, logger zerolog.Logger, extra ...majority.Recorder) *Runner {
	return &Runner{
		orch:   orch,
		cfg:    cfg,
		system: systemPrompt,
		guard:  guard,
		extra:  extra,
		logger: logger.With().Str("component", "batch").Logger(),
	}
}

// RunOnce reads the prompt file and runs it. A missing prompt file yields a
// placeholder and a *heavy.StartupConfigError before any remote call.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	prompt, err := artifact.LoadPrompt(r.cfg.PromptFile)
	if err != nil {
		return nil, err
	}

	conv := majority.NewConversation()
	if r.system != "" {
		conv = conv.With(majority.System(r.system))
	}
	conv = conv.With(majority.User(prompt))

	debug := artifact.NewDebugFile(r.cfg.DebugDir, r.cfg.ArtifactPrefix, r.guard)
	recorders := append(majority.Recorders{debug}, r.extra...)

	res, err := r.orch.Run(ctx, conv,
		majority.WithRecorder(recorders),
		majority.WithObserver(func(run majority.RunInfo, s majority.State) {
			r.logger.Info().Str("run_id", run.ID).Msg(progress(s))
		}),
	)
	if err != nil {
		return nil, err
	}

	out, err := artifact.WriteOutput(r.cfg.OutputDir, r.cfg.ArtifactPrefix, res.Run.StartedAt, res.Final)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", res.Run.ID, err)
	}

	report := &Report{
		RunID:      res.Run.ID,
		DebugPath:  debug.Path(res.Run.ID),
		OutputPath: out,
		Final:      res.Final,
	}
	r.logger.Info().
		Str("run_id", report.RunID).
		Str("output", report.OutputPath).
		Str("debug", report.DebugPath).
		Msg("batch run complete")

	return report, nil
}

func progress(s majority.State) string {
	switch s {
	case majority.StateCollecting:
		return "Running agents..."
	case majority.StateAggregating:
		return "Voting..."
	case majority.StateFinalizing:
		return "Finalizing..."
	case majority.StateDone:
		return "Done."
	default:
		return "Run " + string(s)
	}
}
