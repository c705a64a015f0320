// Package app wires the verification run: compose the task prompt, supervise
// the agent runtime and emit exactly one result document.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/emit"
	"github.com/metalagman/evalrunner/internal/evidence"
	"github.com/metalagman/evalrunner/internal/prompt"
	"github.com/metalagman/evalrunner/internal/result"
	"github.com/metalagman/evalrunner/internal/supervisor"
	"github.com/metalagman/evalrunner/internal/task"
	"github.com/metalagman/evalrunner/internal/trace"
)

// Pipeline runs one task end to end. Fields left nil are optional unless
// noted otherwise.
type Pipeline struct {
	Budgets      supervisor.Budgets
	AppURL       string
	Instructions string

	// Registry, Runtime and Emitter are required.
	Registry *action.Registry
	Runtime  supervisor.Runtime
	Emitter  *emit.Emitter

	Evidence       *evidence.Store
	InlineEvidence bool

	Trace  *trace.Store
	Memory func() []trace.Message

	Sleeper supervisor.Sleeper
}

// Run executes d and emits the outcome. The only error it returns is a
// failure to write the result document.
func (p *Pipeline) Run(ctx context.Context, d task.Descriptor) error {
	taskPrompt := prompt.Compose(p.Instructions, d, p.AppURL)
	started := time.Now()
	log.Info().
		Str("url", p.AppURL).
		Int("journeys", len(d.Journeys())).
		Int("max_steps", p.Budgets.MaxSteps).
		Msg("Verification started")

	var opts []supervisor.Option
	if p.Sleeper != nil {
		opts = append(opts, supervisor.WithSleeper(p.Sleeper))
	}
	var run *trace.Run
	if p.Budgets.SaveTrace && p.Trace != nil {
		r, err := p.Trace.Begin(ctx, taskPrompt)
		if err != nil {
			log.Warn().Err(err).Msg("trace disabled for this run")
		} else {
			run = r
			opts = append(opts, supervisor.WithRecorder(run))
		}
	}

	sv := supervisor.New(p.Budgets, p.Runtime, opts...)
	outcome := sv.Run(ctx, taskPrompt, p.Registry)

	if out, ok := outcome.Output(); ok {
		for _, w := range result.CheckJourneys(d.Journeys(), out) {
			log.Warn().Msg(w)
		}
		if p.InlineEvidence && p.Evidence != nil {
			outcome = result.Succeeded(p.Evidence.Resolve(out))
		}
	}

	if run != nil && p.Memory != nil {
		if err := run.RecordMessages(ctx, p.Memory()); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID()).Msg("record memory failed")
		}
	}

	log.Info().
		Str("state", sv.State().String()).
		Int("steps", sv.Steps()).
		Bool("success", outcome.IsSuccess()).
		Dur("elapsed", time.Since(started)).
		Msg("Verification finished")

	return p.Emitter.Emit(outcome)
}
