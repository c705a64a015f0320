// Package supervisor runs the agent runtime under fixed step, time and failure
// budgets and turns its terminal state into a result.Outcome.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/workflowagents/loopagent"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/result"
)

// State is the lifecycle state of a run.
type State int

// Run states.
const (
	Idle State = iota
	Running
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSleeper replaces the timer used for retry delays.
func WithSleeper(s Sleeper) Option {
	return func(sv *Supervisor) { sv.sleeper = s }
}

// WithRecorder records every step when Budgets.SaveTrace is set.
func WithRecorder(r Recorder) Option {
	return func(sv *Supervisor) { sv.recorder = r }
}

// Supervisor drives a Runtime through an ADK loop agent. A Supervisor runs once.
type Supervisor struct {
	budgets  Budgets
	rt       Runtime
	sleeper  Sleeper
	recorder Recorder

	mu          sync.Mutex
	state       State
	steps       int
	consecutive int
	waits       int
	errs        []string
	outcome     *result.Outcome
}

// New returns a supervisor for rt. Zero budget fields fall back to defaults.
func New(b Budgets, rt Runtime, opts ...Option) *Supervisor {
	def := DefaultBudgets()
	if b.MaxSteps == 0 {
		b.MaxSteps = def.MaxSteps
	}
	if b.MaxActionsPerStep == 0 {
		b.MaxActionsPerStep = def.MaxActionsPerStep
	}
	if b.StepTimeout == 0 {
		b.StepTimeout = def.StepTimeout
	}
	if b.MaxConsecutiveFailures == 0 {
		b.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}

	s := &Supervisor{
		budgets: b,
		rt:      rt,
		sleeper: timerSleeper{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Steps returns the number of steps executed so far.
func (s *Supervisor) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Waits returns the number of retry delays taken so far.
func (s *Supervisor) Waits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waits
}

// Run executes the task under the configured budgets. It always returns an
// outcome; there is no retry of the whole run.
func (s *Supervisor) Run(ctx context.Context, taskPrompt string, reg *action.Registry) result.Outcome {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return result.Failed("supervisor already used for a run")
	}
	s.state = Running
	s.mu.Unlock()

	if err := s.budgets.Validate(); err != nil {
		return s.exhaust(ctx, fmt.Sprintf("invalid budgets: %v", err))
	}

	startedAt := time.Now()
	log.Info().
		Int("max_steps", s.budgets.MaxSteps).
		Int("max_actions_per_step", s.budgets.MaxActionsPerStep).
		Dur("step_timeout", s.budgets.StepTimeout).
		Int("max_consecutive_failures", s.budgets.MaxConsecutiveFailures).
		Dur("retry_delay", s.budgets.RetryDelay).
		Bool("vision", s.budgets.UseVision).
		Msg("Run started")

	stepAgent, err := agent.New(agent.Config{
		Name:        "evalrunner_step",
		Description: "Runs one reason-then-act step of the verification run",
		Run: func(ictx agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return s.runStep(ictx, taskPrompt, reg)
		},
	})
	if err != nil {
		return s.exhaust(ctx, fmt.Sprintf("create step agent: %v", err))
	}

	la, err := loopagent.New(loopagent.Config{
		MaxIterations: uint(s.budgets.MaxSteps),
		AgentConfig: agent.Config{
			Name:        "evalrunner_loop",
			Description: "Verification loop bounded by the step budget",
			SubAgents:   []agent.Agent{stepAgent},
		},
	})
	if err != nil {
		return s.exhaust(ctx, fmt.Sprintf("create loop agent: %v", err))
	}

	runErr := runAgent(ctx, runInput{
		Agent:   la,
		Message: taskPrompt,
		OnEvent: func(ev *session.Event) {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				log.Debug().Str("author", ev.Author).Msg(ev.Content.Parts[0].Text)
			}
		},
	})

	var outcome result.Outcome
	if o := s.finished(); o != nil {
		outcome = *o
	} else if runErr != nil {
		outcome = s.exhaust(ctx, fmt.Sprintf("run aborted: %v", runErr))
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		outcome = s.exhaust(ctx, fmt.Sprintf("run aborted: %v", ctxErr))
	} else {
		outcome = s.exhaust(ctx, fmt.Sprintf("max steps (%d) reached without a final answer", s.budgets.MaxSteps))
	}

	log.Info().
		Str("state", s.State().String()).
		Int("steps", s.Steps()).
		Dur("duration", time.Since(startedAt)).
		Msg("Run finished")
	return outcome
}

func (s *Supervisor) runStep(ictx agent.InvocationContext, taskPrompt string, reg *action.Registry) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		if s.finished() != nil {
			yield(s.event(ictx, "run already finished", true), nil)
			return
		}

		n := s.beginStep()
		started := time.Now()

		stepCtx, cancel := context.WithTimeout(ictx, s.budgets.StepTimeout)
		res, err := s.step(stepCtx, StepInput{
			Number:     n,
			Task:       taskPrompt,
			Registry:   reg,
			MaxActions: s.budgets.MaxActionsPerStep,
			UseVision:  s.budgets.UseVision,
		})
		timedOut := errors.Is(stepCtx.Err(), context.DeadlineExceeded)
		cancel()
		if timedOut {
			if err != nil {
				err = fmt.Errorf("step timed out after %s: %w", s.budgets.StepTimeout, err)
			} else {
				err = fmt.Errorf("step timed out after %s", s.budgets.StepTimeout)
			}
		}

		rec := StepRecord{
			Number:   n,
			Actions:  res.Actions,
			Thought:  res.Thought,
			Duration: time.Since(started),
		}

		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			s.record(ictx, rec)
			failures := s.failStep(n, err)

			log.Warn().Int("step", n).Int("consecutive_failures", failures).Dur("duration", rec.Duration).Err(err).Msg("Step failed")

			if err := s.sleeper.Sleep(ictx, s.budgets.RetryDelay); err != nil {
				s.exhaust(ictx, fmt.Sprintf("run aborted during retry delay: %v", err))
				yield(s.event(ictx, "aborted", true), nil)
				return
			}
			s.countWait()

			if failures >= s.budgets.MaxConsecutiveFailures {
				s.exhaust(ictx, fmt.Sprintf("stopped after %d consecutive step failures", failures))
				yield(s.event(ictx, fmt.Sprintf("step %d failed, failure budget exhausted", n), true), nil)
				return
			}
			yield(s.event(ictx, fmt.Sprintf("step %d failed", n), false), nil)
			return
		}

		s.succeedStep()

		if res.Final != nil {
			rec.Status = StatusFinal
			s.record(ictx, rec)
			out, perr := result.Parse(res.Final)
			if perr != nil {
				log.Warn().Int("step", n).Err(perr).Msg("Final answer rejected")
				s.exhaust(ictx, fmt.Sprintf("final answer rejected: %v", perr))
			} else {
				s.succeed(ictx, out)
			}
			yield(s.event(ictx, fmt.Sprintf("step %d produced a final answer", n), true), nil)
			return
		}

		rec.Status = StatusOK
		s.record(ictx, rec)
		log.Info().Int("step", n).Int("actions", len(res.Actions)).Dur("duration", rec.Duration).Msg("Step completed")
		yield(s.event(ictx, fmt.Sprintf("step %d completed", n), false), nil)
	}
}

type stepReply struct {
	res StepResult
	err error
}

// step calls the runtime and returns as soon as ctx is done, whether or not
// the runtime honours it. An abandoned call keeps running in the background.
func (s *Supervisor) step(ctx context.Context, in StepInput) (StepResult, error) {
	done := make(chan stepReply, 1)
	go func() {
		res, err := s.rt.Step(ctx, in)
		done <- stepReply{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return StepResult{}, ctx.Err()
	}
}

func (s *Supervisor) event(ictx agent.InvocationContext, text string, escalate bool) *session.Event {
	ev := session.NewEvent(ictx.InvocationID())
	ev.Author = "evalrunner_step"
	ev.Content = genai.NewContentFromText(text, genai.RoleModel)
	ev.Actions.Escalate = escalate
	return ev
}

func (s *Supervisor) beginStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps++
	return s.steps
}

func (s *Supervisor) failStep(n int, err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive++
	s.errs = append(s.errs, fmt.Sprintf("step %d: %v", n, err))
	return s.consecutive
}

func (s *Supervisor) succeedStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutive = 0
}

func (s *Supervisor) countWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits++
}

func (s *Supervisor) finished() *result.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Supervisor) succeed(ctx context.Context, out result.AgentOutput) {
	o := result.Succeeded(out)
	s.mu.Lock()
	s.state = Succeeded
	s.outcome = &o
	s.mu.Unlock()
	s.recordOutcome(ctx, Succeeded, o)
}

// exhaust ends the run with the accumulated error trace followed by reason.
func (s *Supervisor) exhaust(ctx context.Context, reason string) result.Outcome {
	s.mu.Lock()
	if s.outcome != nil {
		o := *s.outcome
		s.mu.Unlock()
		return o
	}
	errs := append(append([]string{}, s.errs...), reason)
	o := result.Failed(errs...)
	s.state = Exhausted
	s.outcome = &o
	s.mu.Unlock()

	log.Warn().Str("reason", reason).Msg("Run exhausted")
	s.recordOutcome(ctx, Exhausted, o)
	return o
}

func (s *Supervisor) record(ctx context.Context, rec StepRecord) {
	if !s.budgets.SaveTrace || s.recorder == nil {
		return
	}
	if err := s.recorder.RecordStep(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Int("step", rec.Number).Msg("Failed to record step")
	}
}

func (s *Supervisor) recordOutcome(ctx context.Context, state State, o result.Outcome) {
	if !s.budgets.SaveTrace || s.recorder == nil {
		return
	}
	if err := s.recorder.RecordOutcome(context.WithoutCancel(ctx), state, o); err != nil {
		log.Warn().Err(err).Msg("Failed to record outcome")
	}
}
