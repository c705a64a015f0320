package supervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/result"
)

// Runtime performs one reason-then-act step. It owns the browser session and
// its working memory across calls.
type Runtime interface {
	Step(ctx context.Context, in StepInput) (StepResult, error)
}

// RuntimeFunc adapts a function to Runtime.
type RuntimeFunc func(ctx context.Context, in StepInput) (StepResult, error)

// Step calls f.
func (f RuntimeFunc) Step(ctx context.Context, in StepInput) (StepResult, error) {
	return f(ctx, in)
}

// StepInput is what the supervisor hands the runtime for one step.
type StepInput struct {
	// Number is the 1-based step number within the run.
	Number     int
	Task       string
	Registry   *action.Registry
	MaxActions int
	UseVision  bool
}

// ActionRecord is one action the runtime executed during a step.
type ActionRecord struct {
	Name    string          `json:"name"`
	Args    json.RawMessage `json:"args,omitempty"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StepResult is what the runtime returns for a completed step.
type StepResult struct {
	Actions []ActionRecord
	// Final is the raw structured answer when the runtime declared the run done.
	Final json.RawMessage
	// Thought is the reasoner's short rationale, when it produced one.
	Thought string
}

// Status of a recorded step.
type Status string

// Step statuses.
const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
	StatusFinal  Status = "final"
)

// StepRecord is the trace entry of one step.
type StepRecord struct {
	Number   int
	Status   Status
	Actions  []ActionRecord
	Thought  string
	Error    string
	Duration time.Duration
}

// Recorder persists a run trace for debugging.
type Recorder interface {
	RecordStep(ctx context.Context, rec StepRecord) error
	RecordOutcome(ctx context.Context, state State, outcome result.Outcome) error
}

// Sleeper waits between a failed step and the next one.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
