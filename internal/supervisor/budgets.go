package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// Default budget values.
const (
	DefaultMaxSteps               = 200
	DefaultMaxActionsPerStep      = 1
	DefaultStepTimeout            = 100 * time.Second
	DefaultMaxConsecutiveFailures = 5
	DefaultRetryDelay             = 5 * time.Second
)

// Budgets bound the resources a run may consume.
type Budgets struct {
	// MaxSteps is the hard ceiling on steps for the whole run.
	MaxSteps int
	// MaxActionsPerStep caps the actions committed per reasoning decision.
	MaxActionsPerStep int
	// StepTimeout is the wall-clock ceiling of a single step.
	StepTimeout time.Duration
	// MaxConsecutiveFailures aborts the run after this many failures in a row.
	MaxConsecutiveFailures int
	// RetryDelay is waited after every failed step.
	RetryDelay time.Duration
	// UseVision lets the runtime attach a screenshot to each reasoning request.
	UseVision bool
	// SaveTrace records every step through the configured Recorder.
	SaveTrace bool
}

// DefaultBudgets returns the budgets a run uses when nothing is configured.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxSteps:               DefaultMaxSteps,
		MaxActionsPerStep:      DefaultMaxActionsPerStep,
		StepTimeout:            DefaultStepTimeout,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		RetryDelay:             DefaultRetryDelay,
		UseVision:              true,
	}
}

// Validate reports budgets that cannot guarantee termination.
func (b Budgets) Validate() error {
	var errs []error
	if b.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("max_steps must be >= 1, got %d", b.MaxSteps))
	}
	if b.MaxActionsPerStep < 1 {
		errs = append(errs, fmt.Errorf("max_actions_per_step must be >= 1, got %d", b.MaxActionsPerStep))
	}
	if b.StepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("step_timeout must be positive, got %s", b.StepTimeout))
	}
	if b.MaxConsecutiveFailures < 1 {
		errs = append(errs, fmt.Errorf("max_consecutive_failures must be >= 1, got %d", b.MaxConsecutiveFailures))
	}
	if b.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", b.RetryDelay))
	}
	return errors.Join(errs...)
}
