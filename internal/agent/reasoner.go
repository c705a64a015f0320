package agent

import (
	"context"
	"encoding/json"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/browser"
)

// Call is one action the reasoner wants executed.
type Call struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Decision is the reasoner's answer for one step.
type Decision struct {
	Thought string
	Calls   []Call
}

// Usage counts the tokens a reasoning request consumed.
type Usage struct {
	PromptTokens int
	OutputTokens int
	TotalTokens  int
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens: u.PromptTokens + o.PromptTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
	}
}

// Request is everything the reasoner sees for one step.
type Request struct {
	Step int
	// System holds the runtime's own operating rules.
	System string
	// Task is the composed task prompt.
	Task string
	// Memory is the rendered working memory.
	Memory string
	// Results holds output of the previous step not kept in memory.
	Results    []string
	State      browser.State
	Screenshot []byte
	Actions    []action.Action
	MaxActions int
}

// Reasoner decides the next actions from a Request.
type Reasoner interface {
	Decide(ctx context.Context, req Request) (Decision, Usage, error)
}

// ReasonerFunc adapts a function to Reasoner.
type ReasonerFunc func(ctx context.Context, req Request) (Decision, Usage, error)

// Decide calls f.
func (f ReasonerFunc) Decide(ctx context.Context, req Request) (Decision, Usage, error) {
	return f(ctx, req)
}
