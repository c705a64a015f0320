// Package agent is the in-process agent runtime: one reason-then-act step per
// call, backed by a Reasoner and a browser page.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/browser"
	"github.com/metalagman/evalrunner/internal/result"
	"github.com/metalagman/evalrunner/internal/supervisor"
)

// DoneAction is the reserved call that carries the final answer.
const DoneAction = "done"

const defaultMemoryLimit = 100

// ErrNoAction is returned when the reasoner produced no call.
var ErrNoAction = errors.New("reasoner returned no action")

// Options tunes the runtime.
type Options struct {
	// FlashMode asks for actions only, without a written rationale.
	FlashMode bool
	// Telemetry logs token usage after every step.
	Telemetry bool
	// MemoryLimit caps working memory entries.
	MemoryLimit int
	// Logger receives runtime diagnostics.
	Logger zerolog.Logger
}

// Agent implements supervisor.Runtime.
type Agent struct {
	page     browser.Page
	reasoner Reasoner
	opts     Options
	log      zerolog.Logger

	memory  *Memory
	results []string
	usage   Usage
}

var _ supervisor.Runtime = (*Agent)(nil)

// New returns an agent driving page with reasoner.
func New(page browser.Page, reasoner Reasoner, opts Options) *Agent {
	limit := opts.MemoryLimit
	if limit == 0 {
		limit = defaultMemoryLimit
	}
	return &Agent{
		page:     page,
		reasoner: reasoner,
		opts:     opts,
		log:      opts.Logger,
		memory:   NewMemory(limit),
	}
}

// Memory returns the current working memory.
func (a *Agent) Memory() []Entry {
	return a.memory.Entries()
}

// Usage returns the accumulated token usage.
func (a *Agent) Usage() Usage {
	return a.usage
}

// DoneDefinition describes the reserved done call to the reasoner.
func DoneDefinition() action.Action {
	return action.Action{
		Name:        DoneAction,
		Description: "Finish the task. The arguments are the final answer document.",
		SideEffect:  action.ReadOnly,
		InputSchema: result.Schema(),
	}
}

// Step reads the page, asks the reasoner for a decision and executes at most
// in.MaxActions calls through the registry.
func (a *Agent) Step(ctx context.Context, in supervisor.StepInput) (supervisor.StepResult, error) {
	st, err := a.page.State(ctx)
	if err != nil {
		a.memory.Add(in.Number, KindError, err.Error())
		return supervisor.StepResult{}, fmt.Errorf("read browser state: %w", err)
	}

	var shot []byte
	if in.UseVision {
		shot, err = a.page.Screenshot(ctx, browser.ScreenshotOptions{Format: browser.PNG})
		if err != nil {
			a.log.Debug().Err(err).Int("step", in.Number).Msg("viewport screenshot failed, continuing without vision")
			shot = nil
		}
	}

	actions := append(in.Registry.Describe(), DoneDefinition())
	req := Request{
		Step:       in.Number,
		System:     systemPrompt(a.opts.FlashMode, in.MaxActions),
		Task:       in.Task,
		Memory:     Render(a.memory.Entries(), a.memory.Dropped()),
		Results:    a.results,
		State:      st,
		Screenshot: shot,
		Actions:    actions,
		MaxActions: in.MaxActions,
	}
	a.results = nil

	dec, usage, err := a.reasoner.Decide(ctx, req)
	a.usage = a.usage.Add(usage)
	if a.opts.Telemetry {
		a.log.Info().
			Int("step", in.Number).
			Int("prompt_tokens", usage.PromptTokens).
			Int("output_tokens", usage.OutputTokens).
			Int("total_tokens", a.usage.TotalTokens).
			Msg("token usage")
	}
	if err != nil {
		a.memory.Add(in.Number, KindError, err.Error())
		return supervisor.StepResult{}, fmt.Errorf("reasoner: %w", err)
	}
	if len(dec.Calls) == 0 {
		a.memory.Add(in.Number, KindError, ErrNoAction.Error())
		return supervisor.StepResult{Thought: dec.Thought}, ErrNoAction
	}

	if dec.Thought != "" {
		a.memory.Add(in.Number, KindThought, dec.Thought)
	}

	calls := dec.Calls
	if in.MaxActions > 0 && len(calls) > in.MaxActions {
		a.log.Debug().Int("step", in.Number).Int("requested", len(calls)).Int("allowed", in.MaxActions).Msg("dropping extra actions")
		calls = calls[:in.MaxActions]
	}

	res := supervisor.StepResult{Thought: dec.Thought}
	for i, c := range calls {
		if c.Name == DoneAction {
			res.Actions = append(res.Actions, supervisor.ActionRecord{Name: DoneAction})
			res.Final = c.Args
			a.memory.Add(in.Number, KindDone, "final answer submitted")
			return res, nil
		}

		rec := supervisor.ActionRecord{Name: c.Name, Args: c.Args}
		out, err := in.Registry.Invoke(ctx, c.Name, c.Args)
		if err != nil {
			rec.Error = err.Error()
			res.Actions = append(res.Actions, rec)
			a.memory.Add(in.Number, KindError, fmt.Sprintf("%s failed: %v", c.Name, err))
			return res, fmt.Errorf("action %s: %w", c.Name, err)
		}
		rec.Content = out.Content
		res.Actions = append(res.Actions, rec)

		a.log.Debug().Int("step", in.Number).Str("action", c.Name).Msg("action executed")

		if out.IncludeInMemory {
			a.memory.Add(in.Number, KindAction, fmt.Sprintf("%s: %s", c.Name, out.Content))
		} else {
			a.memory.Add(in.Number, KindAction, c.Name+" completed")
			if out.Content != "" {
				a.results = append(a.results, fmt.Sprintf("%s result:\n%s", c.Name, out.Content))
			}
		}

		// Later calls were planned against the page before it changed.
		if def, ok := in.Registry.Lookup(c.Name); ok && def.SideEffect == action.Mutating && i < len(calls)-1 {
			a.log.Debug().Int("step", in.Number).Int("skipped", len(calls)-i-1).Msg("page changed, skipping remaining actions")
			break
		}
	}
	return res, nil
}

func systemPrompt(flash bool, maxActions int) string {
	var b strings.Builder
	b.WriteString("You are a browser automation agent. Follow the task instructions strictly.\n")
	b.WriteString("- You control a real browser through function calls only. Never answer in plain text alone.\n")
	b.WriteString("- Each request shows the current URL, page title and indexed interactive elements like [3]<button>Add</button>.\n")
	b.WriteString("- Refer to elements by their index. Indexes change after every action; always use the latest list.\n")
	b.WriteString("- The memory section lists what you already did. Do not repeat actions that already succeeded.\n")
	fmt.Fprintf(&b, "- Call at most %d function(s) per response.\n", max(maxActions, 1))
	b.WriteString("- When every requested check is finished, call `done` with the final answer as its arguments.\n")
	if flash {
		b.WriteString("- Reply with function calls only. Do not write any reasoning.\n")
	} else {
		b.WriteString("- Before the function call, write one short sentence: what you observed and what you will do next.\n")
	}
	return b.String()
}
