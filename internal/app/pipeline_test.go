package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/browser"
	"github.com/metalagman/evalrunner/internal/config"
	"github.com/metalagman/evalrunner/internal/emit"
	"github.com/metalagman/evalrunner/internal/evidence"
	"github.com/metalagman/evalrunner/internal/supervisor"
	"github.com/metalagman/evalrunner/internal/task"
	"github.com/metalagman/evalrunner/internal/trace"
)

const todoAnswer = `{
	"analysis": [{"journey": "Add a todo", "passing": true, "steps": ["opened app", "typed text", "clicked add"], "failure": null}],
	"qualityEvaluation": {"rating": 8, "summary": "Works well", "categories": [{"name": "Functionality", "message": ""}]}
}`

func strPtr(s string) *string { return &s }

func instantSleeper() supervisor.Sleeper {
	return supervisor.SleeperFunc(func(context.Context, time.Duration) error { return nil })
}

func newTestPipeline(rt supervisor.Runtime, out *bytes.Buffer) *Pipeline {
	return &Pipeline{
		Budgets:      supervisor.DefaultBudgets(),
		AppURL:       "http://localhost:3000",
		Instructions: "You are a tester.",
		Registry:     action.NewRegistry(),
		Runtime:      rt,
		Emitter:      emit.NewEmitter(emit.WriterSink(out)),
		Sleeper:      instantSleeper(),
	}
}

func TestPipeline_TodoScenario(t *testing.T) {
	t.Parallel()

	var seenTask string
	rt := supervisor.RuntimeFunc(func(_ context.Context, in supervisor.StepInput) (supervisor.StepResult, error) {
		seenTask = in.Task
		if in.Number < 3 {
			return supervisor.StepResult{Actions: []supervisor.ActionRecord{{Name: "click"}}}, nil
		}
		return supervisor.StepResult{Final: json.RawMessage(todoAnswer)}, nil
	})

	var out bytes.Buffer
	p := newTestPipeline(rt, &out)
	d := task.Descriptor{AppPrompt: strPtr("A todo app"), UserJourneys: []string{"Add a todo"}}

	require.NoError(t, p.Run(context.Background(), d))
	assert.JSONEq(t, todoAnswer, out.String())
	assert.Contains(t, seenTask, "- **Live URL:** http://localhost:3000")
	assert.Contains(t, seenTask, "A todo app")
}

func TestPipeline_ExhaustedScenario(t *testing.T) {
	t.Parallel()

	rt := supervisor.RuntimeFunc(func(context.Context, supervisor.StepInput) (supervisor.StepResult, error) {
		return supervisor.StepResult{}, errors.New("element not found")
	})

	var out bytes.Buffer
	p := newTestPipeline(rt, &out)
	p.Budgets.MaxConsecutiveFailures = 2

	require.NoError(t, p.Run(context.Background(), task.Descriptor{}))

	var doc map[string][]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, []string{
		"step 1: element not found",
		"step 2: element not found",
		"stopped after 2 consecutive step failures",
	}, doc["errors"])
}

func TestPipeline_ChannelIsolation(t *testing.T) {
	t.Parallel()

	rt := supervisor.RuntimeFunc(func(_ context.Context, in supervisor.StepInput) (supervisor.StepResult, error) {
		fmt.Fprintln(os.Stdout, "INFO [agent] noisy runtime output")
		fmt.Fprintln(os.Stderr, "WARNING [browser] more noise")
		if in.Number == 1 {
			return supervisor.StepResult{}, errors.New("transient")
		}
		return supervisor.StepResult{Final: json.RawMessage(todoAnswer)}, nil
	})

	var out bytes.Buffer
	p := newTestPipeline(rt, &out)
	require.NoError(t, p.Run(context.Background(), task.Descriptor{}))

	assert.NotContains(t, out.String(), "noise")
	assert.JSONEq(t, todoAnswer, out.String())
}

func TestPipeline_ResolvesEvidence(t *testing.T) {
	t.Parallel()

	image := []byte("\x89PNG\r\n\x1a\nevidence")
	page := &browser.FakePage{Image: image}
	store := evidence.NewStore("")

	var out bytes.Buffer
	rt := supervisor.RuntimeFunc(func(ctx context.Context, in supervisor.StepInput) (supervisor.StepResult, error) {
		if in.Number == 1 {
			res, err := in.Registry.Invoke(ctx, evidence.ActionName,
				json.RawMessage(`{"expectation":"todo removed","actual":"still listed","description":"Delete a todo"}`))
			if err != nil {
				return supervisor.StepResult{}, err
			}
			return supervisor.StepResult{Actions: []supervisor.ActionRecord{{Name: evidence.ActionName, Content: res.Content}}}, nil
		}
		return supervisor.StepResult{Final: json.RawMessage(`{
			"analysis": [{"journey": "Delete a todo", "passing": false, "steps": ["clicked delete"],
				"failure": {"step": 1, "observed": "still listed", "expected": "removed", "screenshot": "evidence-1"}}],
			"qualityEvaluation": {"rating": 4, "summary": "Deletion broken", "categories": []}
		}`)}, nil
	})

	p := newTestPipeline(rt, &out)
	require.NoError(t, evidence.New(page, store).Register(p.Registry))
	p.Evidence = store
	p.InlineEvidence = true

	require.NoError(t, p.Run(context.Background(), task.Descriptor{UserJourneys: []string{"Delete a todo"}}))

	var doc struct {
		Analysis []struct {
			Failure struct {
				Screenshot string `json:"screenshot"`
			} `json:"failure"`
		} `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	require.Len(t, doc.Analysis, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), doc.Analysis[0].Failure.Screenshot)
}

func TestPipeline_RecordsTrace(t *testing.T) {
	t.Parallel()

	db, err := trace.Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	store := trace.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })

	rt := supervisor.RuntimeFunc(func(_ context.Context, in supervisor.StepInput) (supervisor.StepResult, error) {
		if in.Number == 1 {
			return supervisor.StepResult{}, errors.New("timeout")
		}
		return supervisor.StepResult{Final: json.RawMessage(todoAnswer)}, nil
	})

	var out bytes.Buffer
	p := newTestPipeline(rt, &out)
	p.Budgets.SaveTrace = true
	p.Trace = store
	p.Memory = func() []trace.Message {
		return []trace.Message{{Step: 2, Kind: "done", Text: "final answer submitted"}}
	}

	require.NoError(t, p.Run(context.Background(), task.Descriptor{}))
	assert.JSONEq(t, todoAnswer, out.String())
}

func TestPipeline_EmitFailureIsReturned(t *testing.T) {
	t.Parallel()

	rt := supervisor.RuntimeFunc(func(context.Context, supervisor.StepInput) (supervisor.StepResult, error) {
		return supervisor.StepResult{Final: json.RawMessage(todoAnswer)}, nil
	})

	var out bytes.Buffer
	p := newTestPipeline(rt, &out)
	path := filepath.Join(t.TempDir(), "missing-dir", "result.json")
	p.Emitter = emit.NewEmitter(emit.FileSink(path))

	err := p.Run(context.Background(), task.Descriptor{})
	assert.ErrorIs(t, err, emit.ErrChannelWrite)
}

func TestModule_GraphIsComplete(t *testing.T) {
	t.Parallel()

	cfg := config.Config{AppURL: "http://localhost:3000", Output: config.Output{FD: 3}}
	var out bytes.Buffer
	require.NoError(t, fx.ValidateApp(
		fx.Supply(cfg, Instructions("x"), emit.NewEmitter(emit.WriterSink(&out))),
		Module(),
		fx.Invoke(func(*Pipeline) {}),
	))
}

func TestRun_RuntimeStartFailureIsEmitted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "result.json")
	cfg := config.Config{
		AppURL:  "http://localhost:3000",
		Browser: config.Browser{Headless: true, ExecPath: filepath.Join(t.TempDir(), "no-such-chrome")},
		Output:  config.Output{File: path},
	}

	require.NoError(t, Run(context.Background(), cfg, "x", task.Descriptor{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string][]string
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc["errors"], 1)
	assert.Contains(t, doc["errors"][0], "start runtime: ")
}

func TestBudgets(t *testing.T) {
	t.Parallel()

	got := Budgets(config.Budgets{
		MaxSteps:               10,
		MaxActionsPerStep:      2,
		StepTimeout:            time.Second,
		MaxConsecutiveFailures: 3,
		RetryDelay:             time.Millisecond,
		UseVision:              true,
		SaveTrace:              true,
	})
	assert.Equal(t, supervisor.Budgets{
		MaxSteps:               10,
		MaxActionsPerStep:      2,
		StepTimeout:            time.Second,
		MaxConsecutiveFailures: 3,
		RetryDelay:             time.Millisecond,
		UseVision:              true,
		SaveTrace:              true,
	}, got)
}
