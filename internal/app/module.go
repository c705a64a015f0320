package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/metalagman/evalrunner/internal/action"
	"github.com/metalagman/evalrunner/internal/agent"
	"github.com/metalagman/evalrunner/internal/browser"
	"github.com/metalagman/evalrunner/internal/config"
	"github.com/metalagman/evalrunner/internal/emit"
	"github.com/metalagman/evalrunner/internal/evidence"
	"github.com/metalagman/evalrunner/internal/logging"
	"github.com/metalagman/evalrunner/internal/result"
	"github.com/metalagman/evalrunner/internal/supervisor"
	"github.com/metalagman/evalrunner/internal/task"
	"github.com/metalagman/evalrunner/internal/trace"
)

// Instructions is the rendered operating instructions document.
type Instructions string

// Run builds the dependency graph for cfg, runs d and tears everything down.
// d must already be loaded so a malformed descriptor never starts a browser.
// A runtime that cannot start still produces a failed result document; only
// a result channel write failure is returned.
func Run(ctx context.Context, cfg config.Config, instructions string, d task.Descriptor) error {
	emitter := emit.NewEmitter(newSink(cfg))

	var p *Pipeline
	fxApp := fx.New(
		fx.Supply(cfg, Instructions(instructions), emitter),
		fx.WithLogger(func() fxevent.Logger {
			if logging.DebugEnabled() {
				return &fxevent.ConsoleLogger{W: os.Stderr}
			}
			return fxevent.NopLogger
		}),
		Module(),
		fx.Populate(&p),
	)
	if err := fxApp.Err(); err != nil {
		return startFailed(emitter, err)
	}
	if err := fxApp.Start(ctx); err != nil {
		return startFailed(emitter, err)
	}
	defer func() {
		if err := fxApp.Stop(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("shutdown incomplete")
		}
	}()

	return p.Run(ctx, d)
}

func startFailed(emitter *emit.Emitter, err error) error {
	log.Error().Err(err).Msg("Runtime failed to start")
	return emitter.Emit(result.Failed(fmt.Sprintf("start runtime: %v", err)))
}

// Module provides every component of a run from a supplied config.Config,
// Instructions and *emit.Emitter.
func Module() fx.Option {
	return fx.Module("evalrunner",
		fx.Provide(
			newEvidenceStore,
			newPage,
			newReasoner,
			newAgent,
			newRegistry,
			newTraceStore,
			newPipeline,
		),
	)
}

// Budgets maps the configured budgets onto the supervisor's.
func Budgets(c config.Budgets) supervisor.Budgets {
	return supervisor.Budgets{
		MaxSteps:               c.MaxSteps,
		MaxActionsPerStep:      c.MaxActionsPerStep,
		StepTimeout:            c.StepTimeout,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		RetryDelay:             c.RetryDelay,
		UseVision:              c.UseVision,
		SaveTrace:              c.SaveTrace,
	}
}

func newSink(cfg config.Config) emit.Sink {
	if cfg.Output.File != "" {
		return emit.FileSink(cfg.Output.File)
	}
	return emit.FDSink(cfg.Output.FD)
}

func newEvidenceStore(cfg config.Config) *evidence.Store {
	return evidence.NewStore(cfg.Evidence.Dir)
}

func newPage(lc fx.Lifecycle, cfg config.Config) (browser.Page, error) {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.ExecPath = cfg.Browser.ExecPath
	if cfg.Browser.Width > 0 {
		opts.WindowWidth = cfg.Browser.Width
	}
	if cfg.Browser.Height > 0 {
		opts.WindowHeight = cfg.Browser.Height
	}

	page, err := browser.Launch(context.Background(), opts)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return page.Close() },
	})
	return page, nil
}

func newReasoner(cfg config.Config) (agent.Reasoner, error) {
	r, err := agent.NewGeminiReasoner(context.Background(), agent.GeminiConfig{
		Model:       cfg.Model.Name,
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		Temperature: cfg.Model.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newAgent(cfg config.Config, page browser.Page, reasoner agent.Reasoner) (*agent.Agent, error) {
	l, err := logging.Component("runtime", cfg.Runtime.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.Runtime.GenerateGIF {
		log.Debug().Msg("runtime.generate_gif is accepted but no recording is produced")
	}
	return agent.New(page, reasoner, agent.Options{
		FlashMode:   cfg.Runtime.FlashMode,
		Telemetry:   cfg.Runtime.Telemetry,
		MemoryLimit: cfg.Runtime.MemoryLimit,
		Logger:      l,
	}), nil
}

func newRegistry(page browser.Page, store *evidence.Store) (*action.Registry, error) {
	reg := action.NewRegistry()
	if err := browser.RegisterActions(reg, page); err != nil {
		return nil, err
	}
	if err := evidence.New(page, store).Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func newTraceStore(lc fx.Lifecycle, cfg config.Config) (*trace.Store, error) {
	if !cfg.Budgets.SaveTrace {
		return nil, nil
	}
	db, err := trace.Open(cfg.Trace.Path)
	if err != nil {
		return nil, err
	}
	store := trace.NewStore(db)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

type pipelineParams struct {
	fx.In

	Config       config.Config
	Instructions Instructions
	Registry     *action.Registry
	Agent        *agent.Agent
	Emitter      *emit.Emitter
	Evidence     *evidence.Store
	Trace        *trace.Store
}

func newPipeline(p pipelineParams) *Pipeline {
	return &Pipeline{
		Budgets:        Budgets(p.Config.Budgets),
		AppURL:         p.Config.AppURL,
		Instructions:   string(p.Instructions),
		Registry:       p.Registry,
		Runtime:        p.Agent,
		Emitter:        p.Emitter,
		Evidence:       p.Evidence,
		InlineEvidence: p.Config.Evidence.Inline,
		Trace:          p.Trace,
		Memory:         memoryMessages(p.Agent),
	}
}

func memoryMessages(a *agent.Agent) func() []trace.Message {
	return func() []trace.Message {
		entries := a.Memory()
		out := make([]trace.Message, 0, len(entries))
		for _, e := range entries {
			out = append(out, trace.Message{Step: e.Step, Kind: e.Kind, Text: e.Text})
		}
		return out
	}
}
