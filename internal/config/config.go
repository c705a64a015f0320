// Package config provides configuration loading and management for evalrunner.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration.
type Config struct {
	AppURL   string   `json:"app_url"  mapstructure:"app_url"`
	Budgets  Budgets  `json:"budgets"  mapstructure:"budgets"`
	Runtime  Runtime  `json:"runtime"  mapstructure:"runtime"`
	Model    Model    `json:"model"    mapstructure:"model"`
	Browser  Browser  `json:"browser"  mapstructure:"browser"`
	Evidence Evidence `json:"evidence" mapstructure:"evidence"`
	Trace    Trace    `json:"trace"    mapstructure:"trace"`
	Output   Output   `json:"output"   mapstructure:"output"`
}

// Budgets defines run limits.
type Budgets struct {
	MaxSteps               int           `json:"max_steps"                mapstructure:"max_steps"`
	MaxActionsPerStep      int           `json:"max_actions_per_step"     mapstructure:"max_actions_per_step"`
	StepTimeout            time.Duration `json:"step_timeout"             mapstructure:"step_timeout"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	RetryDelay             time.Duration `json:"retry_delay"              mapstructure:"retry_delay"`
	UseVision              bool          `json:"use_vision"               mapstructure:"use_vision"`
	SaveTrace              bool          `json:"save_trace"               mapstructure:"save_trace"`
}

// Runtime tunes the agent runtime.
type Runtime struct {
	LogLevel    string `json:"log_level"    mapstructure:"log_level"`
	Telemetry   bool   `json:"telemetry"    mapstructure:"telemetry"`
	FlashMode   bool   `json:"flash_mode"   mapstructure:"flash_mode"`
	GenerateGIF bool   `json:"generate_gif" mapstructure:"generate_gif"`
	MemoryLimit int    `json:"memory_limit" mapstructure:"memory_limit"`
}

// Model selects the reasoning model.
type Model struct {
	Name        string   `json:"name,omitempty"        mapstructure:"name"`
	APIKey      string   `json:"-"                     mapstructure:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"    mapstructure:"base_url"`
	Temperature *float32 `json:"temperature,omitempty" mapstructure:"temperature"`
}

// Browser configures the controlled browser.
type Browser struct {
	Headless bool   `json:"headless"            mapstructure:"headless"`
	ExecPath string `json:"exec_path,omitempty" mapstructure:"exec_path"`
	Width    int    `json:"width"               mapstructure:"width"`
	Height   int    `json:"height"              mapstructure:"height"`
}

// Evidence configures failure screenshots.
type Evidence struct {
	Inline bool   `json:"inline"        mapstructure:"inline"`
	Dir    string `json:"dir,omitempty" mapstructure:"dir"`
}

// Trace configures the debugging trace store.
type Trace struct {
	Path string `json:"path" mapstructure:"path"`
}

// Output selects the result channel.
type Output struct {
	FD   int    `json:"fd"             mapstructure:"fd"`
	File string `json:"file,omitempty" mapstructure:"file"`
}

// ErrInvalidConfig is returned when the loaded configuration is unusable.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the values a run cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.AppURL == "" {
		errs = append(errs, errors.New("app_url is required (EVAL_TOOL_APP_URL)"))
	} else if u, err := url.Parse(c.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("app_url %q is not an absolute URL", c.AppURL))
	}
	if c.Output.File == "" && c.Output.FD < 3 {
		errs = append(errs, fmt.Errorf("output.fd %d cannot carry the result (0, 1 and 2 are the standard streams)", c.Output.FD))
	}
	if c.Budgets.SaveTrace && c.Trace.Path == "" {
		errs = append(errs, errors.New("trace.path is required when budgets.save_trace is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
