package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var fileSchema string

var compiledFileSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(fileSchema))
})

// EnvPrefix prefixes environment overrides of every key, e.g. EVALRUNNER_BUDGETS_MAX_STEPS.
const EnvPrefix = "EVALRUNNER"

// aliases binds the environment names the harness host already exports.
var aliases = map[string][]string{
	"app_url":           {"EVAL_TOOL_APP_URL"},
	"model.api_key":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"runtime.telemetry": {"ANONYMIZED_TELEMETRY"},
	"runtime.log_level": {"BROWSER_USE_LOGGING_LEVEL"},
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_url", "")

	v.SetDefault("budgets.max_steps", 200)
	v.SetDefault("budgets.max_actions_per_step", 1)
	v.SetDefault("budgets.step_timeout", "100s")
	v.SetDefault("budgets.max_consecutive_failures", 5)
	v.SetDefault("budgets.retry_delay", "5s")
	v.SetDefault("budgets.use_vision", true)
	v.SetDefault("budgets.save_trace", false)

	v.SetDefault("runtime.log_level", "error")
	v.SetDefault("runtime.telemetry", false)
	v.SetDefault("runtime.flash_mode", false)
	v.SetDefault("runtime.generate_gif", false)
	v.SetDefault("runtime.memory_limit", 100)

	v.SetDefault("model.name", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 1024)

	v.SetDefault("evidence.inline", true)
	v.SetDefault("evidence.dir", "")

	v.SetDefault("trace.path", "evalrunner-trace.db")

	v.SetDefault("output.fd", 3)
	v.SetDefault("output.file", "")
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration from defaults, an optional config file and
// the environment, in increasing precedence.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		settings, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return Config{}, fmt.Errorf("merge config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// readFile parses path on its own viper so the file can be checked against
// schema.json before it is layered over the defaults. Environment values are
// strings and are left to Unmarshal and Validate.
func readFile(path string) (map[string]any, error) {
	fv := viper.New()
	fv.SetConfigFile(path)
	if err := fv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	settings := fv.AllSettings()

	schema, err := compiledFileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(settings))
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", path, err)
	}
	if !res.Valid() {
		problems := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			problems = append(problems, e.Field()+": "+e.Description())
		}
		slices.Sort(problems)
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, strings.Join(problems, "; "))
	}
	return settings, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook decodes "5s"-style strings and bare numbers, taken as seconds.
func durationHook() mapstructure.DecodeHookFuncType {
	return func(_, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			s := strings.TrimSpace(v)
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return secondsToDuration(n), nil
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("parse duration %q: %w", v, err)
			}
			return d, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return secondsToDuration(v), nil
		}
		return data, nil
	}
}

func secondsToDuration(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}
