// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the settings of a fitting run.
//
// Values are resolved with the precedence
//
//	command-line flags > ROTFIT_* environment > config file > defaults
//
// Keys are the snake_case names of the YAML document; nested keys map to
// environment variables with underscores, e.g. ROTFIT_INITIAL_PARAMS_P6 or
// ROTFIT_LOG_LEVEL.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/curioloop/rotfit/model"
	"github.com/curioloop/rotfit/objective"
)

const envPrefix = "ROTFIT"

// Config is the fully resolved configuration. It is not modified after Load.
type Config struct {
	InitialParams map[string]float64             `mapstructure:"initial_params" yaml:"initial_params"`
	Free          []string                       `mapstructure:"free" yaml:"free"`
	Bounds        map[string][]float64           `mapstructure:"bounds" yaml:"bounds,omitempty"`
	Tolerance     float64                        `mapstructure:"tolerance" yaml:"tolerance"`
	Target        float64                        `mapstructure:"target" yaml:"target"`
	Window        int                            `mapstructure:"window" yaml:"window"`
	MaxIterations int                            `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxRetries    int                            `mapstructure:"max_retries" yaml:"max_retries"`
	FDEpsilon     float64                        `mapstructure:"fd_epsilon" yaml:"fd_epsilon"`
	StepSize      float64                        `mapstructure:"step_size" yaml:"step_size"`
	MaxStep       float64                        `mapstructure:"max_step" yaml:"max_step"`
	ObjectiveMode string                         `mapstructure:"objective_mode" yaml:"objective_mode"`
	Targets       []string                       `mapstructure:"targets" yaml:"targets,omitempty"`
	References    map[string]objective.Reference `mapstructure:"references" yaml:"references,omitempty"`
	Log           LogConfig                      `mapstructure:"log" yaml:"log"`
	Output        OutputConfig                   `mapstructure:"output" yaml:"output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"tolerance":      "tolerance",
	"target":         "target",
	"window":         "window",
	"max-iterations": "max_iterations",
	"max-retries":    "max_retries",
	"fd-epsilon":     "fd_epsilon",
	"step-size":      "step_size",
	"max-step":       "max_step",
	"objective-mode": "objective_mode",
	"free":           "free",
	"targets":        "targets",
	"format":         "output.format",
	"metrics-file":   "output.metrics_file",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// BindFlags registers the command-line overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.Float64("tolerance", defaultTolerance, "Converge when the best objective improves less than this over the window")
	fs.Float64("target", defaultTarget, "Converge when the objective falls below this value")
	fs.Int("window", defaultWindow, "Number of iterations the improvement is measured over")
	fs.Int("max-iterations", defaultMaxIterations, "Iteration budget")
	fs.Int("max-retries", defaultMaxRetries, "Rejected candidates tolerated per iteration")
	fs.Float64("fd-epsilon", defaultFDEpsilon, "Relative step of the finite-difference Jacobian")
	fs.Float64("step-size", defaultStepSize, "Initial per-parameter step cap in log-space")
	fs.Float64("max-step", defaultMaxStep, "Largest per-parameter step cap in log-space")
	fs.String("objective-mode", defaultMode, "Residual form: log-relative or relative")
	fs.StringSlice("free", defaultFree, "Parameters varied by the optimizer")
	fs.StringSlice("targets", nil, "Constants entering the objective (default all)")
	fs.String("format", defaultFormat, "Report format: text, yaml or json")
	fs.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	fs.String("log-level", defaultLogLevel, "Log level: info, debug or trace")
	fs.String("log-format", defaultLogFormat, "Log format: console or json")
}

// Load resolves the configuration from defaults, the optional file at path,
// the environment and the changed flags of fs (which may be nil).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

func invalid(key string, format string, a ...any) error {
	return fmt.Errorf("%w %s: %s", ErrInvalid, key, fmt.Sprintf(format, a...))
}

// Params returns the seed parameter vector.
func (c *Config) Params() (model.Params, error) {
	p := model.DefaultParams
	for name, v := range c.InitialParams {
		q, err := model.ParseParam(name)
		if err != nil {
			return p, invalid("initial_params", "%v", err)
		}
		p[q] = v
	}
	return p, nil
}

// FreeParams returns the parameters the optimizer varies, in vector order.
func (c *Config) FreeParams() ([]model.Param, error) {
	seen := make(map[model.Param]bool, len(c.Free))
	for _, name := range c.Free {
		q, err := model.ParseParam(strings.TrimSpace(name))
		if err != nil {
			return nil, invalid("free", "%v", err)
		}
		if seen[q] {
			return nil, invalid("free", "duplicate parameter %s", q)
		}
		seen[q] = true
	}
	free := make([]model.Param, 0, len(seen))
	for q := model.L0; q < model.NumParams; q++ {
		if seen[q] {
			free = append(free, q)
		}
	}
	return free, nil
}

// ParamBounds returns the bounds keyed by parameter.
func (c *Config) ParamBounds() (map[model.Param][2]float64, error) {
	bounds := make(map[model.Param][2]float64, len(c.Bounds))
	for name, b := range c.Bounds {
		q, err := model.ParseParam(name)
		if err != nil {
			return nil, invalid("bounds", "%v", err)
		}
		if len(b) != 2 {
			return nil, invalid("bounds."+name, "want [lower, upper], got %d values", len(b))
		}
		if !(b[0] < b[1]) {
			return nil, invalid("bounds."+name, "lower %v must be below upper %v", b[0], b[1])
		}
		bounds[q] = [2]float64{b[0], b[1]}
	}
	return bounds, nil
}

// ReferenceSet returns the configured references, or the defaults when none are given.
// A partial set is kept as is so that missing constants surface when the objective is built.
func (c *Config) ReferenceSet() (objective.ReferenceSet, error) {
	if len(c.References) == 0 {
		return objective.DefaultReferences(), nil
	}
	refs := make(map[model.Name]objective.Reference, len(c.References))
	for name, r := range c.References {
		n, err := model.ParseName(name)
		if err != nil {
			return objective.ReferenceSet{}, invalid("references", "%v", err)
		}
		refs[n] = r
	}
	return objective.NewReferenceSet(refs), nil
}

func (c *Config) Mode() (objective.Mode, error) {
	m, err := objective.ParseMode(c.ObjectiveMode)
	if err != nil {
		return m, invalid("objective_mode", "%v", err)
	}
	return m, nil
}

// TargetNames returns the constants entering the objective, nil meaning all.
func (c *Config) TargetNames() ([]model.Name, error) {
	var names []model.Name
	for _, s := range c.Targets {
		n, err := model.ParseName(strings.TrimSpace(s))
		if err != nil {
			return nil, invalid("targets", "%v", err)
		}
		names = append(names, n)
	}
	return names, nil
}
