// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"github.com/spf13/viper"

	"github.com/curioloop/rotfit/model"
)

const (
	defaultTolerance     = 1e-15
	defaultTarget        = 1e-13
	defaultWindow        = 10
	defaultMaxIterations = 10000
	defaultMaxRetries    = 30
	defaultFDEpsilon     = 1e-6
	defaultStepSize      = 1.0
	defaultMaxStep       = 10.0
	defaultMode          = "log-relative"
	defaultFormat        = "text"
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
)

var defaultFree = []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}

// setDefaults registers every key, which also lets AutomaticEnv resolve nested keys.
func setDefaults(v *viper.Viper) {
	for q := model.L0; q < model.NumParams; q++ {
		v.SetDefault("initial_params."+q.String(), model.DefaultParams[q])
	}
	v.SetDefault("free", defaultFree)
	v.SetDefault("tolerance", defaultTolerance)
	v.SetDefault("target", defaultTarget)
	v.SetDefault("window", defaultWindow)
	v.SetDefault("max_iterations", defaultMaxIterations)
	v.SetDefault("max_retries", defaultMaxRetries)
	v.SetDefault("fd_epsilon", defaultFDEpsilon)
	v.SetDefault("step_size", defaultStepSize)
	v.SetDefault("max_step", defaultMaxStep)
	v.SetDefault("objective_mode", defaultMode)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("output.format", defaultFormat)
	v.SetDefault("output.metrics_file", "")
}
