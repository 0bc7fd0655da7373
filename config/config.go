// Copyright 2025 dsgd Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates training configuration from TOML files
// and environment variables.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/factorlab/dsgd/model"
)

// Config is the configuration of a training run.
type Config struct {
	Data   DataConfig   `mapstructure:"data"`
	Model  ModelConfig  `mapstructure:"model"`
	Fit    FitConfig    `mapstructure:"fit"`
	Output OutputConfig `mapstructure:"output"`
}

// DataConfig describes where ratings come from and how they are split.
type DataConfig struct {
	TrainPath string  `mapstructure:"train_path"`
	TestPath  string  `mapstructure:"test_path"`
	Separator string  `mapstructure:"separator" validate:"required"`
	TestRatio float32 `mapstructure:"test_ratio" validate:"gte=0,lt=1"`
	SplitSeed int64   `mapstructure:"split_seed"`
}

// ModelConfig carries the hyper-parameters of the factorization model.
type ModelConfig struct {
	NFactors        int     `mapstructure:"n_factors" validate:"gt=0"`
	NBlocks         int     `mapstructure:"n_blocks" validate:"gt=0"`
	NEpochs         int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr              float32 `mapstructure:"lr" validate:"gt=0"`
	LrSchedule      string  `mapstructure:"lr_schedule" validate:"oneof=constant inverse-epoch inverse-sqrt-epoch"`
	Reg             float32 `mapstructure:"reg" validate:"gte=0"`
	Tolerance       float32 `mapstructure:"tolerance" validate:"gte=0"`
	StratumSchedule string  `mapstructure:"stratum_schedule" validate:"oneof=random cyclic"`
	InitLow         float32 `mapstructure:"init_low"`
	InitHigh        float32 `mapstructure:"init_high"`
	RandomState     int64   `mapstructure:"random_state"`
}

// FitConfig carries the run-time options of a training run.
type FitConfig struct {
	Jobs           int           `mapstructure:"jobs" validate:"gt=0"`
	Verbose        int           `mapstructure:"verbose" validate:"gte=0"`
	StratumTimeout time.Duration `mapstructure:"stratum_timeout" validate:"gte=0"`
	MaxLossGrowth  float32       `mapstructure:"max_loss_growth" validate:"gte=0"`
	ColdStart      string        `mapstructure:"cold_start" validate:"oneof=skip global-mean"`
}

// OutputConfig describes where training artifacts go.
type OutputConfig struct {
	ModelPath string `mapstructure:"model_path"`
}

func setDefault() {
	// [data]
	viper.SetDefault("data.separator", ",")
	viper.SetDefault("data.test_ratio", 0.2)
	viper.SetDefault("data.split_seed", 0)
	// [model]
	viper.SetDefault("model.n_factors", 10)
	viper.SetDefault("model.n_blocks", 4)
	viper.SetDefault("model.n_epochs", 100)
	viper.SetDefault("model.lr", 0.01)
	viper.SetDefault("model.lr_schedule", model.InverseEpochSchedule)
	viper.SetDefault("model.reg", 0.05)
	viper.SetDefault("model.tolerance", 1e-4)
	viper.SetDefault("model.stratum_schedule", model.RandomStrata)
	viper.SetDefault("model.random_state", 0)
	// [fit]
	viper.SetDefault("fit.jobs", 1)
	viper.SetDefault("fit.verbose", 10)
	viper.SetDefault("fit.stratum_timeout", time.Duration(0))
	viper.SetDefault("fit.max_loss_growth", 10)
	viper.SetDefault("fit.cold_start", "skip")
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *Config {
	setDefault()
	viper.SetConfigType("toml")
	if err := viper.ReadConfig(strings.NewReader("")); err != nil {
		panic(err)
	}
	config := new(Config)
	if err := viper.Unmarshal(config); err != nil {
		panic(err)
	}
	return config
}

// LoadConfig loads and validates the configuration from a TOML file.
// Environment variables prefixed with DSGD_ override file values.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("dsgd")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Annotatef(err, "failed to read config file %s", path)
	}
	config := new(Config)
	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return config, nil
}

// Validate checks the configuration against its constraints.
func (config *Config) Validate() error {
	return errors.Trace(validator.New().Struct(config))
}

// ModelParams converts the model section into hyper-parameters.
func (config *Config) ModelParams() model.Params {
	params := model.Params{
		model.NFactors:        config.Model.NFactors,
		model.NBlocks:         config.Model.NBlocks,
		model.NEpochs:         config.Model.NEpochs,
		model.Lr:              config.Model.Lr,
		model.LrSchedule:      config.Model.LrSchedule,
		model.Reg:             config.Model.Reg,
		model.Tolerance:       config.Model.Tolerance,
		model.StratumSchedule: config.Model.StratumSchedule,
		model.RandomState:     config.Model.RandomState,
	}
	if config.Model.InitHigh > config.Model.InitLow {
		params[model.InitLow] = config.Model.InitLow
		params[model.InitHigh] = config.Model.InitHigh
	}
	return params
}
