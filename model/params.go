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

// Package model defines hyper-parameters shared by factorization models.
package model

import (
	"go.uber.org/zap"

	"github.com/factorlab/dsgd/base/log"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	Lr              ParamName = "Lr"              // initial learning rate
	LrSchedule      ParamName = "LrSchedule"      // learning rate decay schedule
	Reg             ParamName = "Reg"             // regularization strength
	NEpochs         ParamName = "NEpochs"         // number of epochs
	NFactors        ParamName = "NFactors"        // number of latent factors
	NBlocks         ParamName = "NBlocks"         // number of blocks per dimension
	RandomState     ParamName = "RandomState"     // random state (seed)
	InitLow         ParamName = "InitLow"         // lower bound of uniform initial parameters
	InitHigh        ParamName = "InitHigh"        // upper bound of uniform initial parameters
	Tolerance       ParamName = "Tolerance"       // convergence tolerance on loss improvement
	StratumSchedule ParamName = "StratumSchedule" // stratum permutation schedule
)

// Predefined values for LrSchedule.
const (
	ConstantSchedule     = "constant"
	InverseEpochSchedule = "inverse-epoch"
	InverseSqrtSchedule  = "inverse-sqrt-epoch"
)

// Predefined values for StratumSchedule.
const (
	RandomStrata = "random"
	CyclicStrata = "cyclic"
)

// Params stores hyper-parameters for a model. It is a map between strings
// (names) and interface{}s (values). For example, hyper-parameters for DSGD
// are given by:
//
//	model.Params{
//		model.Lr:       0.01,
//		model.NEpochs:  100,
//		model.NFactors: 10,
//		model.NBlocks:  4,
//		model.Reg:      0.05,
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets an integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			log.Logger().Error("type mismatch in hyper-parameter",
				zap.String("name", string(name)), zap.String("expect", "int"), zap.Any("value", val))
		}
	}
	return _default
}

// GetInt64 gets a int64 parameter by name. Returns _default if not exists or type doesn't
// match. The type will be converted if an int is given.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch in hyper-parameter",
				zap.String("name", string(name)), zap.String("expect", "int64"), zap.Any("value", val))
		}
	}
	return _default
}

// GetFloat32 gets a float32 parameter by name. Returns _default if not exists or type
// doesn't match. The type will be converted if a float64 or an int is given.
func (parameters Params) GetFloat32(name ParamName, _default float32) float32 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float32:
			return val
		case float64:
			return float32(val)
		case int:
			return float32(val)
		default:
			log.Logger().Error("type mismatch in hyper-parameter",
				zap.String("name", string(name)), zap.String("expect", "float32"), zap.Any("value", val))
		}
	}
	return _default
}

// GetString gets a string parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetString(name ParamName, _default string) string {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case string:
			return val
		default:
			log.Logger().Error("type mismatch in hyper-parameter",
				zap.String("name", string(name)), zap.String("expect", "string"), zap.Any("value", val))
		}
	}
	return _default
}

// GetBool gets a bool parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		default:
			log.Logger().Error("type mismatch in hyper-parameter",
				zap.String("name", string(name)), zap.String("expect", "bool"), zap.Any("value", val))
		}
	}
	return _default
}

// Overwrite merges others into parameters, the values in others win.
func (parameters Params) Overwrite(others Params) Params {
	merged := parameters.Copy()
	for k, v := range others {
		merged[k] = v
	}
	return merged
}
