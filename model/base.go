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

package model

import (
	"github.com/factorlab/dsgd/base"
)

// Model is the interface for all models. Any model in this repository should
// implement it.
type Model interface {
	// Set parameters.
	SetParams(params Params)
	// Get parameters.
	GetParams() Params
}

// BaseModel must be included by every model. Hyper-parameters and the random
// generator are managed by BaseModel.
type BaseModel struct {
	Params    Params               // Hyper-parameters
	rng       base.RandomGenerator // Random generator
	randState int64                // Random seed
}

// SetParams sets hyper-parameters for the BaseModel.
func (m *BaseModel) SetParams(params Params) {
	m.Params = params
	m.randState = m.Params.GetInt64(RandomState, 0)
	m.rng = base.NewRandomGenerator(m.randState)
}

// GetParams returns all hyper-parameters.
func (m *BaseModel) GetParams() Params {
	return m.Params
}

// GetRandomGenerator returns the random generator of the model.
func (m *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return m.rng
}
