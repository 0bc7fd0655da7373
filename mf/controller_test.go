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

package mf

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factorlab/dsgd/dataset"
	"github.com/factorlab/dsgd/floats"
	"github.com/factorlab/dsgd/model"
)

// newLowRankDataset builds a fully observed rating matrix that is exactly rank 2.
func newLowRankDataset() *dataset.Dataset {
	pTrue := [][]float32{{1, 0.5}, {0.2, 0.9}, {0.7, 0.3}}
	qTrue := [][]float32{{0.9, 0.1}, {0.4, 0.8}, {0.6, 0.5}}
	d := dataset.NewDataset(9)
	for u := range pTrue {
		for i := range qTrue {
			d.AddRating(int64(u), int64(i), floats.Dot(pTrue[u], qTrue[i]))
		}
	}
	return d
}

func newTestParams(nBlocks int) model.Params {
	return model.Params{
		model.NFactors:    2,
		model.NBlocks:     nBlocks,
		model.NEpochs:     2000,
		model.Lr:          0.05,
		model.LrSchedule:  model.ConstantSchedule,
		model.Reg:         0.0,
		model.Tolerance:   0.0,
		model.RandomState: 0,
	}
}

func TestDSGD_ExactLowRank_SingleBlock(t *testing.T) {
	data := newLowRankDataset()
	m := NewDSGD(newTestParams(1))
	history, err := m.Fit(context.Background(), data, data, NewFitConfig().SetVerbose(0))
	require.NoError(t, err)
	assert.Equal(t, Exhausted, m.State())
	assert.Len(t, history, 2000)
	assert.Less(t, MSE(m, data, SkipColdStart, 1), float32(1e-3))
}

func TestDSGD_ExactLowRank_ThreeBlocks(t *testing.T) {
	data := newLowRankDataset()
	m := NewDSGD(newTestParams(3))
	history, err := m.Fit(context.Background(), data, data, NewFitConfig().SetVerbose(0))
	require.NoError(t, err)
	assert.Equal(t, Exhausted, m.State())
	assert.NotEmpty(t, history)
	assert.Less(t, MSE(m, data, SkipColdStart, 1), float32(1e-3))
	// cumulative example count: every rating visited once per sweep
	assert.Equal(t, int64(len(history)*data.Count()), m.Processed())
}

func TestDSGD_LossNonIncreasing(t *testing.T) {
	data := newLowRankDataset()
	params := newTestParams(3)
	params[model.Lr] = 0.01
	params[model.NEpochs] = 5
	m := NewDSGD(params)
	history, err := m.Fit(context.Background(), data, data, NewFitConfig().SetVerbose(0))
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.LessOrEqual(t, history[i].TrainLoss, history[i-1].TrainLoss+1e-4)
	}
}

func TestDSGD_Converged(t *testing.T) {
	data := newLowRankDataset()
	params := newTestParams(1)
	params[model.NEpochs] = 5000
	params[model.Tolerance] = 1e-5
	m := NewDSGD(params)
	history, err := m.Fit(context.Background(), data, data, NewFitConfig().SetVerbose(0))
	require.NoError(t, err)
	assert.Equal(t, Converged, m.State())
	assert.Less(t, len(history), 5000)
}

func TestDSGD_ConfigurationError(t *testing.T) {
	data := newLowRankDataset()
	var configErr *ConfigurationError
	cases := []model.Params{
		{model.NFactors: 0},
		{model.NFactors: 2, model.NEpochs: 0},
		{model.NFactors: 2, model.NEpochs: 10, model.Lr: 0.0},
		{model.NFactors: 2, model.NEpochs: 10, model.Lr: 0.1, model.Reg: -1.0},
		{model.NFactors: 2, model.NEpochs: 10, model.Lr: 0.1, model.LrSchedule: "exponential"},
		{model.NFactors: 2, model.NEpochs: 10, model.Lr: 0.1, model.NBlocks: 0},
		{model.NFactors: 2, model.NEpochs: 10, model.Lr: 0.1, model.NBlocks: 100},
		{model.NFactors: 2, model.NEpochs: 10, model.Lr: 0.1, model.StratumSchedule: "zigzag"},
	}
	for _, params := range cases {
		m := NewDSGD(params)
		_, err := m.Fit(context.Background(), data, data, nil)
		assert.ErrorAs(t, err, &configErr, "params: %v", params)
	}
}

func TestDSGD_NumericDivergence(t *testing.T) {
	data := newLowRankDataset()
	params := newTestParams(3)
	params[model.Lr] = 100.0
	m := NewDSGD(params)
	_, err := m.Fit(context.Background(), data, data, NewFitConfig().SetVerbose(0))
	require.Error(t, err)
	var divergence *NumericDivergenceError
	assert.ErrorAs(t, err, &divergence)
	assert.Equal(t, Failed, m.State())
	// the last-known-good factors are still finite
	for _, row := range m.UserFactor {
		for _, v := range row {
			assert.False(t, math32.IsNaN(v) || math32.IsInf(v, 0))
		}
	}
}

func TestDSGD_StratumTimeout(t *testing.T) {
	data := newLowRankDataset()
	params := newTestParams(3)
	m := NewDSGD(params)
	config := NewFitConfig().SetVerbose(0).SetStratumTimeout(time.Nanosecond)
	history, err := m.Fit(context.Background(), data, data, config)
	require.Error(t, err)
	var timeout *ExecutionTimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.Equal(t, 1, timeout.Epoch)
	assert.Equal(t, Failed, m.State())
	assert.Empty(t, history)
}

func TestDSGD_Cancel(t *testing.T) {
	data := newLowRankDataset()
	m := NewDSGD(newTestParams(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Fit(ctx, data, data, NewFitConfig().SetVerbose(0))
	require.Error(t, err)
	assert.Equal(t, context.Canceled, errors.Cause(err))
	assert.Equal(t, Failed, m.State())
}

func TestDSGD_Predict(t *testing.T) {
	data := newLowRankDataset()
	params := newTestParams(1)
	params[model.NEpochs] = 50
	m := NewDSGD(params)
	_, err := m.Fit(context.Background(), data, data, NewFitConfig().SetVerbose(0))
	require.NoError(t, err)
	// known pair agrees with the internal prediction
	assert.Equal(t, m.internalPredict(0, 0), m.Predict(0, 0))
	// unknown users and items fall back to the global mean
	assert.Equal(t, m.GlobalMean(), m.Predict(999, 0))
	assert.Equal(t, m.GlobalMean(), m.Predict(0, 999))
}

func TestDSGD_OnEpoch(t *testing.T) {
	data := newLowRankDataset()
	params := newTestParams(1)
	params[model.NEpochs] = 7
	m := NewDSGD(params)
	var epochs []int
	config := NewFitConfig().SetVerbose(0)
	config.OnEpoch = func(stats EpochStats) {
		epochs = append(epochs, stats.Epoch)
	}
	_, err := m.Fit(context.Background(), data, data, config)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, epochs)
}

func TestDSGD_Marshal(t *testing.T) {
	data := newLowRankDataset()
	params := newTestParams(1)
	params[model.NEpochs] = 20
	m := NewDSGD(params)
	_, err := m.Fit(context.Background(), data, data, NewFitConfig().SetVerbose(0))
	require.NoError(t, err)
	buf := bytes.NewBuffer(nil)
	require.NoError(t, m.Marshal(buf))
	loaded := new(DSGD)
	require.NoError(t, loaded.Unmarshal(buf))
	assert.Equal(t, m.GlobalMean(), loaded.GlobalMean())
	for u := int64(0); u < 3; u++ {
		for i := int64(0); i < 3; i++ {
			assert.Equal(t, m.Predict(u, i), loaded.Predict(u, i))
		}
	}
	// cold start survives the round trip
	assert.Equal(t, m.Predict(999, 0), loaded.Predict(999, 0))
}

func TestDSGD_StepSizeSchedules(t *testing.T) {
	m := NewDSGD(model.Params{model.Lr: 0.1, model.LrSchedule: model.ConstantSchedule})
	assert.Equal(t, float32(0.1), m.scheduleStepSize(4))
	m = NewDSGD(model.Params{model.Lr: 0.1, model.LrSchedule: model.InverseEpochSchedule})
	assert.InDelta(t, 0.025, m.scheduleStepSize(4), 1e-6)
	m = NewDSGD(model.Params{model.Lr: 0.1, model.LrSchedule: model.InverseSqrtSchedule})
	assert.InDelta(t, 0.05, m.scheduleStepSize(4), 1e-6)
}
