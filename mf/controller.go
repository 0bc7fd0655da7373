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

// Package mf implements distributed stochastic gradient descent for large-scale
// matrix factorization, following the stratified decomposition of Gemulla et al.
// The rating matrix is partitioned into a d x d grid of cells; each epoch runs d
// strata, each stratum updating d conflict-free cells in parallel.
package mf

import (
	"context"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/factorlab/dsgd/base/log"
	"github.com/factorlab/dsgd/base/parallel"
	"github.com/factorlab/dsgd/dataset"
	"github.com/factorlab/dsgd/floats"
	"github.com/factorlab/dsgd/model"
)

// State is the controller state of a training run.
type State int

const (
	Initializing State = iota
	Sweeping
	Converged
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Sweeping:
		return "Sweeping"
	case Converged:
		return "Converged"
	case Exhausted:
		return "Exhausted"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EpochStats is the per-epoch monitoring record.
type EpochStats struct {
	Epoch     int
	TrainLoss float32
	TestLoss  float32
	Elapsed   time.Duration
}

// FitConfig carries run-time options of a training run, as opposed to the
// hyper-parameters in model.Params.
type FitConfig struct {
	Jobs           int           // parallelism of loss evaluation
	Verbose        int           // period of per-epoch log lines
	StratumTimeout time.Duration // per-stratum deadline, 0 disables
	MaxLossGrowth  float32       // divergence guard: fail when train loss exceeds this multiple of its initial value
	ColdStart      ColdStartPolicy
	OnEpoch        func(EpochStats) // optional monitoring callback
}

// NewFitConfig creates a FitConfig with default values.
func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:          1,
		Verbose:       10,
		MaxLossGrowth: 10,
		ColdStart:     SkipColdStart,
	}
}

// SetJobs sets the evaluation parallelism.
func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

// SetVerbose sets the logging period.
func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// SetStratumTimeout sets the per-stratum deadline.
func (config *FitConfig) SetStratumTimeout(timeout time.Duration) *FitConfig {
	config.StratumTimeout = timeout
	return config
}

// SetColdStart sets the cold-start policy used for held-out evaluation.
func (config *FitConfig) SetColdStart(policy ColdStartPolicy) *FitConfig {
	config.ColdStart = policy
	return config
}

// LoadDefaultIfNil returns defaults when config is nil.
func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// DSGD is a matrix factorization model trained by distributed stochastic
// gradient descent. The predicted rating is p_u^T q_i.
//
// Hyper-parameters:
//
//	Lr              - The initial learning rate. Default is 0.01.
//	LrSchedule      - The learning rate decay schedule. Default is "inverse-epoch".
//	Reg             - The regularization strength. Default is 0.05.
//	NFactors        - The number of latent factors. Default is 10.
//	NBlocks         - The number of blocks per grid dimension. Default is 4.
//	NEpochs         - The number of sweeps. Default is 100.
//	Tolerance       - Convergence tolerance on loss improvement. Default is 1e-4.
//	StratumSchedule - "random" or "cyclic" stratum permutations. Default is "random".
//	InitLow/InitHigh - Bounds of uniform initialization. Default is [0, 1/sqrt(NFactors)).
//	RandomState     - The random seed. Default is 0.
type DSGD struct {
	model.BaseModel
	// Model parameters
	UserFactor [][]float32 // p_u
	ItemFactor [][]float32 // q_i
	userIndex  *dataset.Index
	itemIndex  *dataset.Index
	globalMean float32
	// Hyper parameters
	nFactors        int
	nBlocks         int
	nEpochs         int
	lr              float32
	reg             float32
	tolerance       float32
	lrSchedule      string
	stratumSchedule string
	initLow         float32
	initHigh        float32
	// Training state
	state     State
	epoch     int
	stepSize  float32
	processed *atomic.Int64
}

// NewDSGD creates a DSGD model.
func NewDSGD(params model.Params) *DSGD {
	d := new(DSGD)
	d.SetParams(params)
	return d
}

// SetParams sets hyper-parameters of the DSGD model.
func (d *DSGD) SetParams(params model.Params) {
	d.BaseModel.SetParams(params)
	d.nFactors = d.Params.GetInt(model.NFactors, 10)
	d.nBlocks = d.Params.GetInt(model.NBlocks, 4)
	d.nEpochs = d.Params.GetInt(model.NEpochs, 100)
	d.lr = d.Params.GetFloat32(model.Lr, 0.01)
	d.reg = d.Params.GetFloat32(model.Reg, 0.05)
	d.tolerance = d.Params.GetFloat32(model.Tolerance, 1e-4)
	d.lrSchedule = d.Params.GetString(model.LrSchedule, model.InverseEpochSchedule)
	d.stratumSchedule = d.Params.GetString(model.StratumSchedule, model.RandomStrata)
	d.initLow = d.Params.GetFloat32(model.InitLow, 0)
	d.initHigh = d.Params.GetFloat32(model.InitHigh, 1/math32.Sqrt(float32(d.nFactors)))
	d.state = Initializing
	d.processed = atomic.NewInt64(0)
}

// State returns the controller state.
func (d *DSGD) State() State {
	return d.state
}

// Epoch returns the number of completed sweeps.
func (d *DSGD) Epoch() int {
	return d.epoch
}

// Processed returns the cumulative number of examples processed.
func (d *DSGD) Processed() int64 {
	return d.processed.Load()
}

// StepSize returns the current global step size.
func (d *DSGD) StepSize() float32 {
	return d.stepSize
}

// UserIndex returns the user id index of the training set.
func (d *DSGD) UserIndex() *dataset.Index {
	return d.userIndex
}

// ItemIndex returns the item id index of the training set.
func (d *DSGD) ItemIndex() *dataset.Index {
	return d.itemIndex
}

// GlobalMean returns the mean rating of the training set.
func (d *DSGD) GlobalMean() float32 {
	return d.globalMean
}

// Predict the rating given by a user to an item. Unknown users or items fall
// back to the global mean of the training set.
func (d *DSGD) Predict(userId, itemId int64) float32 {
	userNumber := d.userIndex.ToNumber(userId)
	itemNumber := d.itemIndex.ToNumber(itemId)
	if userNumber == dataset.NotId || itemNumber == dataset.NotId {
		return d.globalMean
	}
	return d.internalPredict(userNumber, itemNumber)
}

func (d *DSGD) internalPredict(userNumber, itemNumber int32) float32 {
	return floats.Dot(d.UserFactor[userNumber], d.ItemFactor[itemNumber])
}

func (d *DSGD) validateParams() error {
	if d.nFactors <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("NFactors must be positive, got %d", d.nFactors)}
	}
	if d.nEpochs <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("NEpochs must be positive, got %d", d.nEpochs)}
	}
	if d.lr <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("Lr must be positive, got %v", d.lr)}
	}
	if d.reg < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("Reg must not be negative, got %v", d.reg)}
	}
	if d.tolerance < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("Tolerance must not be negative, got %v", d.tolerance)}
	}
	switch d.lrSchedule {
	case model.ConstantSchedule, model.InverseEpochSchedule, model.InverseSqrtSchedule:
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown learning rate schedule %q", d.lrSchedule)}
	}
	return nil
}

// scheduleStepSize derives the step size of an epoch (1-based) from the decay
// schedule.
func (d *DSGD) scheduleStepSize(epoch int) float32 {
	switch d.lrSchedule {
	case model.InverseEpochSchedule:
		return d.lr / float32(epoch)
	case model.InverseSqrtSchedule:
		return d.lr / math32.Sqrt(float32(epoch))
	default:
		return d.lr
	}
}

// cellTask is the unit dispatched to one worker of a stratum.
type cellTask struct {
	cell   *Cell
	pSlice Slice
	qSlice Slice
}

// Fit trains the model on trainSet by stratified SGD and evaluates held-out loss
// on testSet after every sweep. Returns the per-epoch monitoring records. On
// failure the factors of the last cleanly completed sweep are kept and returned
// alongside the error.
func (d *DSGD) Fit(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) ([]EpochStats, error) {
	config = config.LoadDefaultIfNil()
	if err := d.validateParams(); err != nil {
		return nil, err
	}
	log.Logger().Info("fit dsgd",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("test_set_size", testSet.Count()),
		zap.Any("params", d.GetParams()))
	// Initializing: build index, grid, strata and factors.
	grid, err := NewGrid(trainSet, d.nBlocks)
	if err != nil {
		return nil, err
	}
	stratifier, err := NewStratifier(d.stratumSchedule, d.nBlocks, d.GetRandomGenerator())
	if err != nil {
		return nil, err
	}
	d.Init(trainSet)
	d.state = Sweeping
	d.stepSize = d.lr
	assignment := grid.Assignment()
	userRows := make([][]int32, d.nBlocks)
	itemRows := make([][]int32, d.nBlocks)
	for b := 0; b < d.nBlocks; b++ {
		userRows[b] = assignment.Rows(trainSet.CountUsers(), b)
		itemRows[b] = assignment.Rows(trainSet.CountItems(), b)
	}
	// last-known-good factors from the prior completed sweep
	snapshotUser := copyMatrix(d.UserFactor)
	snapshotItem := copyMatrix(d.ItemFactor)
	initialLoss := d.trainObjective(trainSet, config.Jobs)
	prevLoss := initialLoss
	history := make([]EpochStats, 0, d.nEpochs)
	for epoch := 1; epoch <= d.nEpochs; epoch++ {
		fitStart := time.Now()
		d.stepSize = d.scheduleStepSize(epoch)
		sweepLoss := atomic.NewFloat64(0)
		for s := 0; s < d.nBlocks; s++ {
			stratum := stratifier.NextStratum()
			// copy-on-dispatch: a worker only ever observes its own slices
			tasks := make([]cellTask, d.nBlocks)
			for b := 0; b < d.nBlocks; b++ {
				tasks[b] = cellTask{
					cell:   grid.Cell(b, stratum[b]),
					pSlice: d.sliceRows(d.UserFactor, userRows[b]),
					qSlice: d.sliceRows(d.ItemFactor, itemRows[stratum[b]]),
				}
			}
			sctx := ctx
			var cancel context.CancelFunc = func() {}
			if config.StratumTimeout > 0 {
				sctx, cancel = context.WithTimeout(ctx, config.StratumTimeout)
			}
			err = parallel.Parallel(sctx, d.nBlocks, d.nBlocks, func(_, jobId int) error {
				task := tasks[jobId]
				loss, count, err := runCell(task.cell, task.pSlice, task.qSlice, d.nFactors, d.stepSize, d.reg)
				if err != nil {
					return errors.Trace(err)
				}
				sweepLoss.Add(float64(loss))
				d.processed.Add(int64(count))
				return nil
			})
			cancel()
			if err != nil {
				// all-or-nothing: drop the stratum and the partially swept epoch
				d.UserFactor = copyMatrix(snapshotUser)
				d.ItemFactor = copyMatrix(snapshotItem)
				d.state = Failed
				if sctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return history, &ExecutionTimeoutError{Epoch: epoch, Stratum: s, Timeout: config.StratumTimeout}
				}
				return history, errors.Trace(err)
			}
			// merge: slices are disjoint by the stratum invariant, replacement suffices
			for b := 0; b < d.nBlocks; b++ {
				d.mergeSlice(d.UserFactor, tasks[b].pSlice)
				d.mergeSlice(d.ItemFactor, tasks[b].qSlice)
			}
		}
		fitTime := time.Since(fitStart)
		// evaluate: regularized objective on training data, plain MSE on held-out data
		evalStart := time.Now()
		trainLoss := d.trainObjective(trainSet, config.Jobs)
		testLoss := MSE(d, testSet, config.ColdStart, config.Jobs)
		evalTime := time.Since(evalStart)
		d.epoch = epoch
		stats := EpochStats{Epoch: epoch, TrainLoss: trainLoss, TestLoss: testLoss, Elapsed: fitTime + evalTime}
		history = append(history, stats)
		if config.OnEpoch != nil {
			config.OnEpoch(stats)
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == d.nEpochs) {
			log.Logger().Info(fmt.Sprintf("fit dsgd %v/%v", epoch, d.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.String("eval_time", evalTime.String()),
				zap.Float32("train_loss", trainLoss),
				zap.Float32("test_loss", testLoss),
				zap.Float64("sweep_sgd_loss", sweepLoss.Load()),
				zap.Float32("step_size", d.stepSize))
		}
		// divergence guard: non-finite or runaway loss is a fatal misconfiguration
		if math32.IsNaN(trainLoss) || math32.IsInf(trainLoss, 0) ||
			(config.MaxLossGrowth > 0 && trainLoss > config.MaxLossGrowth*initialLoss) {
			d.UserFactor = snapshotUser
			d.ItemFactor = snapshotItem
			d.state = Failed
			return history, &NumericDivergenceError{Epoch: epoch, Loss: trainLoss}
		}
		snapshotUser = copyMatrix(d.UserFactor)
		snapshotItem = copyMatrix(d.ItemFactor)
		if d.tolerance > 0 && prevLoss-trainLoss < d.tolerance {
			d.state = Converged
			log.Logger().Info("fit dsgd converged",
				zap.Int("epoch", epoch),
				zap.Float32("train_loss", trainLoss),
				zap.Float32("improvement", prevLoss-trainLoss))
			return history, nil
		}
		prevLoss = trainLoss
	}
	d.state = Exhausted
	log.Logger().Info("fit dsgd complete",
		zap.Int("epochs", d.epoch),
		zap.Int64("processed", d.processed.Load()))
	return history, nil
}

// Init initializes the factors of the model from a training set.
func (d *DSGD) Init(trainSet *dataset.Dataset) {
	d.userIndex = trainSet.UserIndex()
	d.itemIndex = trainSet.ItemIndex()
	d.globalMean = trainSet.GlobalMean()
	d.UserFactor = d.GetRandomGenerator().UniformMatrix(trainSet.CountUsers(), d.nFactors, d.initLow, d.initHigh)
	d.ItemFactor = d.GetRandomGenerator().UniformMatrix(trainSet.CountItems(), d.nFactors, d.initLow, d.initHigh)
	d.epoch = 0
	d.processed.Store(0)
}

// sliceRows copies the given rows of a factor matrix into a Slice.
func (d *DSGD) sliceRows(factor [][]float32, rows []int32) Slice {
	s := make(Slice, len(rows))
	for _, number := range rows {
		row := make([]float32, d.nFactors)
		copy(row, factor[number])
		s[number] = row
	}
	return s
}

// mergeSlice writes a slice's rows back into a factor matrix.
func (d *DSGD) mergeSlice(factor [][]float32, s Slice) {
	for number, row := range s {
		copy(factor[number], row)
	}
}

func copyMatrix(m [][]float32) [][]float32 {
	ret := make([][]float32, len(m))
	for i := range m {
		ret[i] = make([]float32, len(m[i]))
		copy(ret[i], m[i])
	}
	return ret
}
