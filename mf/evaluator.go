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
	"github.com/chewxy/math32"
	"go.uber.org/atomic"

	"github.com/factorlab/dsgd/base/parallel"
	"github.com/factorlab/dsgd/dataset"
	"github.com/factorlab/dsgd/floats"
)

// ColdStartPolicy decides how evaluation handles users or items that have no
// learned factor row.
type ColdStartPolicy string

const (
	// SkipColdStart drops the example from the metric's denominator.
	SkipColdStart ColdStartPolicy = "skip"
	// GlobalMeanColdStart substitutes the training set's mean rating.
	GlobalMeanColdStart ColdStartPolicy = "global-mean"
)

// MSE computes the unregularized mean squared error of a model over a rating
// set. Held-out evaluation deliberately omits the regularization term: it is a
// training-time penalty, not a generalization metric. Cold-start examples are
// handled by the given policy and never crash the evaluation.
func MSE(m *DSGD, set *dataset.Dataset, policy ColdStartPolicy, jobs int) float32 {
	if set.Count() == 0 {
		return 0
	}
	sum := atomic.NewFloat64(0)
	count := atomic.NewInt64(0)
	parallel.For(set.Count(), jobs, func(i int) {
		r := set.Get(i)
		userNumber := m.userIndex.ToNumber(r.UserId)
		itemNumber := m.itemIndex.ToNumber(r.ItemId)
		var pred float32
		if userNumber == dataset.NotId || itemNumber == dataset.NotId {
			if policy == SkipColdStart {
				return
			}
			pred = m.globalMean
		} else {
			pred = m.internalPredict(userNumber, itemNumber)
		}
		diff := float64(r.Value - pred)
		sum.Add(diff * diff)
		count.Inc()
	})
	if count.Load() == 0 {
		return 0
	}
	return float32(sum.Load() / float64(count.Load()))
}

// RMSE computes the root mean squared error of a model over a rating set.
func RMSE(m *DSGD, set *dataset.Dataset, policy ColdStartPolicy, jobs int) float32 {
	return math32.Sqrt(MSE(m, set, policy, jobs))
}

// trainObjective computes the regularized training objective:
//
//	mean(e_ui^2 + reg * (||p_u||^2 + ||q_i||^2))
//
// over the training set. This is the quantity the SGD updates descend on, so it
// drives the convergence and divergence checks.
func (d *DSGD) trainObjective(trainSet *dataset.Dataset, jobs int) float32 {
	if trainSet.Count() == 0 {
		return 0
	}
	sum := atomic.NewFloat64(0)
	parallel.For(trainSet.Count(), jobs, func(i int) {
		userNumber, itemNumber, value := trainSet.GetDense(i)
		diff := value - d.internalPredict(userNumber, itemNumber)
		obj := diff*diff + d.reg*(floats.SquaredNorm(d.UserFactor[userNumber])+
			floats.SquaredNorm(d.ItemFactor[itemNumber]))
		sum.Add(float64(obj))
	})
	return float32(sum.Load() / float64(trainSet.Count()))
}
