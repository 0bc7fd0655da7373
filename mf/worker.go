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
	"github.com/factorlab/dsgd/floats"
)

// Slice maps dense indices to factor rows for one block. Workers receive copies
// and mutate them in place; the controller merges them back after the stratum
// barrier.
type Slice map[int32][]float32

// Copy deep-copies a slice.
func (s Slice) Copy() Slice {
	c := make(Slice, len(s))
	for number, row := range s {
		copied := make([]float32, len(row))
		copy(copied, row)
		c[number] = copied
	}
	return c
}

// runCell runs sequential stochastic gradient descent over one cell's ratings
// against the given factor slices. For each rating the error is computed against
// the current rows and both rows are updated immediately, so later ratings in
// the same cell observe earlier updates. The regularization gradient and the
// factor 2 of the squared error gradient are absorbed into lr, the same
// convention as the classic Funk-SVD update:
//
//	p_u <- p_u + lr * (e_ui * q_i - reg * p_u)
//	q_i <- q_i + lr * (e_ui * p_u - reg * q_i)
//
// Returns the accumulated squared error and the number of examples processed.
// A rating referencing a row missing from its slice fails with
// DataConsistencyError.
func runCell(cell *Cell, pSlice, qSlice Slice, nFactors int, lr, reg float32) (loss float32, count int, err error) {
	a := make([]float32, nFactors)
	b := make([]float32, nFactors)
	for _, entry := range cell.Entries {
		p, ok := pSlice[entry.User]
		if !ok {
			return 0, 0, &DataConsistencyError{
				UserBlock:  cell.UserBlock,
				ItemBlock:  cell.ItemBlock,
				UserNumber: entry.User,
				ItemNumber: entry.Item,
			}
		}
		q, ok := qSlice[entry.Item]
		if !ok {
			return 0, 0, &DataConsistencyError{
				UserBlock:  cell.UserBlock,
				ItemBlock:  cell.ItemBlock,
				UserNumber: entry.User,
				ItemNumber: entry.Item,
			}
		}
		// e_ui = r - p_u^T q_i
		diff := entry.Value - floats.Dot(p, q)
		loss += diff * diff
		count++
		// keep the pre-update user row for the item update
		copy(b, p)
		// p_u += lr * (e_ui * q_i - reg * p_u)
		floats.MulConstTo(q, diff, a)
		floats.MulConstAdd(p, -reg, a)
		floats.MulConstAdd(a, lr, p)
		// q_i += lr * (e_ui * p_u - reg * q_i)
		floats.MulConstTo(b, diff, a)
		floats.MulConstAdd(q, -reg, a)
		floats.MulConstAdd(a, lr, q)
	}
	return loss, count, nil
}
