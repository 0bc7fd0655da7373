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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factorlab/dsgd/dataset"
)

// newDenseDataset builds a fully observed numUsers x numItems rating matrix.
func newDenseDataset(numUsers, numItems int) *dataset.Dataset {
	d := dataset.NewDataset(numUsers * numItems)
	for u := int64(0); u < int64(numUsers); u++ {
		for i := int64(0); i < int64(numItems); i++ {
			d.AddRating(u, i, float32(u*10+i))
		}
	}
	return d
}

func TestBlockAssignment(t *testing.T) {
	a := BlockAssignment{NumBlocks: 3}
	assert.Equal(t, 0, a.UserBlock(0))
	assert.Equal(t, 1, a.UserBlock(4))
	assert.Equal(t, 2, a.ItemBlock(5))
	// same index always maps to the same block
	assert.Equal(t, a.UserBlock(7), a.UserBlock(7))
	assert.Equal(t, []int32{1, 4, 7}, a.Rows(8, 1))
	assert.Equal(t, []int32{2, 5}, a.Rows(8, 2))
}

func TestNewGrid(t *testing.T) {
	train := newDenseDataset(4, 4)
	grid, err := NewGrid(train, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.NumBlocks())
	// exhaustive and disjoint: every rating lands in exactly one cell
	total := 0
	seen := make(map[Entry]int)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			cell := grid.Cell(i, j)
			assert.Equal(t, i, cell.UserBlock)
			assert.Equal(t, j, cell.ItemBlock)
			for _, entry := range cell.Entries {
				assert.Equal(t, i, grid.Assignment().UserBlock(entry.User))
				assert.Equal(t, j, grid.Assignment().ItemBlock(entry.Item))
				seen[entry]++
			}
			total += len(cell.Entries)
		}
	}
	assert.Equal(t, train.Count(), total)
	assert.Len(t, seen, train.Count())
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}
}

func TestNewGrid_ConfigurationError(t *testing.T) {
	train := newDenseDataset(4, 4)
	var configErr *ConfigurationError
	// d = 0
	_, err := NewGrid(train, 0)
	assert.ErrorAs(t, err, &configErr)
	// negative d
	_, err = NewGrid(train, -1)
	assert.ErrorAs(t, err, &configErr)
	// d exceeds distinct users
	_, err = NewGrid(train, 5)
	assert.ErrorAs(t, err, &configErr)
	// d exceeds distinct items
	narrow := dataset.NewDataset(0)
	for u := int64(0); u < 8; u++ {
		narrow.AddRating(u, 0, 1)
		narrow.AddRating(u, 1, 2)
	}
	_, err = NewGrid(narrow, 4)
	assert.ErrorAs(t, err, &configErr)
}
