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
)

func TestRunCell_EmptyCell(t *testing.T) {
	cell := &Cell{UserBlock: 0, ItemBlock: 0}
	pSlice := Slice{0: {1, 2}}
	qSlice := Slice{0: {3, 4}}
	loss, count, err := runCell(cell, pSlice, qSlice, 2, 0.1, 0.01)
	require.NoError(t, err)
	assert.Zero(t, loss)
	assert.Zero(t, count)
	assert.Equal(t, Slice{0: {1, 2}}, pSlice)
	assert.Equal(t, Slice{0: {3, 4}}, qSlice)
}

func TestRunCell_ZeroStepSize(t *testing.T) {
	cell := &Cell{
		UserBlock: 0,
		ItemBlock: 0,
		Entries: []Entry{
			{User: 0, Item: 0, Value: 5},
			{User: 2, Item: 2, Value: 1},
		},
	}
	pSlice := Slice{0: {0.5, 0.5}, 2: {0.1, 0.9}}
	qSlice := Slice{0: {0.2, 0.3}, 2: {0.4, 0.6}}
	before := pSlice.Copy()
	loss, count, err := runCell(cell, pSlice, qSlice, 2, 0, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Positive(t, loss)
	// stepSize = 0 leaves the factors numerically unchanged
	assert.Equal(t, before, pSlice)
}

func TestRunCell_SingleUpdate(t *testing.T) {
	cell := &Cell{
		Entries: []Entry{{User: 0, Item: 0, Value: 3}},
	}
	pSlice := Slice{0: {1, 0}}
	qSlice := Slice{0: {2, 1}}
	loss, count, err := runCell(cell, pSlice, qSlice, 2, 0.1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	// prediction = 2, error = 1, loss = 1
	assert.InDelta(t, 1, loss, 1e-6)
	// p += 0.1 * 1 * q = (1.2, 0.1); q += 0.1 * 1 * p_old = (2.1, 1.0)
	assert.InDeltaSlice(t, []float32{1.2, 0.1}, pSlice[0], 1e-6)
	assert.InDeltaSlice(t, []float32{2.1, 1.0}, qSlice[0], 1e-6)
}

func TestRunCell_SequentialUpdates(t *testing.T) {
	// the second rating must observe the first rating's update
	cell := &Cell{
		Entries: []Entry{
			{User: 0, Item: 0, Value: 3},
			{User: 0, Item: 0, Value: 3},
		},
	}
	pSlice := Slice{0: {1, 0}}
	qSlice := Slice{0: {2, 1}}
	_, _, err := runCell(cell, pSlice, qSlice, 2, 0.1, 0)
	require.NoError(t, err)
	// after the first update p=(1.2,0.1), q=(2.1,1.0), prediction = 2.62
	// second error = 0.38, p += 0.038*(2.1,1.0), q += 0.038*(1.2,0.1)
	assert.InDeltaSlice(t, []float32{1.2798, 0.138}, pSlice[0], 1e-4)
	assert.InDeltaSlice(t, []float32{2.1456, 1.0038}, qSlice[0], 1e-4)
}

func TestRunCell_DataConsistencyError(t *testing.T) {
	cell := &Cell{
		UserBlock: 1,
		ItemBlock: 2,
		Entries:   []Entry{{User: 5, Item: 8, Value: 1}},
	}
	var dataErr *DataConsistencyError
	// missing user row
	_, _, err := runCell(cell, Slice{}, Slice{8: {1, 1}}, 2, 0.1, 0)
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, 1, dataErr.UserBlock)
	assert.Equal(t, 2, dataErr.ItemBlock)
	assert.Equal(t, int32(5), dataErr.UserNumber)
	// missing item row
	_, _, err = runCell(cell, Slice{5: {1, 1}}, Slice{}, 2, 0.1, 0)
	assert.ErrorAs(t, err, &dataErr)
}

func TestSlice_Copy(t *testing.T) {
	s := Slice{0: {1, 2}, 3: {4, 5}}
	c := s.Copy()
	assert.Equal(t, s, c)
	c[0][0] = 100
	assert.Equal(t, float32(1), s[0][0])
}
