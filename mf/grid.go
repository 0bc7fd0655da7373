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
	"fmt"

	"github.com/factorlab/dsgd/dataset"
)

// BlockAssignment maps dense user and item indices to blocks by modulo partition.
// The assignment is fixed for the lifetime of a training run.
type BlockAssignment struct {
	NumBlocks int
}

// UserBlock returns the block owning a dense user index.
func (a BlockAssignment) UserBlock(userNumber int32) int {
	return int(userNumber) % a.NumBlocks
}

// ItemBlock returns the block owning a dense item index.
func (a BlockAssignment) ItemBlock(itemNumber int32) int {
	return int(itemNumber) % a.NumBlocks
}

// Rows returns the dense indices owned by a block, given the total row count.
func (a BlockAssignment) Rows(count, block int) []int32 {
	rows := make([]int32, 0, count/a.NumBlocks+1)
	for i := block; i < count; i += a.NumBlocks {
		rows = append(rows, int32(i))
	}
	return rows
}

// Entry is a rating localized to a cell, in dense index form.
type Entry struct {
	User  int32
	Item  int32
	Value float32
}

// Cell owns exactly the ratings whose user and item both map to its block pair.
type Cell struct {
	UserBlock int
	ItemBlock int
	Entries   []Entry
}

// Grid partitions a dataset into a NumBlocks x NumBlocks grid of cells. The union
// of all cells equals the full training set and cells are disjoint.
type Grid struct {
	assignment BlockAssignment
	cells      [][]*Cell
}

// NewGrid builds the grid for a training set. Fails with ConfigurationError if
// numBlocks is not positive or exceeds the number of distinct users or items.
func NewGrid(train *dataset.Dataset, numBlocks int) (*Grid, error) {
	if numBlocks <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("NBlocks must be positive, got %d", numBlocks)}
	}
	if numBlocks > train.CountUsers() {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("NBlocks (%d) exceeds distinct users (%d)",
			numBlocks, train.CountUsers())}
	}
	if numBlocks > train.CountItems() {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("NBlocks (%d) exceeds distinct items (%d)",
			numBlocks, train.CountItems())}
	}
	grid := &Grid{
		assignment: BlockAssignment{NumBlocks: numBlocks},
		cells:      make([][]*Cell, numBlocks),
	}
	for i := range grid.cells {
		grid.cells[i] = make([]*Cell, numBlocks)
		for j := range grid.cells[i] {
			grid.cells[i][j] = &Cell{UserBlock: i, ItemBlock: j}
		}
	}
	for i := 0; i < train.Count(); i++ {
		userNumber, itemNumber, value := train.GetDense(i)
		cell := grid.cells[grid.assignment.UserBlock(userNumber)][grid.assignment.ItemBlock(itemNumber)]
		cell.Entries = append(cell.Entries, Entry{User: userNumber, Item: itemNumber, Value: value})
	}
	return grid, nil
}

// NumBlocks returns the grid dimension.
func (g *Grid) NumBlocks() int {
	return g.assignment.NumBlocks
}

// Assignment returns the block assignment of the grid.
func (g *Grid) Assignment() BlockAssignment {
	return g.assignment
}

// Cell returns the cell at a block pair.
func (g *Grid) Cell(userBlock, itemBlock int) *Cell {
	return g.cells[userBlock][itemBlock]
}
