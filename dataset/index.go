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

package dataset

// NotId represents an ID that doesn't exist.
const NotId = int32(-1)

// Index manages the map between sparse ids and dense indices. A sparse id is
// a user id or item id from the input data. The dense index is the internal
// row index optimized for faster parameter access and less memory usage.
type Index struct {
	numbers map[int64]int32 // sparse id -> dense index
	ids     []int64         // dense index -> sparse id
}

// NewIndex creates an Index.
func NewIndex() *Index {
	return &Index{
		numbers: make(map[int64]int32),
		ids:     make([]int64, 0),
	}
}

// Len returns the number of indexed ids.
func (idx *Index) Len() int32 {
	if idx == nil {
		return 0
	}
	return int32(len(idx.ids))
}

// Add adds a new id to the indexer and returns its dense index.
func (idx *Index) Add(id int64) int32 {
	if number, exist := idx.numbers[id]; exist {
		return number
	}
	number := int32(len(idx.ids))
	idx.numbers[id] = number
	idx.ids = append(idx.ids, id)
	return number
}

// ToNumber converts a sparse id to a dense index. Returns NotId if the id is unknown.
func (idx *Index) ToNumber(id int64) int32 {
	if number, exist := idx.numbers[id]; exist {
		return number
	}
	return NotId
}

// ToId converts a dense index to a sparse id. Panics if the index is out of range.
func (idx *Index) ToId(number int32) int64 {
	return idx.ids[number]
}

// Ids returns all indexed sparse ids in dense index order.
func (idx *Index) Ids() []int64 {
	return idx.ids
}
