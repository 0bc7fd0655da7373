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

// Package dataset holds rating triples and the id indices built over them.
package dataset

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/factorlab/dsgd/base"
)

// Rating is a single observed entry of the rating matrix. Immutable once loaded.
type Rating struct {
	UserId int64
	ItemId int64
	Value  float32
}

// Dataset is a multiset of ratings with dense indices for users and items.
type Dataset struct {
	ratings   []Rating
	userIndex *Index
	itemIndex *Index
	// dense indices, aligned with ratings
	userNumbers []int32
	itemNumbers []int32
	sum         float64
}

// NewDataset creates an empty dataset with the given capacity.
func NewDataset(capacity int) *Dataset {
	return &Dataset{
		ratings:     make([]Rating, 0, capacity),
		userIndex:   NewIndex(),
		itemIndex:   NewIndex(),
		userNumbers: make([]int32, 0, capacity),
		itemNumbers: make([]int32, 0, capacity),
	}
}

// AddRating appends a rating and indexes its user and item.
func (d *Dataset) AddRating(userId, itemId int64, value float32) {
	d.ratings = append(d.ratings, Rating{UserId: userId, ItemId: itemId, Value: value})
	d.userNumbers = append(d.userNumbers, d.userIndex.Add(userId))
	d.itemNumbers = append(d.itemNumbers, d.itemIndex.Add(itemId))
	d.sum += float64(value)
}

// Count returns the number of ratings.
func (d *Dataset) Count() int {
	if d == nil {
		return 0
	}
	return len(d.ratings)
}

// CountUsers returns the number of distinct users.
func (d *Dataset) CountUsers() int {
	return int(d.userIndex.Len())
}

// CountItems returns the number of distinct items.
func (d *Dataset) CountItems() int {
	return int(d.itemIndex.Len())
}

// UserIndex returns the user id index.
func (d *Dataset) UserIndex() *Index {
	return d.userIndex
}

// ItemIndex returns the item id index.
func (d *Dataset) ItemIndex() *Index {
	return d.itemIndex
}

// Get returns the i-th rating with sparse ids.
func (d *Dataset) Get(i int) Rating {
	return d.ratings[i]
}

// GetDense returns the i-th rating as dense indices.
func (d *Dataset) GetDense(i int) (userNumber, itemNumber int32, value float32) {
	return d.userNumbers[i], d.itemNumbers[i], d.ratings[i].Value
}

// GlobalMean returns the mean of all rating values. Returns 0 for an empty dataset.
func (d *Dataset) GlobalMean() float32 {
	if d.Count() == 0 {
		return 0
	}
	return float32(d.sum / float64(len(d.ratings)))
}

// SplitRatio splits the dataset into a training set and a test set by ratio.
// The returned datasets rebuild their own indices over the ratings they own.
func (d *Dataset) SplitRatio(testRatio float64, seed int64) (train, test *Dataset) {
	rng := base.NewRandomGenerator(seed)
	perm := rng.Perm(d.Count())
	testSize := int(float64(d.Count()) * testRatio)
	test = NewDataset(testSize)
	for _, i := range perm[:testSize] {
		r := d.ratings[i]
		test.AddRating(r.UserId, r.ItemId, r.Value)
	}
	train = NewDataset(d.Count() - testSize)
	for _, i := range perm[testSize:] {
		r := d.ratings[i]
		train.AddRating(r.UserId, r.ItemId, r.Value)
	}
	return
}

// LoadCSV loads ratings from a delimited text file with lines of the form
// "userId<sep>itemId<sep>rating". Extra fields (such as timestamps) are ignored.
func LoadCSV(path, sep string) (*Dataset, error) {
	d := NewDataset(0)
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < 3 {
			return nil, errors.Errorf("invalid line: %s", line)
		}
		userId, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "invalid user id: %s", fields[0])
		}
		itemId, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "invalid item id: %s", fields[1])
		}
		value, err := strconv.ParseFloat(fields[2], 32)
		if err != nil {
			return nil, errors.Annotatef(err, "invalid rating: %s", fields[2])
		}
		d.AddRating(userId, itemId, float32(value))
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return d, nil
}
