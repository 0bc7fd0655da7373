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

	"github.com/factorlab/dsgd/base"
	"github.com/factorlab/dsgd/model"
)

// Stratum assigns one item block to every user block: user block b works on cell
// (b, stratum[b]). Since the assignment is a permutation, the cells of a stratum
// touch disjoint user blocks and disjoint item blocks, so their workers never
// overlap on factor rows.
type Stratum []int

// Stratifier produces strata. A sweep of NumBlocks consecutive strata covers the
// whole grid exactly once: the base permutation is rotated once per stratum and
// renewed at each sweep boundary.
type Stratifier struct {
	numBlocks int
	rng       base.RandomGenerator
	random    bool
	perm      []int
	shift     int
}

// NewStratifier creates a Stratifier. schedule is model.RandomStrata (a fresh
// uniform permutation per sweep) or model.CyclicStrata (a fixed round-robin).
func NewStratifier(schedule string, numBlocks int, rng base.RandomGenerator) (*Stratifier, error) {
	switch schedule {
	case model.RandomStrata, model.CyclicStrata:
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown stratum schedule %q", schedule)}
	}
	return &Stratifier{
		numBlocks: numBlocks,
		rng:       rng,
		random:    schedule == model.RandomStrata,
		perm:      base.RangeInt(numBlocks),
	}, nil
}

// NextStratum returns the next stratum. Strata within one sweep are rotations of
// the same permutation, so the sweep visits every cell of the grid exactly once.
func (s *Stratifier) NextStratum() Stratum {
	if s.shift == 0 && s.random {
		s.perm = s.rng.Perm(s.numBlocks)
	}
	stratum := make(Stratum, s.numBlocks)
	for b := 0; b < s.numBlocks; b++ {
		stratum[b] = s.perm[(b+s.shift)%s.numBlocks]
	}
	s.shift = (s.shift + 1) % s.numBlocks
	return stratum
}
