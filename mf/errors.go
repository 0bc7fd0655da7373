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
	"time"
)

// ConfigurationError reports invalid hyper-parameters. It is detected before any
// training state is produced and is fatal.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// DataConsistencyError reports a rating referencing a factor row missing from the
// slice handed to a worker. It carries the offending cell and id for diagnosis and
// is fatal for the run.
type DataConsistencyError struct {
	UserBlock  int
	ItemBlock  int
	UserNumber int32
	ItemNumber int32
}

func (e *DataConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent cell (%d,%d): no factor row for user %d or item %d",
		e.UserBlock, e.ItemBlock, e.UserNumber, e.ItemNumber)
}

// NumericDivergenceError reports a non-finite or runaway training loss, which
// signals a step size too large. Training halts at the epoch boundary; the
// last-known-good factors from the prior completed sweep are kept.
type NumericDivergenceError struct {
	Epoch int
	Loss  float32
}

func (e *NumericDivergenceError) Error() string {
	return fmt.Sprintf("training loss diverged at epoch %d: %v", e.Epoch, e.Loss)
}

// ExecutionTimeoutError reports a stratum whose workers failed to complete within
// the configured timeout. No partial merge is performed for that stratum.
type ExecutionTimeoutError struct {
	Epoch   int
	Stratum int
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("stratum %d of epoch %d timed out after %v", e.Stratum, e.Epoch, e.Timeout)
}
