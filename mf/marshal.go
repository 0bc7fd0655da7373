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
	"encoding/binary"
	"io"

	"github.com/juju/errors"

	"github.com/factorlab/dsgd/base"
	"github.com/factorlab/dsgd/base/encoding"
	"github.com/factorlab/dsgd/dataset"
)

// Marshal writes the trained factors and indices to a byte stream so callers
// can checkpoint the model externally. Hyper-parameters are not serialized.
func (d *DSGD) Marshal(w io.Writer) error {
	header := []int64{int64(d.nFactors), int64(len(d.UserFactor)), int64(len(d.ItemFactor))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, d.globalMean); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteInt64s(w, d.userIndex.Ids()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteInt64s(w, d.itemIndex.Ids()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, d.UserFactor); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(encoding.WriteMatrix(w, d.ItemFactor))
}

// Unmarshal restores factors and indices from a byte stream produced by Marshal.
func (d *DSGD) Unmarshal(r io.Reader) error {
	header := make([]int64, 3)
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return errors.Trace(err)
	}
	d.nFactors = int(header[0])
	if err := binary.Read(r, binary.LittleEndian, &d.globalMean); err != nil {
		return errors.Trace(err)
	}
	userIds, err := encoding.ReadInt64s(r)
	if err != nil {
		return errors.Trace(err)
	}
	itemIds, err := encoding.ReadInt64s(r)
	if err != nil {
		return errors.Trace(err)
	}
	d.userIndex = dataset.NewIndex()
	for _, id := range userIds {
		d.userIndex.Add(id)
	}
	d.itemIndex = dataset.NewIndex()
	for _, id := range itemIds {
		d.itemIndex.Add(id)
	}
	d.UserFactor = base.NewMatrix32(int(header[1]), d.nFactors)
	if err = encoding.ReadMatrix(r, d.UserFactor); err != nil {
		return errors.Trace(err)
	}
	d.ItemFactor = base.NewMatrix32(int(header[2]), d.nFactors)
	return errors.Trace(encoding.ReadMatrix(r, d.ItemFactor))
}
