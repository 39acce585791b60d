// Copyright (C) 2021 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package pre holds operators which prepare images before stain processing.
package pre

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/tissue"
)

// Stretches lightness so that the given percentile becomes full white
type OpStandardize struct {
	ops.OpUnaryBase
	Percentile float64 `json:"percentile"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStandardizeDefault() }) } // register the operator for JSON decoding

func NewOpStandardizeDefault() *OpStandardize {
	return NewOpStandardize(true, tissue.DefaultBrightnessPercentile)
}

func NewOpStandardize(active bool, percentile float64) *OpStandardize {
	op := &OpStandardize{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "standardize", Active: active}},
		Percentile:  percentile,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStandardize) UnmarshalJSON(data []byte) error {
	type defaults OpStandardize
	def := defaults(*NewOpStandardizeDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpStandardize(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStandardize) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	if op.Percentile <= 0 || op.Percentile > 100 {
		return nil, errors.New(fmt.Sprintf("%d: Invalid brightness percentile %g", f.ID, op.Percentile))
	}
	fmt.Fprintf(c.Log, "%d: Standardizing brightness to percentile %g\n", f.ID, op.Percentile)
	return tissue.StandardizeBrightness(f, op.Percentile)
}
