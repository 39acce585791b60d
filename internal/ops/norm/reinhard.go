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

package norm

import (
	"encoding/json"
	"fmt"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/normalize"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/tissue"
)

// Matches Lab color statistics of each input to those of a target image
type OpReinhard struct {
	ops.OpUnaryBase
	StandardizeBrightness bool       `json:"standardizeBrightness"`
	BrightnessPercentile  float64    `json:"brightnessPercentile"`
	Target                string     `json:"target"`
	TargetImage           *img.Image `json:"-"`

	normalizer *normalize.ReinhardNormalizer
	state      *fitState
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpReinhardDefault() }) } // register the operator for JSON decoding

func NewOpReinhardDefault() *OpReinhard { return NewOpReinhard(false, "") }

func NewOpReinhard(standardizeBrightness bool, target string) *OpReinhard {
	op := &OpReinhard{
		OpUnaryBase:           ops.OpUnaryBase{OpBase: ops.OpBase{Type: "reinhard", Active: true}},
		StandardizeBrightness: standardizeBrightness,
		BrightnessPercentile:  tissue.DefaultBrightnessPercentile,
		Target:                target,
		state:                 &fitState{},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpReinhard) UnmarshalJSON(data []byte) error {
	type defaults OpReinhard
	def := defaults(*NewOpReinhardDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpReinhard(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Fits to the target once. Safe to call repeatedly and concurrently
func (op *OpReinhard) Init(c *ops.Context) error {
	return op.state.do(func() error {
		n := normalize.NewReinhardNormalizer(op.StandardizeBrightness)
		n.BrightnessPercentile = op.BrightnessPercentile
		t, err := loadTarget(op.Target, op.TargetImage, c)
		if err != nil {
			return err
		}
		if err := n.Fit(t); err != nil {
			return fmt.Errorf("fitting target: %w", err)
		}
		means, stds, _ := n.TargetStats()
		fmt.Fprintf(c.Log, "Target Lab means %.4g stddevs %.4g, standardize brightness %v\n",
			means, stds, op.StandardizeBrightness)
		op.normalizer = n
		return nil
	})
}

func (op *OpReinhard) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	if err := op.Init(c); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Matching Lab color statistics to target\n", f.ID)
	fOut, err = op.normalizer.Transform(f)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	return fOut, nil
}
