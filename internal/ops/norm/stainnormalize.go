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
	"gonum.org/v1/gonum/mat"
)

// Normalizes the stains of each input to those of a target image
type OpStainNormalize struct {
	ops.OpUnaryBase
	normalize.Config
	Target      string     `json:"target"`
	TargetImage *img.Image `json:"-"`

	normalizer *normalize.StainNormalizer
	state      *fitState
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStainNormalizeDefault() }) } // register the operator for JSON decoding

func NewOpStainNormalizeDefault() *OpStainNormalize {
	return NewOpStainNormalize(normalize.DefaultConfig(), "")
}

func NewOpStainNormalize(cfg normalize.Config, target string) *OpStainNormalize {
	op := &OpStainNormalize{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stainNormalize", Active: true}},
		Config:      cfg,
		Target:      target,
		state:       &fitState{},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStainNormalize) UnmarshalJSON(data []byte) error {
	type defaults OpStainNormalize
	def := defaults(*NewOpStainNormalizeDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpStainNormalize(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Creates the normalizer and fits it to the target. Safe to call repeatedly and concurrently
func (op *OpStainNormalize) Init(c *ops.Context) error {
	return op.state.do(func() error {
		n, err := normalize.NewStainNormalizer(op.Config)
		if err != nil {
			return err
		}
		t, err := loadTarget(op.Target, op.TargetImage, c)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "Fitting %v stain normalizer to target\n", op.Method)
		if err := n.Fit(t); err != nil {
			return fmt.Errorf("fitting target: %w", err)
		}
		op.normalizer = n
		return nil
	})
}

func (op *OpStainNormalize) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	if err := op.Init(c); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Normalizing stains with method %v\n", f.ID, op.Method)
	fOut, err = op.normalizer.Transform(f)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	return fOut, nil
}

// Returns the fitted target stain matrix
func (op *OpStainNormalize) TargetStains(c *ops.Context) (*mat.Dense, error) {
	if err := op.Init(c); err != nil {
		return nil, err
	}
	return op.normalizer.TargetStains()
}
