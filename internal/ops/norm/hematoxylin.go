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
)

// Replaces each input with a gray image of its Hematoxylin channel, dark where
// the stain is dense. Uses each image's own stain matrix, no target needed
type OpHematoxylin struct {
	ops.OpUnaryBase
	normalize.Config
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpHematoxylinDefault() }) } // register the operator for JSON decoding

func NewOpHematoxylinDefault() *OpHematoxylin { return NewOpHematoxylin(normalize.DefaultConfig()) }

func NewOpHematoxylin(cfg normalize.Config) *OpHematoxylin {
	op := &OpHematoxylin{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "hematoxylin", Active: true}},
		Config:      cfg,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpHematoxylin) UnmarshalJSON(data []byte) error {
	type defaults OpHematoxylin
	def := defaults(*NewOpHematoxylinDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpHematoxylin(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpHematoxylin) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	n, err := normalize.NewStainNormalizer(op.Config)
	if err != nil {
		return nil, err
	}
	h, err := n.Hematoxylin(f)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fmt.Fprintf(c.Log, "%d: Extracted Hematoxylin channel with method %v\n", f.ID, op.Method)

	fOut = img.NewImage(f.Width, f.Height, nil)
	fOut.ID, fOut.FileName = f.ID, f.FileName
	for i, v := range h {
		g := img.ClipRound(255 * v)
		fOut.SetRGB(i, g, g, g)
	}
	return fOut, nil
}
