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

package pre

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/tissue"
)

// Detects tissue, logs its share of the image and optionally saves the mask
// as a black and white image. Passes the input through unchanged.
// Images without tissue fail, unless SkipEmpty is set, in which case they are dropped
type OpTissueMask struct {
	ops.OpUnaryBase
	LuminosityThreshold float64 `json:"luminosityThreshold"`
	SkipEmpty           bool    `json:"skipEmpty"`
	FilePattern         string  `json:"filePattern"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpTissueMaskDefault() }) } // register the operator for JSON decoding

func NewOpTissueMaskDefault() *OpTissueMask {
	return NewOpTissueMask(tissue.DefaultLuminosityThreshold, false, "")
}

func NewOpTissueMask(luminosityThreshold float64, skipEmpty bool, filePattern string) *OpTissueMask {
	op := &OpTissueMask{
		OpUnaryBase:         ops.OpUnaryBase{OpBase: ops.OpBase{Type: "tissueMask", Active: true}},
		LuminosityThreshold: luminosityThreshold,
		SkipEmpty:           skipEmpty,
		FilePattern:         filePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpTissueMask) UnmarshalJSON(data []byte) error {
	type defaults OpTissueMask
	def := defaults(*NewOpTissueMaskDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpTissueMask(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Drops images whose materialization failed because they hold no tissue
func (op *OpTissueMask) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	outs, err = op.OpUnaryBase.MakePromises(ins, c)
	if err != nil || !op.Active || !op.SkipEmpty {
		return outs, err
	}
	for i, out := range outs {
		outs[i] = skipEmpty(out)
	}
	return outs, nil
}

func skipEmpty(in ops.Promise) ops.Promise {
	return func() (*img.Image, error) {
		f, err := in()
		if errors.Is(err, tissue.ErrEmptyTissueMask) {
			return nil, nil
		}
		return f, err
	}
}

func (op *OpTissueMask) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	mask, err := tissue.Mask(f, op.LuminosityThreshold)
	if err != nil {
		fmt.Fprintf(c.Log, "%d: No tissue below luminosity threshold %g\n", f.ID, op.LuminosityThreshold)
		return nil, err
	}
	count := tissue.Count(mask)
	fmt.Fprintf(c.Log, "%d: Tissue covers %d of %d pixels (%.1f%%)\n",
		f.ID, count, len(mask), 100*float64(count)/float64(len(mask)))

	if op.FilePattern != "" {
		fileName := ops.ExpandFilePattern(op.FilePattern, f.ID)
		if !ops.IsPathAllowed(fileName) {
			return nil, errors.New(fmt.Sprintf("%d: Filename %s outside current directory tree, aborting", f.ID, fileName))
		}
		gray := make([]float64, len(mask))
		for i, t := range mask {
			if t {
				gray[i] = 1
			}
		}
		fmt.Fprintf(c.Log, "%d: Writing tissue mask to %s\n", f.ID, fileName)
		if err := img.WriteGrayFile(fileName, f.Width, f.Height, gray); err != nil {
			return nil, errors.New(fmt.Sprintf("%d: Error writing to file %s: %s", f.ID, fileName, err.Error()))
		}
	}
	return f, nil
}
