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
	"errors"
	"fmt"
	"strings"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/normalize"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/stain"
	"gonum.org/v1/gonum/mat"
)

// Side length in pixels of each stain's square in a swatch image
const swatchSize = 64

// Estimates and logs the stain matrix of each input, and optionally saves
// a swatch image with one colored square per stain. Passes the input through unchanged
type OpStainMatrix struct {
	ops.OpUnaryBase
	Method        stain.Method `json:"method"`
	stain.Options              // embedded for flat JSON keys
	FilePattern   string       `json:"filePattern"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStainMatrixDefault() }) } // register the operator for JSON decoding

func NewOpStainMatrixDefault() *OpStainMatrix {
	return NewOpStainMatrix(stain.MethodEigen, stain.DefaultOptions(), "")
}

func NewOpStainMatrix(method stain.Method, opts stain.Options, filePattern string) *OpStainMatrix {
	op := &OpStainMatrix{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stainMatrix", Active: true}},
		Method:      method,
		Options:     opts,
		FilePattern: filePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStainMatrix) UnmarshalJSON(data []byte) error {
	type defaults OpStainMatrix
	def := defaults(*NewOpStainMatrixDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpStainMatrix(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStainMatrix) Apply(f *img.Image, c *ops.Context) (fOut *img.Image, err error) {
	ex, err := stain.NewExtractor(op.Method, op.Options)
	if err != nil {
		return nil, err
	}
	s, err := ex.StainMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fmt.Fprintf(c.Log, "%d: %v stain matrix %s\n", f.ID, op.Method, FormatStains(s))

	if op.FilePattern != "" {
		fileName := ops.ExpandFilePattern(op.FilePattern, f.ID)
		if !ops.IsPathAllowed(fileName) {
			return nil, errors.New(fmt.Sprintf("%d: Filename %s outside current directory tree, aborting", f.ID, fileName))
		}
		fmt.Fprintf(c.Log, "%d: Writing stain swatch to %s\n", f.ID, fileName)
		if err := Swatch(s).WriteFile(fileName); err != nil {
			return nil, errors.New(fmt.Sprintf("%d: Error writing to file %s: %s", f.ID, fileName, err.Error()))
		}
	}
	return f, nil
}

// Formats a stain matrix compactly as [[r g b] [r g b] ...]
func FormatStains(s mat.Matrix) string {
	rows, cols := s.Dims()
	var b strings.Builder
	b.WriteRune('[')
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteRune(' ')
		}
		b.WriteRune('[')
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteRune(' ')
			}
			fmt.Fprintf(&b, "%.4f", s.At(i, j))
		}
		b.WriteRune(']')
	}
	b.WriteRune(']')
	return b.String()
}

// Renders a stain matrix as a row of colored squares, one per stain
func Swatch(s mat.Matrix) *img.Image {
	colors := normalize.StainsToRGB(s)
	n := colors.Pixels()
	res := img.NewImage(n*swatchSize, swatchSize, nil)
	for y := 0; y < swatchSize; y++ {
		for x := 0; x < n*swatchSize; x++ {
			r, g, b := colors.RGB(x / swatchSize)
			res.SetRGB(y*n*swatchSize+x, r, g, b)
		}
	}
	return res
}
