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

package stain

import (
	"github.com/mlnoga/stainlight/internal/img"
	"gonum.org/v1/gonum/mat"
)

// Hematoxylin, Eosin and DAB optical densities after Ruifrok and Johnston,
// Quantification of histochemical staining by color deconvolution, 2001
var ruifrokJohnston = []float64{
	0.644, 0.716, 0.266,
	0.092, 0.954, 0.283,
	-0.090, -0.275, 0.957,
}

// Returns a fresh copy of the Ruifrok-Johnston stain matrix
func RuifrokJohnston() *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), ruifrokJohnston...))
}

// Extractor returning the literal Ruifrok-Johnston matrix regardless of the image
type FixedExtractor struct{}

func (FixedExtractor) StainMatrix(im *img.Image) (*mat.Dense, error) {
	return RuifrokJohnston(), nil
}
