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
	"errors"
	"fmt"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/od"
	"github.com/mlnoga/stainlight/internal/sparse"
	"gonum.org/v1/gonum/mat"
)

// Decomposes the optical densities of an image into per-stain concentrations, N x S.
// A square, invertible 3x3 stain matrix is solved exactly via its inverse, which may
// yield negative concentrations. Any other stain matrix is solved by a non-negative lasso
// with the given L1 penalty
func GetConcentrations(im *img.Image, stains mat.Matrix, lambda float64) (*mat.Dense, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	s, cols := stains.Dims()
	if cols != 3 || s < 1 {
		return nil, errors.New(fmt.Sprintf("stain matrix has shape %dx%d, want Sx3", s, cols))
	}
	d, err := od.ToOD(im)
	if err != nil {
		return nil, err
	}

	if s == 3 {
		var inv mat.Dense
		if err := inv.Inverse(stains); err == nil {
			var conc mat.Dense
			conc.Mul(d, &inv)
			return &conc, nil
		}
		// singular, fall through to the lasso
	}
	return sparse.NewLasso(stains, lambda).SolveAll(d), nil
}
