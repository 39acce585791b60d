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

// Package od converts between 8-bit RGB and optical density, OD = -ln(RGB/255).
package od

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/stainlight/internal/img"
	"gonum.org/v1/gonum/mat"
)

// Returned when converting a negative optical density to RGB
var ErrInvalidOpticalDensity = errors.New("negative optical density")

// Lower bound for optical densities, keeps white pixels strictly positive
const MinOD = 1e-6

// Lookup table of optical densities for all 8-bit values. Zero maps like one
var odTable = makeODTable()

func makeODTable() (t [256]float64) {
	for v := 0; v < 256; v++ {
		x := v
		if x == 0 {
			x = 1
		}
		t[v] = math.Max(-math.Log(float64(x)/255), MinOD)
	}
	return t
}

// Converts a single 8-bit value to optical density
func FromValue(v uint8) float64 {
	return odTable[v]
}

// Converts a single optical density to a clipped, rounded 8-bit value
func ToValue(d float64) uint8 {
	return img.ClipRound(255 * math.Exp(-d))
}

// Converts an RGB image to an N x 3 matrix of optical densities, one row per pixel.
// Zero channel values are treated as one, to avoid log(0)
func ToOD(im *img.Image) (*mat.Dense, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	n := im.Pixels()
	data := make([]float64, n*3)
	for i, v := range im.Pix[:n*3] {
		data[i] = odTable[v]
	}
	return mat.NewDense(n, 3, data), nil
}

// Converts an N x 3 optical density matrix back to an RGB image of the given size.
// Fails with ErrInvalidOpticalDensity if any density is negative
func ToRGB(d mat.Matrix, width, height int) (*img.Image, error) {
	rows, cols := d.Dims()
	if cols != 3 || rows != width*height {
		return nil, fmt.Errorf("%w: %dx%d densities for %dx%d image", img.ErrInvalidImage, rows, cols, width, height)
	}
	im := img.NewImage(width, height, nil)
	for i := 0; i < rows; i++ {
		for c := 0; c < 3; c++ {
			v := d.At(i, c)
			if v < 0 {
				return nil, fmt.Errorf("%w: %g at pixel %d channel %d", ErrInvalidOpticalDensity, v, i, c)
			}
			im.Pix[3*i+c] = ToValue(v)
		}
	}
	return im, nil
}

// Reconstructs an RGB image from concentrations (N x S) and a stain matrix (S x 3).
// Negative densities, which arise from perturbed or rescaled concentrations, saturate to white
func Reconstruct(conc, stains mat.Matrix, width, height int) *img.Image {
	n, s := conc.Dims()
	im := img.NewImage(width, height, nil)
	row := make([]float64, s)
	for i := 0; i < n; i++ {
		for k := 0; k < s; k++ {
			row[k] = conc.At(i, k)
		}
		for c := 0; c < 3; c++ {
			d := 0.0
			for k := 0; k < s; k++ {
				d += row[k] * stains.At(k, c)
			}
			im.Pix[3*i+c] = ToValue(d)
		}
	}
	return im
}
