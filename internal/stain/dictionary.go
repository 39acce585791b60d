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
	"github.com/mlnoga/stainlight/internal/sparse"
	"gonum.org/v1/gonum/mat"
)

// Extractor after Vahadane et al., Structure-preserving color normalization and
// sparse stain separation for histological images, 2016. Learns a two-atom
// non-negative dictionary with sparse non-negative codes from the tissue densities
type DictionaryExtractor struct {
	LuminosityThreshold float64 // tissue mask threshold on the unit lightness scale
	Regularizer         float64 // L1 penalty on the codes
	MaxIterations       int     // upper bound on dictionary learning iterations, <=0 for default
	Tolerance           float64 // relative objective decrease to stop at, <=0 for default
	MaxSamples          int     // tissue pixels are subsampled by stride above this, <=0 for all
}

func (e *DictionaryExtractor) StainMatrix(im *img.Image) (*mat.Dense, error) {
	d, err := tissueDensities(im, e.LuminosityThreshold)
	if err != nil {
		return nil, err
	}
	d = subsample(d, e.MaxSamples)

	dl := sparse.NewDictionaryLearner(2, e.Regularizer)
	if e.MaxIterations > 0 {
		dl.MaxIterations = e.MaxIterations
	}
	if e.Tolerance > 0 {
		dl.Tolerance = e.Tolerance
	}
	dict, err := dl.Fit(d)
	if err != nil {
		return nil, err
	}

	// Hematoxylin has the larger red component
	if dict.At(0, 0) < dict.At(1, 0) {
		r0, r1 := mat.Row(nil, 0, dict), mat.Row(nil, 1, dict)
		dict.SetRow(0, r1)
		dict.SetRow(1, r0)
	}
	return NormalizeRows(dict), nil
}

// Keeps every k-th row so that at most max rows remain
func subsample(d *mat.Dense, max int) *mat.Dense {
	n, cols := d.Dims()
	if max <= 0 || n <= max {
		return d
	}
	stride := (n + max - 1) / max
	res := mat.NewDense((n+stride-1)/stride, cols, nil)
	for i, j := 0, 0; i < n; i, j = i+stride, j+1 {
		res.SetRow(j, d.RawRowView(i))
	}
	return res
}
