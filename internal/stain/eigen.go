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
	"math"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/qsort"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Extractor after Macenko et al., A method for normalizing histology slides
// for quantitative analysis, 2009. Projects tissue optical densities onto the plane
// of the two largest eigenvectors of their covariance and takes the robust
// extremes of the angle distribution in that plane as the stain vectors
type EigenExtractor struct {
	LuminosityThreshold float64 // tissue mask threshold on the unit lightness scale
	AngularPercentile   float64 // extremes are the (100-p)th and pth angle percentiles
}

func (e *EigenExtractor) StainMatrix(im *img.Image) (*mat.Dense, error) {
	d, err := tissueDensities(im, e.LuminosityThreshold)
	if err != nil {
		return nil, err
	}
	n, _ := d.Dims()

	cov := mat.NewSymDense(3, nil)
	if n >= 2 {
		stat.CovarianceMatrix(cov, d, nil)
	}

	var es mat.EigenSym
	if ok := es.Factorize(cov, true); !ok {
		return nil, errors.New("eigen decomposition of optical density covariance failed")
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// eigenvalues are ascending, so the last two columns span the principal plane
	v1, v2 := mat.Col(nil, 2, &vecs), mat.Col(nil, 1, &vecs)
	for _, v := range [][]float64{v1, v2} {
		if v[0] < 0 {
			for i := range v {
				v[i] = -v[i]
			}
		}
	}

	phi := make([]float64, n)
	for i := 0; i < n; i++ {
		row := d.RawRowView(i)
		x := row[0]*v1[0] + row[1]*v1[1] + row[2]*v1[2]
		y := row[0]*v2[0] + row[1]*v2[1] + row[2]*v2[2]
		phi[i] = math.Atan2(y, x)
	}
	minPhi := qsort.Percentile(phi, 100-e.AngularPercentile)
	maxPhi := qsort.Percentile(phi, e.AngularPercentile)

	a, b := make([]float64, 3), make([]float64, 3)
	for i := 0; i < 3; i++ {
		a[i] = v1[i]*math.Cos(minPhi) + v2[i]*math.Sin(minPhi)
		b[i] = v1[i]*math.Cos(maxPhi) + v2[i]*math.Sin(maxPhi)
	}

	// Hematoxylin has the larger red component
	he := mat.NewDense(2, 3, nil)
	if a[0] > b[0] {
		he.SetRow(0, a)
		he.SetRow(1, b)
	} else {
		he.SetRow(0, b)
		he.SetRow(1, a)
	}
	return NormalizeRows(he), nil
}
