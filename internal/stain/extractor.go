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
	"fmt"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/od"
	"github.com/mlnoga/stainlight/internal/sparse"
	"github.com/mlnoga/stainlight/internal/tissue"
	"gonum.org/v1/gonum/mat"
)

// Estimates the stain matrix of an image
type Extractor interface {
	StainMatrix(im *img.Image) (*mat.Dense, error)
}

// Parameters shared by the extractors
type Options struct {
	LuminosityThreshold   float64 `json:"luminosityThreshold"   yaml:"luminosityThreshold"`
	AngularPercentile     float64 `json:"angularPercentile"     yaml:"angularPercentile"`
	DictionaryRegularizer float64 `json:"dictionaryRegularizer" yaml:"dictionaryRegularizer"`
	DictionaryIterations  int     `json:"dictionaryIterations"  yaml:"dictionaryIterations"`
	DictionaryTolerance   float64 `json:"dictionaryTolerance"   yaml:"dictionaryTolerance"`
	DictionaryMaxSamples  int     `json:"dictionaryMaxSamples"  yaml:"dictionaryMaxSamples"`
}

const (
	DefaultAngularPercentile     = 99
	DefaultDictionaryRegularizer = 0.1
	DefaultDictionaryMaxSamples  = 100000
	DefaultLassoRegularizer      = 0.01
)

func DefaultOptions() Options {
	return Options{
		LuminosityThreshold:   tissue.DefaultLuminosityThreshold,
		AngularPercentile:     DefaultAngularPercentile,
		DictionaryRegularizer: DefaultDictionaryRegularizer,
		DictionaryIterations:  sparse.DefaultDictionaryIterations,
		DictionaryTolerance:   sparse.DefaultDictionaryTolerance,
		DictionaryMaxSamples:  DefaultDictionaryMaxSamples,
	}
}

// Creates an extractor for the given method
func NewExtractor(m Method, opt Options) (Extractor, error) {
	switch m {
	case MethodFixed:
		return FixedExtractor{}, nil
	case MethodEigen:
		return &EigenExtractor{
			LuminosityThreshold: opt.LuminosityThreshold,
			AngularPercentile:   opt.AngularPercentile,
		}, nil
	case MethodDictionary:
		return &DictionaryExtractor{
			LuminosityThreshold: opt.LuminosityThreshold,
			Regularizer:         opt.DictionaryRegularizer,
			MaxIterations:       opt.DictionaryIterations,
			Tolerance:           opt.DictionaryTolerance,
			MaxSamples:          opt.DictionaryMaxSamples,
		}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, int(m))
}

// Returns the optical densities of the pixels inside the tissue mask, one per row
func tissueDensities(im *img.Image, luminosityThreshold float64) (*mat.Dense, error) {
	mask, err := tissue.Mask(im, luminosityThreshold)
	if err != nil {
		return nil, err
	}
	all, err := od.ToOD(im)
	if err != nil {
		return nil, err
	}
	n := tissue.Count(mask)
	res := mat.NewDense(n, 3, nil)
	j := 0
	for i, isTissue := range mask {
		if isTissue {
			res.SetRow(j, all.RawRowView(i))
			j++
		}
	}
	return res, nil
}
