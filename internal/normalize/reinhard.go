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

package normalize

import (
	"math"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/stain"
	"github.com/mlnoga/stainlight/internal/tissue"
	"gonum.org/v1/gonum/stat"
)

// Color transfer after Reinhard et al., Color transfer between images, 2001.
// Matches mean and standard deviation of each Lab channel to the target
type ReinhardNormalizer struct {
	StandardizeBrightness bool
	BrightnessPercentile  float64

	targetMeans [3]float64
	targetStds  [3]float64
	fitted      bool
}

func NewReinhardNormalizer(standardizeBrightness bool) *ReinhardNormalizer {
	return &ReinhardNormalizer{
		StandardizeBrightness: standardizeBrightness,
		BrightnessPercentile:  tissue.DefaultBrightnessPercentile,
	}
}

func (r *ReinhardNormalizer) Fit(target *img.Image) error {
	target, err := r.prepare(target)
	if err != nil {
		return err
	}
	r.targetMeans, r.targetStds = labStats(splitLab(target.ToLab()))
	r.fitted = true
	return nil
}

func (r *ReinhardNormalizer) Transform(source *img.Image) (*img.Image, error) {
	if !r.fitted {
		return nil, stain.ErrNotFitted
	}
	source, err := r.prepare(source)
	if err != nil {
		return nil, err
	}
	labs := source.ToLab()
	means, stds := labStats(splitLab(labs))

	var scale [3]float64
	for c := range scale {
		scale[c] = 1
		if stds[c] != 0 {
			scale[c] = r.targetStds[c] / stds[c]
		}
	}
	for i := range labs {
		labs[i].L = (labs[i].L-means[0])*scale[0] + r.targetMeans[0]
		labs[i].A = (labs[i].A-means[1])*scale[1] + r.targetMeans[1]
		labs[i].B = (labs[i].B-means[2])*scale[2] + r.targetMeans[2]
		labs[i].L = math.Max(0, math.Min(100, labs[i].L))
	}

	res := img.NewImageFromLab(source.Width, source.Height, labs)
	res.ID, res.FileName = source.ID, source.FileName
	return res, nil
}

// Returns the fitted target means and standard deviations of L, a and b
func (r *ReinhardNormalizer) TargetStats() (means, stds [3]float64, err error) {
	if !r.fitted {
		return means, stds, stain.ErrNotFitted
	}
	return r.targetMeans, r.targetStds, nil
}

func (r *ReinhardNormalizer) prepare(im *img.Image) (*img.Image, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	if !r.StandardizeBrightness {
		return im, nil
	}
	return tissue.StandardizeBrightness(im, r.BrightnessPercentile)
}

func splitLab(labs []img.Lab) (chans [3][]float64) {
	for c := range chans {
		chans[c] = make([]float64, len(labs))
	}
	for i, lab := range labs {
		chans[0][i], chans[1][i], chans[2][i] = lab.L, lab.A, lab.B
	}
	return chans
}

// Per-channel mean and population standard deviation
func labStats(chans [3][]float64) (means, stds [3]float64) {
	for c, ch := range chans {
		means[c] = stat.Mean(ch, nil)
		stds[c] = math.Sqrt(stat.PopVariance(ch, nil))
	}
	return means, stds
}
