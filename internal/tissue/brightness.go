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

package tissue

import (
	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/qsort"
)

// Default lightness percentile which is stretched to full white
const DefaultBrightnessPercentile = 95

// Rescales the Lab lightness channel so that its given percentile maps to full white.
// At least (100-percentile)% of the pixels saturate. Chroma channels are kept.
// Returns a new image. A black image, whose percentile is zero, is returned as an unchanged copy
func StandardizeBrightness(im *img.Image, percentile float64) (*img.Image, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	labs := im.ToLab()
	lum := make([]float64, len(labs))
	for i, lab := range labs {
		lum[i] = float64(img.ClipRound(lab.L * 255 / 100))
	}
	p := qsort.Percentile(lum, percentile)
	if p <= 0 {
		return img.NewImageFromImage(im), nil
	}

	for i := range labs {
		l8 := float64(img.ClipRound(labs[i].L * 255 / 100))
		l8 = 255 * l8 / p
		if l8 > 255 {
			l8 = 255
		}
		labs[i].L = l8 * 100 / 255
	}
	res := img.NewImageFromLab(im.Width, im.Height, labs)
	res.ID, res.FileName = im.ID, im.FileName
	return res, nil
}
