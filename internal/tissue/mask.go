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

// Package tissue separates stained tissue from the bright slide background,
// and standardizes image brightness.
package tissue

import (
	"errors"
	"fmt"

	"github.com/mlnoga/stainlight/internal/img"
)

// Returned when no pixel of an image qualifies as tissue
var ErrEmptyTissueMask = errors.New("empty tissue mask")

// Default luminosity threshold in [0,1]. Pixels at or above are background
const DefaultLuminosityThreshold = 0.8

// Computes a mask which is true for pixels whose Lab lightness, scaled to [0,1],
// is below the given threshold. Fails with ErrEmptyTissueMask if no pixel qualifies
func Mask(im *img.Image, luminosityThreshold float64) ([]bool, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	lum := im.Lightness8()
	mask := make([]bool, len(lum))
	count := 0
	for i, l := range lum {
		if l/255 < luminosityThreshold {
			mask[i] = true
			count++
		}
	}
	if count == 0 {
		return nil, fmt.Errorf("%d: %w for luminosity threshold %.3g", im.ID, ErrEmptyTissueMask, luminosityThreshold)
	}
	return mask, nil
}

// Counts the true entries of a mask
func Count(mask []bool) int {
	count := 0
	for _, m := range mask {
		if m {
			count++
		}
	}
	return count
}
