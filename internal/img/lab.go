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

package img

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// CIE L*a*b* color under D65, with L in [0,100] and a, b roughly in [-128,127]
type Lab struct {
	L float64
	A float64
	B float64
}

// Converts pixel i to CIE Lab
func (im *Image) LabAt(i int) Lab {
	r, g, b := im.RGB(i)
	col := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	l, a, bb := col.Lab() // go-colorful scales all three components by 1/100
	return Lab{l * 100, a * 100, bb * 100}
}

// Converts the whole image to CIE Lab, one entry per pixel
func (im *Image) ToLab() []Lab {
	res := make([]Lab, im.Pixels())
	for i := range res {
		res[i] = im.LabAt(i)
	}
	return res
}

// Returns the lightness channel packed into [0,255] the way 8-bit Lab images store it
func (im *Image) Lightness8() []float64 {
	res := make([]float64, im.Pixels())
	for i := range res {
		lab := im.LabAt(i)
		res[i] = float64(ClipRound(lab.L * 255 / 100))
	}
	return res
}

// Converts a Lab color to clamped 8-bit RGB
func (c Lab) ToRGB() (r, g, b uint8) {
	col := colorful.Lab(c.L/100, c.A/100, c.B/100).Clamped()
	return ClipRound(col.R * 255), ClipRound(col.G * 255), ClipRound(col.B * 255)
}

// Creates an RGB image from Lab pixels. len(labs) must equal width*height
func NewImageFromLab(width, height int, labs []Lab) *Image {
	im := NewImage(width, height, nil)
	for i, lab := range labs {
		r, g, b := lab.ToRGB()
		im.SetRGB(i, r, g, b)
	}
	return im
}
