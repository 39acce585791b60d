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
	"errors"
	"fmt"
)

// Returned when an image does not satisfy the (H,W,3) uint8 RGB contract
var ErrInvalidImage = errors.New("invalid image")

// An 8-bit RGB image, e.g. a histology patch.
type Image struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Width  int     // Number of columns
	Height int     // Number of rows
	Pix    []uint8 // Interleaved RGB values, row by row. Length Width*Height*3
}

// Creates an image of the given size. Data is not copied, allocated if nil
func NewImage(width, height int, pix []uint8) *Image {
	if pix == nil {
		pix = make([]uint8, width*height*3)
	}
	return &Image{
		Width:  width,
		Height: height,
		Pix:    pix,
	}
}

// Creates an image from a flat list of integer values in (H,W,3) order,
// checking that every value is a valid 8-bit intensity
func NewImageFromValues(width, height int, values []int) (*Image, error) {
	if width <= 0 || height <= 0 || len(values) != width*height*3 {
		return nil, fmt.Errorf("%w: %d values for %dx%dx3", ErrInvalidImage, len(values), height, width)
	}
	pix := make([]uint8, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: value %d at index %d outside [0,255]", ErrInvalidImage, v, i)
		}
		pix[i] = uint8(v)
	}
	return NewImage(width, height, pix), nil
}

// Creates a deep copy of the given image
func NewImageFromImage(im *Image) *Image {
	return &Image{
		ID:       im.ID,
		FileName: im.FileName,
		Width:    im.Width,
		Height:   im.Height,
		Pix:      append([]uint8(nil), im.Pix...),
	}
}

// Number of pixels in the image
func (im *Image) Pixels() int {
	return im.Width * im.Height
}

// Checks the shape contract. Returns an error wrapping ErrInvalidImage on violation
func (im *Image) Validate() error {
	if im == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	if im.Width <= 0 || im.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, im.Height, im.Width)
	}
	if len(im.Pix) != im.Width*im.Height*3 {
		return fmt.Errorf("%w: %d bytes for %dx%dx3", ErrInvalidImage, len(im.Pix), im.Height, im.Width)
	}
	return nil
}

// Returns the RGB values of pixel i in row-major order
func (im *Image) RGB(i int) (r, g, b uint8) {
	return im.Pix[3*i], im.Pix[3*i+1], im.Pix[3*i+2]
}

// Sets the RGB values of pixel i in row-major order
func (im *Image) SetRGB(i int, r, g, b uint8) {
	im.Pix[3*i], im.Pix[3*i+1], im.Pix[3*i+2] = r, g, b
}

func (im *Image) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", im.Width, im.Height)
}

// Clips a float to [0,255] and rounds it to the nearest 8-bit value
func ClipRound(v float64) uint8 {
	if v != v || v <= 0 { // NaN or negative
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
