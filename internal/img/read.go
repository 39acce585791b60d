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
	"bufio"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
)

// Reads an image from the given file. Format is detected from the content
func NewImageFromFile(fileName string, id int) (*Image, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	im, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%d: error decoding %s: %w", id, fileName, err)
	}
	im.ID = id
	im.FileName = fileName
	return im, nil
}

// Decodes an image in any registered format, discarding alpha
func Read(r io.Reader) (*Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return NewImageFromStdImage(src), nil
}

// Converts a Go image into an 8-bit RGB image
func NewImageFromStdImage(src image.Image) *Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	im := NewImage(width, height, nil)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			im.SetRGB(yoffset+x, c.R, c.G, c.B)
		}
	}
	return im
}

// Converts into a Go image
func (im *Image) ToStdImage() *image.NRGBA {
	res := image.NewNRGBA(image.Rectangle{image.Point{0, 0}, image.Point{im.Width, im.Height}})
	for i := 0; i < im.Pixels(); i++ {
		copy(res.Pix[4*i:4*i+3], im.Pix[3*i:3*i+3])
		res.Pix[4*i+3] = 255
	}
	return res
}
