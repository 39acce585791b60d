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
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/image/tiff"
)

// Output encodings supported by WriteFile
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
	FormatTIFF
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "PNG"
	case FormatJPEG:
		return "JPEG"
	case FormatTIFF:
		return "TIFF"
	}
	return "unknown"
}

// Determines the output format from the file name suffix
func FormatFromFileName(fileName string) Format {
	fnLower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(fnLower, ".png"):
		return FormatPNG
	case strings.HasSuffix(fnLower, ".jpg") || strings.HasSuffix(fnLower, ".jpeg"):
		return FormatJPEG
	case strings.HasSuffix(fnLower, ".tif") || strings.HasSuffix(fnLower, ".tiff"):
		return FormatTIFF
	}
	return FormatUnknown
}

// Writes the image to a file, choosing the encoding by suffix
func (im *Image) WriteFile(fileName string) error {
	format := FormatFromFileName(fileName)
	if format == FormatUnknown {
		return errors.New(fmt.Sprintf("unknown suffix for file %s", fileName))
	}

	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := im.Write(writer, format); err != nil {
		return err
	}
	return writer.Flush()
}

// Encodes the image in the given format. JPEG uses quality 95
func (im *Image) Write(writer io.Writer, format Format) error {
	return encode(writer, im.ToStdImage(), format)
}

// Writes a grayscale image with values in [0,1], e.g. a stain channel, choosing the encoding by suffix
func WriteGrayFile(fileName string, width, height int, data []float64) error {
	format := FormatFromFileName(fileName)
	if format == FormatUnknown {
		return errors.New(fmt.Sprintf("unknown suffix for file %s", fileName))
	}
	gray := image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			v := data[yoffset+x]
			if v != v || v < 0 { // NaN
				v = 0
			}
			if v > 1 {
				v = 1
			}
			gray.SetGray16(x, y, color.Gray16{uint16(v*65535 + 0.5)})
		}
	}

	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := encode(writer, gray, format); err != nil {
		return err
	}
	return writer.Flush()
}

func encode(writer io.Writer, m image.Image, format Format) error {
	switch format {
	case FormatPNG:
		return png.Encode(writer, m)
	case FormatJPEG:
		return jpeg.Encode(writer, m, &jpeg.Options{Quality: 95})
	case FormatTIFF:
		return tiff.Encode(writer, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return errors.New("unknown output format")
}
