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

package od

import (
	"errors"
	"math"
	"testing"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/mat"
)

func TestToOD(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(4711)
	im := img.NewImage(2, 7, nil)
	for i := range im.Pix {
		im.Pix[i] = uint8(rng.Uint32n(256))
	}
	d, err := ToOD(im)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < im.Pixels(); i++ {
		for c := 0; c < 3; c++ {
			v := float64(im.Pix[3*i+c])
			if v == 0 {
				v = 1
			}
			expect := math.Max(-math.Log(v/255), MinOD)
			if got := d.At(i, c); math.Abs(got-expect) > 1e-12 {
				t.Errorf("od[%d,%d]=%g; want %g", i, c, got, expect)
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// every 8-bit value once per channel
	im := img.NewImage(256, 1, nil)
	for i := 0; i < 256; i++ {
		im.SetRGB(i, uint8(i), uint8(255-i), uint8(i))
	}
	d, err := ToOD(im)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ToRGB(d, im.Width, im.Height)
	if err != nil {
		t.Fatalf("ToRGB: %v", err)
	}
	for i, v := range im.Pix {
		expect := v
		if v == 0 {
			expect = 1 // zeros are lifted before taking the log
		}
		if back.Pix[i] != expect {
			t.Errorf("pix[%d]=%d; want %d", i, back.Pix[i], expect)
		}
	}
}

func TestToODShortBuffer(t *testing.T) {
	im := &img.Image{Width: 4, Height: 4, Pix: make([]uint8, 10)}
	if _, err := ToOD(im); !errors.Is(err, img.ErrInvalidImage) {
		t.Errorf("got %v; want ErrInvalidImage", err)
	}
}

func TestToRGBNegative(t *testing.T) {
	d := mat.NewDense(1, 3, []float64{0.1, -0.01, 0.3})
	if _, err := ToRGB(d, 1, 1); !errors.Is(err, ErrInvalidOpticalDensity) {
		t.Errorf("got %v; want ErrInvalidOpticalDensity", err)
	}
}

func TestToRGBValues(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{0, 1, 2, 10, 0.5, 100})
	im, err := ToRGB(d, 2, 1)
	if err != nil {
		t.Fatalf("ToRGB: %v", err)
	}
	for i := 0; i < 6; i++ {
		expect := uint8(math.Round(255 * math.Exp(-d.RawMatrix().Data[i])))
		if im.Pix[i] != expect {
			t.Errorf("pix[%d]=%d; want %d", i, im.Pix[i], expect)
		}
	}
}

func TestReconstructClips(t *testing.T) {
	conc := mat.NewDense(2, 2, []float64{-1, -1, 0.5, 0.25})
	stains := mat.NewDense(2, 3, []float64{0.6, 0.7, 0.3, 0.1, 0.9, 0.2})
	im := Reconstruct(conc, stains, 2, 1)
	for c := 0; c < 3; c++ {
		if im.Pix[c] != 255 {
			t.Errorf("negative density channel %d=%d; want 255", c, im.Pix[c])
		}
		d := 0.5*stains.At(0, c) + 0.25*stains.At(1, c)
		if expect := uint8(math.Round(255 * math.Exp(-d))); im.Pix[3+c] != expect {
			t.Errorf("channel %d=%d; want %d", c, im.Pix[3+c], expect)
		}
	}
}
