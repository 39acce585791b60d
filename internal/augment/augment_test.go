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

package augment

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/stain"
	"github.com/mlnoga/stainlight/internal/tissue"
	"github.com/valyala/fastrand"
)

// Tissue-like pixels in the even columns, white background in the odd ones
func testImage(width, height int) *img.Image {
	im := img.NewImage(width, height, nil)
	for i := 0; i < im.Pixels(); i++ {
		if i%2 == 0 {
			v := uint8(60 + i%40)
			im.SetRGB(i, 150-v/2, v, 170-v/4)
		} else {
			im.SetRGB(i, 255, 255, 255)
		}
	}
	return im
}

func seeded(seed uint32) *fastrand.RNG {
	rng := &fastrand.RNG{}
	rng.Seed(seed)
	return rng
}

func TestPopShape(t *testing.T) {
	for _, m := range []stain.Method{stain.MethodFixed, stain.MethodEigen, stain.MethodDictionary} {
		cfg := DefaultConfig()
		cfg.Method = m
		a, err := NewAugmentor(cfg, seeded(42))
		if err != nil {
			t.Fatalf("NewAugmentor(%v): %v", m, err)
		}
		im := testImage(10, 6)
		if err := a.Fit(im); err != nil {
			t.Fatalf("%v Fit: %v", m, err)
		}
		res, err := a.Pop()
		if err != nil {
			t.Fatalf("%v Pop: %v", m, err)
		}
		if res.Width != im.Width || res.Height != im.Height || len(res.Pix) != len(im.Pix) {
			t.Errorf("%v: size %s; want %s", m, res.DimensionsToString(), im.DimensionsToString())
		}
	}
}

func TestPopsDiffer(t *testing.T) {
	a, err := NewAugmentor(DefaultConfig(), seeded(4711))
	if err != nil {
		t.Fatalf("NewAugmentor: %v", err)
	}
	if err := a.Fit(testImage(8, 8)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	first, err := a.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	second, err := a.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if bytes.Equal(first.Pix, second.Pix) {
		t.Errorf("two pops are identical")
	}
}

func TestSeededPopsRepeat(t *testing.T) {
	var results [2][]byte
	for j := range results {
		a, err := NewAugmentor(DefaultConfig(), seeded(123))
		if err != nil {
			t.Fatalf("NewAugmentor: %v", err)
		}
		if err := a.Fit(testImage(8, 8)); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		res, err := a.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		results[j] = res.Pix
	}
	if !bytes.Equal(results[0], results[1]) {
		t.Errorf("same seed gave different results")
	}
}

func TestBackgroundKept(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sigma1, cfg.Sigma2 = 0.5, 0.5
	a, err := NewAugmentor(cfg, seeded(7))
	if err != nil {
		t.Fatalf("NewAugmentor: %v", err)
	}
	im := testImage(8, 8)
	if err := a.Fit(im); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for pop := 0; pop < 5; pop++ {
		res, err := a.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		for i := 1; i < res.Pixels(); i += 2 {
			if r, g, b := res.RGB(i); r != 255 || g != 255 || b != 255 {
				t.Fatalf("pop %d background pixel %d=%d,%d,%d; want white", pop, i, r, g, b)
			}
		}
	}
}

func TestZeroSigmaReconstructs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sigma1, cfg.Sigma2 = 0, 0
	cfg.AugmentBackground = true
	a, err := NewAugmentor(cfg, nil)
	if err != nil {
		t.Fatalf("NewAugmentor: %v", err)
	}
	im := testImage(6, 6)
	if err := a.Fit(im); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	res, err := a.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	for i := range im.Pix {
		d := int(res.Pix[i]) - int(im.Pix[i])
		if d < -1 || d > 1 {
			t.Fatalf("pix[%d]=%d; want %d", i, res.Pix[i], im.Pix[i])
		}
	}
}

func TestPopWithStains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = stain.MethodEigen
	a, err := NewAugmentor(cfg, seeded(99))
	if err != nil {
		t.Fatalf("NewAugmentor: %v", err)
	}
	if err := a.Fit(testImage(8, 8)); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	_, stains, err := a.PopWithStains()
	if err != nil {
		t.Fatalf("PopWithStains: %v", err)
	}
	if r, c := stains.Dims(); r != 2 || c != 3 {
		t.Errorf("stains %dx%d; want 2x3", r, c)
	}
}

func TestAugmentorErrors(t *testing.T) {
	a, err := NewAugmentor(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewAugmentor: %v", err)
	}
	if _, err := a.Pop(); !errors.Is(err, stain.ErrNotFitted) {
		t.Errorf("Pop before Fit: got %v; want ErrNotFitted", err)
	}
	if _, err := a.StainMatrix(); !errors.Is(err, stain.ErrNotFitted) {
		t.Errorf("StainMatrix before Fit: got %v; want ErrNotFitted", err)
	}
	white := img.NewImage(4, 4, bytes.Repeat([]byte{255}, 48))
	if err := a.Fit(white); !errors.Is(err, tissue.ErrEmptyTissueMask) {
		t.Errorf("Fit on white: got %v; want ErrEmptyTissueMask", err)
	}
	if a.Fitted() {
		t.Errorf("fitted after failed Fit")
	}

	cfg := DefaultConfig()
	cfg.Method = stain.MethodFixed
	cfg.AugmentBackground = true
	a, err = NewAugmentor(cfg, nil)
	if err != nil {
		t.Fatalf("NewAugmentor: %v", err)
	}
	if err := a.Fit(white); !errors.Is(err, tissue.ErrEmptyTissueMask) {
		t.Errorf("fixed Fit on white with background: got %v; want ErrEmptyTissueMask", err)
	}

	cfg = DefaultConfig()
	cfg.Method = stain.Method(-1)
	if _, err := NewAugmentor(cfg, nil); !errors.Is(err, stain.ErrUnsupportedMethod) {
		t.Errorf("unknown method: got %v; want ErrUnsupportedMethod", err)
	}
}
