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

package pre

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/tissue"
)

func uniform(id int, v uint8) *img.Image {
	f := img.NewImage(4, 4, nil)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	f.ID = id
	return f
}

func promiseOf(f *img.Image) ops.Promise {
	return func() (*img.Image, error) { return f, nil }
}

func TestStandardize(t *testing.T) {
	c := ops.NewContext(io.Discard)
	f := uniform(1, 200)
	f.Pix[0], f.Pix[1], f.Pix[2] = 100, 60, 120

	res, err := NewOpStandardizeDefault().Apply(f, c)
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != 1 || res.Width != 4 || res.Height != 4 {
		t.Errorf("got %+v", res)
	}
	if r, g, b := res.RGB(5); r < 250 || g < 250 || b < 250 {
		t.Errorf("background pixel not stretched to white: %d %d %d", r, g, b)
	}

	if _, err := NewOpStandardize(true, 0).Apply(f, c); err == nil {
		t.Error("expected error for zero percentile")
	}
	if _, err := NewOpStandardize(true, 101).Apply(f, c); err == nil {
		t.Error("expected error for percentile above 100")
	}
}

func TestTissueMask(t *testing.T) {
	c := ops.NewContext(io.Discard)
	tissueImage, whiteImage := uniform(0, 120), uniform(1, 255)

	op := NewOpTissueMaskDefault()
	res, err := op.Apply(tissueImage, c)
	if err != nil || res != tissueImage {
		t.Errorf("tissue image: got %v, %v", res, err)
	}
	_, err = op.Apply(whiteImage, c)
	if !errors.Is(err, tissue.ErrEmptyTissueMask) {
		t.Errorf("white image: got %v", err)
	}
}

func TestTissueMaskSkipEmpty(t *testing.T) {
	c := ops.NewContext(io.Discard)
	ins := []ops.Promise{promiseOf(uniform(0, 120)), promiseOf(uniform(1, 255)), promiseOf(uniform(2, 90))}

	outs, err := NewOpTissueMask(tissue.DefaultLuminosityThreshold, true, "").MakePromises(ins, c)
	if err != nil {
		t.Fatal(err)
	}
	ims, err := ops.MaterializeAll(outs, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ims) != 2 || ims[0].ID != 0 || ims[1].ID != 2 {
		t.Errorf("got %v, want images 0 and 2", ims)
	}

	outs, _ = NewOpTissueMask(tissue.DefaultLuminosityThreshold, false, "").MakePromises(ins, c)
	if _, err := ops.MaterializeAll(outs, 2, false); err == nil {
		t.Error("expected error without skipping")
	}
}

func TestTissueMaskWritesFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	c := ops.NewContext(io.Discard)
	f := uniform(4, 255)
	f.Pix[0], f.Pix[1], f.Pix[2] = 120, 60, 150
	if _, err := NewOpTissueMask(tissue.DefaultLuminosityThreshold, false, "mask_%d.png").Apply(f, c); err != nil {
		t.Fatal(err)
	}
	m, err := img.NewImageFromFile("mask_4.png", 0)
	if err != nil {
		t.Fatal(err)
	}
	if r, _, _ := m.RGB(0); r != 255 {
		t.Errorf("tissue pixel has mask value %d", r)
	}
	if r, _, _ := m.RGB(1); r != 0 {
		t.Errorf("background pixel has mask value %d", r)
	}
}
