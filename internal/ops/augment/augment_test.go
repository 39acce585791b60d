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
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	aug "github.com/mlnoga/stainlight/internal/augment"
	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/stain"
	"github.com/mlnoga/stainlight/internal/tissue"
)

// Pinkish-purple tissue on even pixels, white background on odd ones
func testImage(id int) *img.Image {
	f := img.NewImage(8, 8, nil)
	for i := 0; i < f.Pixels(); i++ {
		if i%2 == 0 {
			f.SetRGB(i, 150, 80+uint8(i%7)*5, 160)
		} else {
			f.SetRGB(i, 255, 255, 255)
		}
	}
	f.ID = id
	return f
}

func promiseOf(f *img.Image) ops.Promise {
	return func() (*img.Image, error) { return f, nil }
}

func run(t *testing.T, op *OpAugment, threads int, ins ...ops.Promise) []*img.Image {
	t.Helper()
	outs, err := op.MakePromises(ins, ops.NewContext(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	ims, err := ops.MaterializeAll(outs, threads, false)
	if err != nil {
		t.Fatal(err)
	}
	return ims
}

func TestAugmentIDs(t *testing.T) {
	op := NewOpAugment(aug.DefaultConfig(), 3, 42)
	ims := run(t, op, 4, promiseOf(testImage(0)), promiseOf(testImage(1)))
	if len(ims) != 6 {
		t.Fatalf("got %d images, want 6", len(ims))
	}
	for i, f := range ims {
		if f.ID != i {
			t.Errorf("image %d has ID %d", i, f.ID)
		}
		if f.Width != 8 || f.Height != 8 {
			t.Errorf("image %d is %s", i, f.DimensionsToString())
		}
	}
	if bytes.Equal(ims[0].Pix, ims[1].Pix) {
		t.Error("variants of the same input are identical")
	}
}

func TestAugmentSeeded(t *testing.T) {
	op := NewOpAugment(aug.DefaultConfig(), 4, 7)
	a := run(t, op, 1, promiseOf(testImage(2)))
	b := run(t, op, 1, promiseOf(testImage(2)))
	for i := range a {
		if !bytes.Equal(a[i].Pix, b[i].Pix) {
			t.Errorf("seeded variant %d differs between runs", i)
		}
	}
}

func TestAugmentDropsAndErrors(t *testing.T) {
	c := ops.NewContext(io.Discard)
	op := NewOpAugment(aug.DefaultConfig(), 2, 1)
	ims := run(t, op, 2, promiseOf(nil), promiseOf(testImage(1)))
	if len(ims) != 2 || ims[0].ID != 2 {
		t.Errorf("got %d images, want the 2 variants of image 1", len(ims))
	}

	white := img.NewImage(4, 4, nil)
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	outs, err := op.MakePromises([]ops.Promise{promiseOf(white)}, c)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ops.MaterializeAll(outs, 1, false)
	if !errors.Is(err, tissue.ErrEmptyTissueMask) {
		t.Errorf("white input: got %v", err)
	} else if n := strings.Count(err.Error(), tissue.ErrEmptyTissueMask.Error()); n != 1 {
		t.Errorf("white input: fit failure reported %d times", n)
	}

	if _, err := NewOpAugment(aug.DefaultConfig(), 0, 0).MakePromises([]ops.Promise{promiseOf(white)}, c); err == nil {
		t.Error("expected error for zero count")
	}
	cfg := aug.DefaultConfig()
	cfg.Method = stain.Method(99)
	if _, err := NewOpAugment(cfg, 1, 0).MakePromises([]ops.Promise{promiseOf(white)}, c); !errors.Is(err, stain.ErrUnsupportedMethod) {
		t.Errorf("bad method: got %v", err)
	}
	if _, err := op.MakePromises(nil, c); err == nil {
		t.Error("expected error on zero inputs")
	}
}

func TestAugmentUnmarshal(t *testing.T) {
	op, err := ops.UnmarshalOperator([]byte(`{"type":"augment","count":5,"sigma1":0.1,"method":"vahadane"}`))
	if err != nil {
		t.Fatal(err)
	}
	a, ok := op.(*OpAugment)
	if !ok {
		t.Fatalf("got %T", op)
	}
	if a.Count != 5 || a.Sigma1 != 0.1 || a.Method != stain.MethodDictionary || !a.Active {
		t.Errorf("got %+v", a)
	}
	if a.Sigma2 != aug.DefaultSigma2 || a.LuminosityThreshold != tissue.DefaultLuminosityThreshold {
		t.Errorf("defaults lost: %+v", a.Config)
	}
	bs, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(bs, []byte(`"count":5`)) {
		t.Errorf("marshaled to %s", bs)
	}
}
