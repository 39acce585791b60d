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

// Package augment holds the operator which turns each input into several
// randomly stain-perturbed variants.
package augment

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	aug "github.com/mlnoga/stainlight/internal/augment"
	"github.com/mlnoga/stainlight/internal/img"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/valyala/fastrand"
)

const DefaultCount = 10

// Produces Count augmented variants of each input. Output IDs are
// input ID * Count + variant index
type OpAugment struct {
	ops.OpBase
	aug.Config
	Count int    `json:"count"`
	Seed  uint32 `json:"seed"` // 0 for unseeded. Otherwise each input draws from Seed+ID
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpAugmentDefault() }) } // register the operator for JSON decoding

func NewOpAugmentDefault() *OpAugment { return NewOpAugment(aug.DefaultConfig(), DefaultCount, 0) }

func NewOpAugment(cfg aug.Config, count int, seed uint32) *OpAugment {
	return &OpAugment{
		OpBase: ops.OpBase{Type: "augment", Active: true},
		Config: cfg,
		Count:  count,
		Seed:   seed,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpAugment) UnmarshalJSON(data []byte) error {
	type defaults OpAugment
	def := defaults(*NewOpAugmentDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpAugment(def)
	return nil
}

func (op *OpAugment) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) == 0 {
		return nil, errors.New(fmt.Sprintf("%s operator with %d inputs", op.Type, len(ins)))
	}
	if !op.Active {
		return ins, nil
	}
	if op.Count < 1 {
		return nil, errors.New(fmt.Sprintf("%s operator with invalid count %d", op.Type, op.Count))
	}
	if _, err := aug.NewAugmentor(op.Config, nil); err != nil { // fail early on bad settings
		return nil, err
	}
	outs = make([]ops.Promise, 0, len(ins)*op.Count)
	for _, in := range ins {
		g := &augmentGroup{op: op, in: in, c: c}
		for k := 0; k < op.Count; k++ {
			outs = append(outs, g.promise(k))
		}
	}
	return outs, nil
}

// The variants of a single input. The input is materialized and fitted
// once. Variants are drawn one at a time from the shared random source
type augmentGroup struct {
	op *OpAugment
	in ops.Promise
	c  *ops.Context

	once      sync.Once
	mutex     sync.Mutex
	augmentor *aug.Augmentor
	src       *img.Image
	err       error
}

func (g *augmentGroup) fit() {
	f, err := g.in()
	if err != nil {
		g.err = err
		return
	}
	if f == nil { // dropped upstream
		return
	}
	var rng aug.RandSource
	if g.op.Seed != 0 {
		r := &fastrand.RNG{}
		r.Seed(g.op.Seed + uint32(f.ID))
		rng = r
	}
	a, err := aug.NewAugmentor(g.op.Config, rng)
	if err != nil {
		g.err = err
		return
	}
	if err := a.Fit(f); err != nil {
		g.err = fmt.Errorf("%d: %w", f.ID, err)
		return
	}
	stains, _ := a.StainMatrix()
	fmt.Fprintf(g.c.Log, "%d: Fitted %v augmentor, stains %v\n", f.ID, g.op.Method, stains.RawMatrix().Data)
	g.augmentor, g.src = a, f
}

func (g *augmentGroup) promise(k int) ops.Promise {
	return func() (*img.Image, error) {
		g.once.Do(g.fit)
		if g.err != nil {
			if k > 0 { // reported by the first variant
				return nil, nil
			}
			return nil, g.err
		}
		if g.augmentor == nil {
			return nil, nil
		}

		g.mutex.Lock()
		fOut, err := g.augmentor.Pop()
		g.mutex.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%d: %w", g.src.ID, err)
		}
		fOut.ID = g.src.ID*g.op.Count + k
		fOut.FileName = g.src.FileName
		fmt.Fprintf(g.c.Log, "%d: Augmented variant %d of %d from image %d\n", fOut.ID, k+1, g.op.Count, g.src.ID)
		return fOut, nil
	}
}
