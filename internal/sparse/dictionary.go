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

package sparse

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Learns a non-negative dictionary D (Atoms x dims) and non-negative sparse codes C
// for samples X (N x dims), minimizing
//
//	0.5*||X - C·D||² + Lambda*sum(C)   subject to C >= 0, D >= 0, ||D_j|| <= 1
//
// by alternating lasso coding with one block coordinate descent pass over the
// atoms per iteration (Mairal et al., Online Dictionary Learning for Sparse Coding, 2009,
// run in batch mode). Initialization is deterministic, so results are reproducible
// for identical inputs, but not bitwise identical to other implementations.
type DictionaryLearner struct {
	Atoms         int     // number of dictionary atoms K
	Lambda        float64 // L1 regularization strength of the codes
	MaxIterations int     // upper bound on alternating iterations
	Tolerance     float64 // stop when the relative objective decrease falls below this
	Threads       int     // goroutines for the coding step, <=0 for GOMAXPROCS

	Iterations int     // iterations run by the last call to Fit
	Objective  float64 // objective value after the last call to Fit
}

const (
	DefaultDictionaryIterations = 100
	DefaultDictionaryTolerance  = 1e-6
)

func NewDictionaryLearner(atoms int, lambda float64) *DictionaryLearner {
	return &DictionaryLearner{
		Atoms:         atoms,
		Lambda:        lambda,
		MaxIterations: DefaultDictionaryIterations,
		Tolerance:     DefaultDictionaryTolerance,
	}
}

// Learns the dictionary for the given samples, one per row. Returns Atoms x dims
func (dl *DictionaryLearner) Fit(x *mat.Dense) (*mat.Dense, error) {
	n, _ := x.Dims()
	k := dl.Atoms
	if k <= 0 {
		return nil, errors.New(fmt.Sprintf("dictionary learning with %d atoms", k))
	}
	if n == 0 {
		return nil, errors.New("dictionary learning without samples")
	}

	dict := initialDictionary(x, k)
	codes := mat.NewDense(n, k, nil)
	sumSq := 0.0
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		sumSq += floats.Dot(row, row)
	}

	var a, b mat.Dense // a = CᵀC (K x K), b = CᵀX (K x dims)
	prevObj := 0.0
	dl.Iterations, dl.Objective = 0, math.NaN()
	for it := 0; it < dl.MaxIterations; it++ {
		// sparse coding step, warm-started from the previous codes
		lasso := NewLasso(dict, dl.Lambda)
		lasso.Threads = dl.Threads
		lasso.SolveInto(x, codes)

		a.Mul(codes.T(), codes)
		b.Mul(codes.T(), x)

		obj := objective(sumSq, dict, &a, &b, codes, dl.Lambda)
		dl.Iterations, dl.Objective = it+1, obj
		if it > 0 && prevObj-obj <= dl.Tolerance*math.Abs(prevObj) {
			break
		}
		prevObj = obj

		updateDictionary(dict, &a, &b)
	}
	return dict, nil
}

// Evaluates 0.5*||X - C·D||² + lambda*sum(C) from the sufficient statistics
func objective(sumSq float64, dict, a, b, codes *mat.Dense, lambda float64) float64 {
	k, _ := dict.Dims()
	cross, quad := 0.0, 0.0
	for j := 0; j < k; j++ {
		dj := dict.RawRowView(j)
		cross += floats.Dot(dj, b.RawRowView(j))
		for m := 0; m < k; m++ {
			quad += a.At(j, m) * floats.Dot(dj, dict.RawRowView(m))
		}
	}
	l1 := mat.Sum(codes) // codes are non-negative
	return 0.5*(sumSq-2*cross+quad) + lambda*l1
}

// One pass of block coordinate descent over the atoms, projecting each
// onto the non-negative part of the unit ball
func updateDictionary(dict, a, b *mat.Dense) {
	k, dims := dict.Dims()
	u := make([]float64, dims)
	for j := 0; j < k; j++ {
		ajj := a.At(j, j)
		if ajj < 1e-12 {
			continue // unused atom, keep as is
		}
		dj := dict.RawRowView(j)
		copy(u, b.RawRowView(j))
		for m := 0; m < k; m++ {
			floats.AddScaled(u, -a.At(m, j), dict.RawRowView(m))
		}
		floats.Scale(1/ajj, u)
		floats.Add(u, dj)
		for d := range u {
			if u[d] < 0 {
				u[d] = 0
			}
		}
		norm := floats.Norm(u, 2)
		if norm == 0 {
			continue // projection collapsed, keep the previous atom
		}
		if norm > 1 {
			floats.Scale(1/norm, u)
		}
		copy(dj, u)
	}
}

// Picks K samples spread evenly across the range of their first-component
// fraction x[0]/||x||, from largest to smallest, normalized and clipped to be non-negative.
// For two atoms these are the most and least first-component dominated samples
func initialDictionary(x *mat.Dense, k int) *mat.Dense {
	n, dims := x.Dims()
	fraction := make([]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		norm := floats.Norm(row, 2)
		if norm > 0 {
			fraction[i] = row[0] / norm
		}
		idx[i] = i
	}
	sort.SliceStable(idx, func(p, q int) bool { return fraction[idx[p]] > fraction[idx[q]] })

	dict := mat.NewDense(k, dims, nil)
	for j := 0; j < k; j++ {
		pos := 0
		if k > 1 {
			pos = j * (n - 1) / (k - 1)
		}
		dj := dict.RawRowView(j)
		copy(dj, x.RawRowView(idx[pos]))
		for d := range dj {
			if dj[d] < 0 {
				dj[d] = 0
			}
		}
		if norm := floats.Norm(dj, 2); norm > 0 {
			floats.Scale(1/norm, dj)
		} else {
			dj[j%dims] = 1
		}
	}
	return dict
}
