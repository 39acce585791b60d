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

// Package sparse implements non-negative sparse coding and dictionary learning
// for small dictionaries, with atoms stored as matrix rows.
package sparse

import (
	"runtime"

	"gonum.org/v1/gonum/mat"
)

// Non-negative lasso against a fixed dictionary. For each sample x, finds
//
//	c = argmin 0.5*||x - c·D||² + Lambda*sum(c)   subject to c >= 0
//
// by cyclic coordinate descent on the Gram matrix of the dictionary D (K x dims).
type Lasso struct {
	Lambda        float64 // L1 regularization strength
	MaxIterations int     // maximum coordinate descent sweeps per sample
	Tolerance     float64 // stop once no coefficient changes by more than this
	Threads       int     // number of goroutines for SolveAll, <=0 for GOMAXPROCS

	dict *mat.Dense
	k    int
	dims int
	gram []float64 // K x K, row major
}

const (
	DefaultLassoIterations = 200
	DefaultLassoTolerance  = 1e-10
)

// Prepares a lasso solver for the given dictionary, one atom per row
func NewLasso(dict mat.Matrix, lambda float64) *Lasso {
	k, dims := dict.Dims()
	l := &Lasso{
		Lambda:        lambda,
		MaxIterations: DefaultLassoIterations,
		Tolerance:     DefaultLassoTolerance,
		dict:          mat.DenseCopyOf(dict),
		k:             k,
		dims:          dims,
		gram:          make([]float64, k*k),
	}
	var g mat.Dense
	g.Mul(l.dict, l.dict.T())
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			l.gram[i*k+j] = g.At(i, j)
		}
	}
	return l
}

// Solves for a single sample x of length dims. c of length K holds the warm start
// on entry and the solution on exit. b is scratch space of length K
func (l *Lasso) Solve(x, c, b []float64) {
	k, dims := l.k, l.dims
	raw := l.dict.RawMatrix()
	for j := 0; j < k; j++ {
		row := raw.Data[j*raw.Stride : j*raw.Stride+dims]
		s := 0.0
		for d, v := range row {
			s += v * x[d]
		}
		b[j] = s
	}

	for it := 0; it < l.MaxIterations; it++ {
		maxDelta := 0.0
		for j := 0; j < k; j++ {
			gjj := l.gram[j*k+j]
			if gjj <= 0 {
				c[j] = 0
				continue
			}
			r := b[j] - l.Lambda
			for m := 0; m < k; m++ {
				if m != j {
					r -= l.gram[j*k+m] * c[m]
				}
			}
			nc := r / gjj
			if nc < 0 {
				nc = 0
			}
			delta := nc - c[j]
			if delta < 0 {
				delta = -delta
			}
			if delta > maxDelta {
				maxDelta = delta
			}
			c[j] = nc
		}
		if maxDelta <= l.Tolerance {
			break
		}
	}
}

// Solves for all samples, one per row of x (N x dims), and returns the N x K codes
func (l *Lasso) SolveAll(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	codes := mat.NewDense(n, l.k, nil)
	l.SolveInto(x, codes)
	return codes
}

// Solves for all samples, one per row of x, using and overwriting the codes in dst (N x K)
func (l *Lasso) SolveInto(x, dst *mat.Dense) {
	n, _ := x.Dims()
	xRaw, cRaw := x.RawMatrix(), dst.RawMatrix()
	parallelChunks(n, l.Threads, func(start, end int) {
		b := make([]float64, l.k)
		for i := start; i < end; i++ {
			l.Solve(xRaw.Data[i*xRaw.Stride:i*xRaw.Stride+l.dims], cRaw.Data[i*cRaw.Stride:i*cRaw.Stride+l.k], b)
		}
	})
}

// Minimum number of rows handed to one goroutine
const minChunk = 4096

// Splits [0,n) into chunks and processes them concurrently, limiting
// the number of goroutines in flight to the given number of threads
func parallelChunks(n, threads int, fn func(start, end int)) {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	chunk := (n + threads - 1) / threads
	if chunk < minChunk {
		chunk = minChunk
	}
	if chunk >= n {
		fn(0, n)
		return
	}

	limiter := make(chan bool, threads)
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		limiter <- true
		go func(start, end int) {
			defer func() { <-limiter }()
			fn(start, end)
		}(start, end)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
}
