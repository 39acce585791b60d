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
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var testDict = mat.NewDense(2, 3, []float64{
	0.6, 0.8, 0,
	0, 0.6, 0.8,
})

func TestLassoExactWithoutPenalty(t *testing.T) {
	l := NewLasso(testDict, 0)
	for _, tc := range [][2]float64{{1, 2}, {0.3, 0}, {0, 0.7}, {0, 0}} {
		x := []float64{
			tc[0] * 0.6,
			tc[0]*0.8 + tc[1]*0.6,
			tc[1] * 0.8,
		}
		c, b := make([]float64, 2), make([]float64, 2)
		l.Solve(x, c, b)
		if math.Abs(c[0]-tc[0]) > 1e-6 || math.Abs(c[1]-tc[1]) > 1e-6 {
			t.Errorf("codes %v; want %v", c, tc)
		}
	}
}

func TestLassoNonNegative(t *testing.T) {
	// x points away from the second atom, the unconstrained solution is negative there
	l := NewLasso(testDict, 0)
	x := []float64{0.6, 0.8 - 0.6, -0.8}
	c, b := make([]float64, 2), make([]float64, 2)
	l.Solve(x, c, b)
	if c[0] < 0 || c[1] != 0 {
		t.Errorf("codes %v; want c0>=0, c1=0", c)
	}
	// with c1 clamped to zero, c0 is the projection onto the first atom
	if expect := floats.Dot(x, testDict.RawRowView(0)); math.Abs(c[0]-expect) > 1e-6 {
		t.Errorf("c0=%g; want %g", c[0], expect)
	}
}

func TestLassoShrinkage(t *testing.T) {
	// single unit atom: solution is the soft threshold of the projection
	dict := mat.NewDense(1, 3, []float64{0, 1, 0})
	for _, lambda := range []float64{0, 0.1, 0.5, 2} {
		l := NewLasso(dict, lambda)
		x := []float64{0.3, 1, 0.2}
		c, b := make([]float64, 1), make([]float64, 1)
		l.Solve(x, c, b)
		expect := math.Max(1-lambda, 0)
		if math.Abs(c[0]-expect) > 1e-9 {
			t.Errorf("lambda=%g c=%g; want %g", lambda, c[0], expect)
		}
	}
}

func TestLassoSolveAllParallel(t *testing.T) {
	n := 3*minChunk + 17
	x := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		a, b := float64(i%13)/13, float64(i%7)/7
		x.SetRow(i, []float64{a * 0.6, a*0.8 + b*0.6, b * 0.8})
	}
	l := NewLasso(testDict, 0)
	l.Threads = 4
	codes := l.SolveAll(x)
	for i := 0; i < n; i++ {
		a, b := float64(i%13)/13, float64(i%7)/7
		if math.Abs(codes.At(i, 0)-a) > 1e-6 || math.Abs(codes.At(i, 1)-b) > 1e-6 {
			t.Fatalf("row %d codes %g,%g; want %g,%g", i, codes.At(i, 0), codes.At(i, 1), a, b)
		}
	}
}

func TestDictionaryLearnerRecoversAtoms(t *testing.T) {
	// samples are pure atoms and non-negative mixtures thereof
	h := []float64{0.65, 0.70, 0.29}
	e := []float64{0.07, 0.99, 0.11}
	floats.Scale(1/floats.Norm(h, 2), h)
	floats.Scale(1/floats.Norm(e, 2), e)

	var rows []float64
	for i := 0; i < 300; i++ {
		a := 0.2 + float64(i%10)/10
		var ch, ce float64
		switch i % 3 {
		case 0:
			ch = a
		case 1:
			ce = a
		default:
			ch, ce = a, 0.5*a
		}
		for d := 0; d < 3; d++ {
			rows = append(rows, ch*h[d]+ce*e[d])
		}
	}
	x := mat.NewDense(len(rows)/3, 3, rows)

	dl := NewDictionaryLearner(2, 0.1)
	dict, err := dl.Fit(x)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if dl.Iterations < 1 || dl.Iterations > dl.MaxIterations {
		t.Errorf("iterations=%d", dl.Iterations)
	}
	for j := 0; j < 2; j++ {
		row := dict.RawRowView(j)
		for d, v := range row {
			if v < 0 {
				t.Errorf("atom %d component %d=%g; want >=0", j, d, v)
			}
		}
		if norm := floats.Norm(row, 2); norm > 1+1e-9 || norm == 0 {
			t.Errorf("atom %d norm=%g; want in (0,1]", j, norm)
		}
	}
	d0, d1 := unit(dict.RawRowView(0)), unit(dict.RawRowView(1))
	if cos := floats.Dot(d0, h); cos < 0.95 {
		t.Errorf("atom 0 %v vs %v cos=%g; want >=0.95", d0, h, cos)
	}
	if cos := floats.Dot(d1, e); cos < 0.95 {
		t.Errorf("atom 1 %v vs %v cos=%g; want >=0.95", d1, e, cos)
	}
}

func TestDictionaryLearnerErrors(t *testing.T) {
	if _, err := NewDictionaryLearner(0, 0.1).Fit(mat.NewDense(1, 3, []float64{1, 1, 1})); err == nil {
		t.Errorf("zero atoms: got nil error")
	}
}

func unit(v []float64) []float64 {
	res := append([]float64(nil), v...)
	floats.Scale(1/floats.Norm(res, 2), res)
	return res
}
