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

// Package stain estimates stain matrices of H&E images and decomposes
// images into per-stain concentrations.
//
// A stain matrix has one row per stain and one column per RGB channel, holding
// the unit-norm optical density of that stain. Row 0 is Hematoxylin, row 1 is Eosin.
package stain

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported stain extraction method")
	ErrNotFitted         = errors.New("not fitted")
)

// Stain extraction method
type Method int

const (
	MethodFixed      Method = iota // Ruifrok-Johnston literal matrix
	MethodEigen                    // Macenko angular eigenvector percentiles
	MethodDictionary               // Vahadane sparse non-negative dictionary learning
)

var methodNames = map[string]Method{
	"fixed":      MethodFixed,
	"rj":         MethodFixed,
	"ruifrok":    MethodFixed,
	"eigen":      MethodEigen,
	"macenko":    MethodEigen,
	"dictionary": MethodDictionary,
	"vahadane":   MethodDictionary,
}

// Parses a method name or one of its aliases, case-insensitive
func ParseMethod(name string) (Method, error) {
	m, ok := methodNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return MethodFixed, fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
	}
	return m, nil
}

func (m Method) String() string {
	switch m {
	case MethodFixed:
		return "fixed"
	case MethodEigen:
		return "eigen"
	case MethodDictionary:
		return "dictionary"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

func (m Method) MarshalText() ([]byte, error) {
	switch m {
	case MethodFixed, MethodEigen, MethodDictionary:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, int(m))
}

func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Returns a copy of m with each row scaled to unit euclidean norm.
// All-zero rows stay zero. Idempotent
func NormalizeRows(m mat.Matrix) *mat.Dense {
	res := mat.DenseCopyOf(m)
	rows, _ := res.Dims()
	for i := 0; i < rows; i++ {
		row := res.RawRowView(i)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
	}
	return res
}

// Returns 1 for positive, -1 for negative values and 0 for zero
func Sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
