// Copyright (C) 2020 Markus L. Noga
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

package qsort

import (
	"math"
)

// Select kth lowest element from an array of float64, with k starting at 1.
// Partially reorders the array: afterwards a[k-1] holds the result,
// all elements before it are lower or equal, all after it higher or equal.
// Array must not contain IEEE NaN
func QSelectFloat64(a []float64, k int) float64 {
	left, right := 0, len(a)-1
	for left < right {
		// partition around the middle element
		mid := (left + right) >> 1
		pivot := a[mid]
		l, r := left-1, right+1
		for {
			for {
				l++
				if a[l] >= pivot {
					break
				}
			}
			for {
				r--
				if a[r] <= pivot {
					break
				}
			}
			if l >= r {
				break
			} // index in r
			a[l], a[r] = a[r], a[l]
		}
		index := r

		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k = k - offset
		}
	}
	return a[left]
}

// Select median of an array of float64. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectMedianFloat64(a []float64) float64 {
	n := len(a)
	if n&1 != 0 {
		return QSelectFloat64(a, n/2+1)
	}
	lo := QSelectFloat64(a, n/2)
	hi := minFloat64(a[n/2:])
	return 0.5 * (lo + hi)
}

// Returns the p-th percentile, 0<=p<=100, interpolating linearly between the
// two closest ranks as numpy does by default. Partially reorders the array.
// Returns NaN for an empty array. Array must not contain IEEE NaN
func Percentile(a []float64, p float64) float64 {
	n := len(a)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return minFloat64(a)
	}
	if p >= 100 {
		return maxFloat64(a)
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	loVal := QSelectFloat64(a, lo+1)
	if frac == 0 || lo+1 >= n {
		return loVal
	}
	hiVal := minFloat64(a[lo+1:]) // elements right of the selected one are all >= loVal
	return loVal + (hiVal-loVal)*frac
}

// Like Percentile, but leaves the input untouched
func PercentileCopy(a []float64, p float64) float64 {
	return Percentile(append([]float64(nil), a...), p)
}

func minFloat64(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxFloat64(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
