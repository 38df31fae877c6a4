// Copyright (C) 2024 The nightrail authors
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

package pixelmerge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaximizeCommutative(t *testing.T) {
	a := []uint16{0, 15, 8, 1000}
	b := []uint16{15, 0, 8, 999}

	ab := Merge(a, b, 1, 1, Maximize)
	ba := Merge(b, a, 1, 1, Maximize)
	require.Equal(t, ab, ba)
	require.Equal(t, []uint16{15, 15, 8, 1000}, ab)
}

func TestMaximizeAssociative(t *testing.T) {
	a := []uint16{1, 9, 3}
	b := []uint16{4, 2, 8}
	c := []uint16{0, 20, 1}

	left := Merge(Merge(a, b, 1, 1, Maximize), c, 1, 1, Maximize)
	right := Merge(a, Merge(b, c, 1, 1, Maximize), 1, 1, Maximize)
	require.Equal(t, left, right)
}

func TestWeightedAverageEqualWeights(t *testing.T) {
	d1 := make([]uint16, 16)
	d2 := make([]uint16, 16)
	for i := range d1 {
		d1[i] = 100
		d2[i] = 100
	}
	d1[0] = 1000
	d2[15] = 500

	avg := Merge(d1, d2, 1, 1, WeightedAverage)
	require.EqualValues(t, 550, avg[0])
	require.EqualValues(t, 100, avg[1])
	require.EqualValues(t, 300, avg[15])
}

func TestMaximizeIgnoresWeight(t *testing.T) {
	a := []uint16{10, 20}
	b := []uint16{30, 5}
	out1 := Merge(a, b, 1, 1, Maximize)
	out2 := Merge(a, b, 50, 1, Maximize)
	require.Equal(t, out1, out2)
}
