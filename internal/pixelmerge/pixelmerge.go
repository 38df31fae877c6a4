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

// Package pixelmerge is the pure numerical kernel combining two equally
// sized pixel buffers under a chosen mode. It knows nothing of frames,
// images or metadata; it only ever sees flat u16 sample slices and weights,
// the same separation of concerns nightlight draws between its top-level
// stacking commands and the Subtract/Divide primitives in preprocess.go.
package pixelmerge

// Mode selects the numerical combination rule.
type Mode int

const (
	// Maximize takes the pixelwise maximum of the two buffers. Weights are
	// accepted for a uniform call signature but ignored: Maximize is
	// commutative-associative regardless of how num_images is carried.
	Maximize Mode = iota
	// WeightedAverage computes a weighted mean, rounding toward zero after
	// the division. Used to average the dark-stack, weighted by each
	// operand's num_images.
	WeightedAverage
)

// Merge combines a and b, which must be the same length, into a newly
// allocated buffer of the same length. wa/wb are the weights associated with
// a and b respectively; they are only consulted under WeightedAverage.
func Merge(a, b []uint16, wa, wb float64, mode Mode) []uint16 {
	out := make([]uint16, len(a))
	MergeInto(out, a, b, wa, wb, mode)
	return out
}

// MergeInto writes the merge of a and b into dst, which may alias a (but not
// b) to avoid an extra allocation when the caller is about to discard a.
func MergeInto(dst, a, b []uint16, wa, wb float64, mode Mode) {
	switch mode {
	case Maximize:
		for i := range a {
			if a[i] >= b[i] {
				dst[i] = a[i]
			} else {
				dst[i] = b[i]
			}
		}
	case WeightedAverage:
		wsum := wa + wb
		for i := range a {
			v := (float64(a[i])*wa + float64(b[i])*wb) / wsum
			dst[i] = saturateU16(v)
		}
	}
}

func saturateU16(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 65535 {
		return 65535
	}
	return uint16(v)
}
