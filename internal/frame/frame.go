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

// Package frame is the Kind-tagged union the merge scheduler folds: Identity
// (the reduction unit), Light (science frames, merged by Maximize) and Dark
// (calibration frames, merged by WeightedAverage). A Frame is the unit the
// tree-reduction actually carries; rawimage.Image is its Light/Dark payload.
package frame

import (
	"fmt"

	"github.com/hoxca-collective/nightrail/internal/pixelmerge"
	"github.com/hoxca-collective/nightrail/internal/rawimage"
)

// Kind tags which variant a Frame currently holds.
type Kind int

const (
	Identity Kind = iota
	Light
	Dark
)

func (k Kind) String() string {
	switch k {
	case Identity:
		return "identity"
	case Light:
		return "light"
	case Dark:
		return "dark"
	default:
		return "unknown"
	}
}

// Frame is a Kind-tagged rawimage.Image. The zero value is the Identity
// frame: the reduction's absorbing-for-neither, identity-for-both element.
type Frame struct {
	Kind  Kind
	Image *rawimage.Image
}

// NewIdentity returns the reduction identity: Merge(Identity, x) == x for
// any x, and Merge(Identity, Identity) == Identity.
func NewIdentity() Frame {
	return Frame{Kind: Identity}
}

// FromLight wraps img as a Light frame.
func FromLight(img *rawimage.Image) Frame {
	return Frame{Kind: Light, Image: img}
}

// FromDark wraps img as a Dark frame.
func FromDark(img *rawimage.Image) Frame {
	return Frame{Kind: Dark, Image: img}
}

// KindMismatchErr is returned when Merge is asked to combine two concretely
// typed frames of different kinds. The scheduler's partitioned reduction is
// expected to never produce this by construction (lights and darks are
// folded in separate accumulators), so seeing it signals a scheduler bug
// rather than a data problem.
type KindMismatchErr struct {
	Left, Right Kind
}

func (e *KindMismatchErr) Error() string {
	return fmt.Sprintf("frame: cannot merge %s with %s", e.Left, e.Right)
}

// Merge combines a and b. An Identity operand is absorbed, passing the other
// side through unchanged. Two frames of the same concrete kind are merged
// pixelwise under the mode appropriate to that kind (Maximize for Light,
// WeightedAverage for Dark). Two frames of different concrete kinds are a
// KindMismatchErr.
func Merge(a, b Frame) (Frame, error) {
	if a.Kind == Identity {
		return b, nil
	}
	if b.Kind == Identity {
		return a, nil
	}
	if a.Kind != b.Kind {
		return Frame{}, &KindMismatchErr{Left: a.Kind, Right: b.Kind}
	}

	mode := pixelmerge.Maximize
	if a.Kind == Dark {
		mode = pixelmerge.WeightedAverage
	}

	merged, err := rawimage.Merge(a.Image, b.Image, mode)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: a.Kind, Image: merged}, nil
}
