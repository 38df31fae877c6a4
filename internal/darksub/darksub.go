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

// Package darksub is the post-reduction Darkframe Subtractor: it subtracts
// an averaged dark-stack's spatial structure from a maximized light-stack
// while re-adding the dark-stack's own mean, so overall brightness is
// preserved and only the thermal/hot-pixel pattern is removed.
package darksub

import (
	"github.com/hoxca-collective/nightrail/internal/merrors"
	"github.com/hoxca-collective/nightrail/internal/rawimage"
)

// Subtract combines a light-stack L (pixelwise max of lights) and a
// dark-stack D (weighted average of darks) into the final Image. L and D
// must share dimensions. The result inherits L's camera descriptor,
// calibration and EXIF record (including the summed exposure time from the
// light reduction).
func Subtract(l, d *rawimage.Image) (*rawimage.Image, error) {
	if !rawimage.SameDims(l, d) {
		return nil, &merrors.DimensionMismatchErr{
			Left:  merrors.Dims{W: l.Width, H: l.Height, C: l.Components},
			Right: merrors.Dims{W: d.Width, H: d.Height, C: d.Components},
		}
	}

	avgBlack := averageBlack(d.Pixels)

	out := make([]uint16, len(l.Pixels))
	for k, lv := range l.Pixels {
		delta := int32(lv) - (int32(d.Pixels[k]) - avgBlack)
		out[k] = clampU16(delta)
	}

	return &rawimage.Image{
		Width:      l.Width,
		Height:     l.Height,
		Components: l.Components,
		Pixels:     out,
		Camera:     l.Camera,
		Calib:      l.Calib,
		Exif:       l.Exif,
		NumImages:  l.NumImages,
	}, nil
}

// averageBlack computes floor(sum(D) / len(D)) over a u64 accumulator to
// avoid overflow on large buffers, returned as an int32 for use in the
// per-sample signed subtraction.
func averageBlack(d []uint16) int32 {
	if len(d) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range d {
		sum += uint64(v)
	}
	return int32(sum / uint64(len(d)))
}

func clampU16(v int32) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 65535 {
		return 65535
	}
	return uint16(v)
}
