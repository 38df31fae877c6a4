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

package rawimage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoxca-collective/nightrail/internal/exifrec"
	"github.com/hoxca-collective/nightrail/internal/pixelmerge"
)

func TestMergeDimensionMismatch(t *testing.T) {
	a := &Image{Width: 2, Height: 2, Components: 1, Pixels: []uint16{1, 2, 3, 4}, NumImages: 1}
	b := &Image{Width: 3, Height: 2, Components: 1, Pixels: []uint16{1, 2, 3, 4, 5, 6}, NumImages: 1}

	_, err := Merge(a, b, pixelmerge.Maximize)
	require.Error(t, err)
}

func TestMergeCopiesCameraAndCalibFromLeft(t *testing.T) {
	cam := CameraDescriptor{Make: "Canon", Model: "EOS R5"}
	calib := Calibration{WhiteLevel: []uint16{16383}}

	a := &Image{
		Width: 2, Height: 1, Components: 1,
		Pixels:    []uint16{10, 20},
		Camera:    cam,
		Calib:     calib,
		NumImages: 1,
	}
	b := &Image{
		Width: 2, Height: 1, Components: 1,
		Pixels:    []uint16{30, 5},
		Camera:    CameraDescriptor{Make: "ignored"},
		NumImages: 1,
	}

	out, err := Merge(a, b, pixelmerge.Maximize)
	require.NoError(t, err)
	require.Equal(t, cam, out.Camera)
	require.Equal(t, calib, out.Calib)
	require.Equal(t, []uint16{30, 20}, out.Pixels)
	require.EqualValues(t, 2, out.NumImages)
}

func TestMergeWeightedAverageWeightsByNumImages(t *testing.T) {
	a := &Image{
		Width: 1, Height: 1, Components: 1,
		Pixels:    []uint16{100},
		NumImages: 3,
	}
	b := &Image{
		Width: 1, Height: 1, Components: 1,
		Pixels:    []uint16{300},
		NumImages: 1,
	}

	out, err := Merge(a, b, pixelmerge.WeightedAverage)
	require.NoError(t, err)
	require.EqualValues(t, 150, out.Pixels[0])
	require.EqualValues(t, 4, out.NumImages)
}

func TestMergeExifErrorPropagates(t *testing.T) {
	a := &Image{
		Width: 1, Height: 1, Components: 1,
		Pixels:    []uint16{1},
		Exif:      exifrec.Record{ExposureTime: &exifrec.Rational{Num: 0xFFFFFFFF, Den: 1}},
		NumImages: 1,
	}
	b := &Image{
		Width: 1, Height: 1, Components: 1,
		Pixels:    []uint16{1},
		Exif:      exifrec.Record{ExposureTime: &exifrec.Rational{Num: 0xFFFFFFFF, Den: 1}},
		NumImages: 1,
	}

	_, err := Merge(a, b, pixelmerge.Maximize)
	require.Error(t, err)
}
