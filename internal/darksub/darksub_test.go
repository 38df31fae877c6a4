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

package darksub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoxca-collective/nightrail/internal/rawimage"
)

// TestSubtractS3Scenario reproduces the specification's S3 end-to-end
// scenario: a uniform 2000 light-stack, and an averaged dark-stack of
// [750, 100, 100, ..., 100] (16 samples), giving avg_black = 140.
func TestSubtractS3Scenario(t *testing.T) {
	l := &rawimage.Image{Width: 4, Height: 4, Components: 1, NumImages: 1}
	l.Pixels = make([]uint16, 16)
	for i := range l.Pixels {
		l.Pixels[i] = 2000
	}

	d := &rawimage.Image{Width: 4, Height: 4, Components: 1, NumImages: 2}
	d.Pixels = make([]uint16, 16)
	for i := range d.Pixels {
		d.Pixels[i] = 100
	}
	d.Pixels[0] = 750

	out, err := Subtract(l, d)
	require.NoError(t, err)
	require.EqualValues(t, 1390, out.Pixels[0])
	for i := 1; i < 16; i++ {
		require.EqualValuesf(t, 2040, out.Pixels[i], "pixel %d", i)
	}
}

func TestSubtractDarkframeNeutrality(t *testing.T) {
	l := &rawimage.Image{Width: 2, Height: 2, Components: 1, NumImages: 1,
		Pixels: []uint16{10, 200, 3000, 65000}}
	d := &rawimage.Image{Width: 2, Height: 2, Components: 1, NumImages: 1,
		Pixels: []uint16{7, 7, 7, 7}}

	out, err := Subtract(l, d)
	require.NoError(t, err)
	require.Equal(t, l.Pixels, out.Pixels)
}

func TestSubtractDimensionMismatch(t *testing.T) {
	l := &rawimage.Image{Width: 2, Height: 2, Components: 1, Pixels: []uint16{1, 2, 3, 4}}
	d := &rawimage.Image{Width: 2, Height: 3, Components: 1, Pixels: []uint16{1, 2, 3, 4, 5, 6}}

	_, err := Subtract(l, d)
	require.Error(t, err)
}

func TestSubtractInheritsLeftMetadata(t *testing.T) {
	l := &rawimage.Image{
		Width: 1, Height: 1, Components: 1, Pixels: []uint16{500},
		Camera: rawimage.CameraDescriptor{Make: "Nikon"}, NumImages: 3,
	}
	d := &rawimage.Image{Width: 1, Height: 1, Components: 1, Pixels: []uint16{100}}

	out, err := Subtract(l, d)
	require.NoError(t, err)
	require.Equal(t, "Nikon", out.Camera.Make)
	require.EqualValues(t, 3, out.NumImages)
}
