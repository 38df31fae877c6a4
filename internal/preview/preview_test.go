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

package preview

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoxca-collective/nightrail/internal/rawimage"
)

func bayerImage() *rawimage.Image {
	pattern := []byte{0, 1, 1, 2} // RGGB
	pixels := make([]uint16, 16)
	for i := range pixels {
		pixels[i] = 30000
	}
	return &rawimage.Image{
		Width: 4, Height: 4, Components: 1,
		Pixels: pixels,
		Camera: rawimage.CameraDescriptor{
			CFA: rawimage.CFAPattern{W: 2, H: 2, Pattern: pattern},
		},
		Calib: rawimage.Calibration{WhiteLevel: []uint16{65535}},
	}
}

func TestRenderProducesFullSizeRaster(t *testing.T) {
	rgb := Render(bayerImage())
	require.Equal(t, 4, rgb.Width)
	require.Equal(t, 4, rgb.Height)
	require.Len(t, rgb.R, 16)
}

func TestRenderToJPEGDecodes(t *testing.T) {
	rgb := Render(bayerImage())
	buf, err := ToJPEG(rgb, 90)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	img, err := jpeg.Decode(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, 4, img.Bounds().Dx())
	require.Equal(t, 4, img.Bounds().Dy())
}

func TestCFAChannelWithoutMetadataDefaultsToGreen(t *testing.T) {
	ch := cfaChannel(rawimage.CFAPattern{}, 1, 1)
	require.EqualValues(t, 1, ch)
}
