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

// Package colorxform is the Preview Renderer's camera-to-sRGB color
// pipeline: a demosaiced camera-RGB sample is carried through the camera's
// XYZ-to-camera matrix (inverted via gonum/mat) into XYZ, then into linear
// sRGB, then gamma-encoded by GammaEncode's own sRGB transfer curve. The
// matrix math reuses gonum, a dependency the teacher already carries for
// its own RGB postprocess path (internal/rgb.go, internal/postprocess.go).
package colorxform

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/hoxca-collective/nightrail/internal/exifrec"
)

// srgbFromXYZ is the standard linear-sRGB-from-CIE-XYZ (D65) matrix.
var srgbFromXYZ = mat.NewDense(3, 3, []float64{
	3.2406, -1.5372, -0.4986,
	-0.9689, 1.8758, 0.0415,
	0.0557, -0.2040, 1.0570,
})

// CameraToSRGB builds the combined camera-RGB -> linear-sRGB transform from
// a DNG ColorMatrix (XYZ-to-camera, illuminant-keyed rationals per §4.7),
// by inverting it to camera-to-XYZ and composing with the fixed
// XYZ-to-sRGB matrix.
func CameraToSRGB(colorMatrix [9]exifrec.Rational) *mat.Dense {
	vals := make([]float64, 9)
	for i, r := range colorMatrix {
		vals[i] = r.Float()
	}
	xyzFromCamera := mat.NewDense(3, 3, vals)

	var cameraFromXYZ mat.Dense
	if err := cameraFromXYZ.Inverse(xyzFromCamera); err != nil {
		// A non-invertible calibration matrix means the DNG's color matrix
		// is degenerate; fall back to identity rather than propagating NaNs
		// into every preview pixel.
		return identity3()
	}

	var combined mat.Dense
	combined.Mul(srgbFromXYZ, &cameraFromXYZ)
	return &combined
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// Apply transforms one camera-RGB triple (each channel normalized to
// [0,1]) through m into linear sRGB, still in [0,1] after clamping.
func Apply(m *mat.Dense, r, g, b float64) (float64, float64, float64) {
	in := mat.NewVecDense(3, []float64{r, g, b})
	var out mat.VecDense
	out.MulVec(m, in)
	return clamp01(out.AtVec(0)), clamp01(out.AtVec(1)), clamp01(out.AtVec(2))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GammaEncode applies the sRGB OETF (linear -> display-referred) to one
// normalized channel value. go-colorful's Color.RGB255 applies the same
// curve but quantizes to 8 bits, too coarse for a 16-bit preview, so the
// per-channel transfer function is applied directly here; go-colorful
// itself is wired into internal/preview's per-pixel tone adjustment.
func GammaEncode(linear float64) float64 {
	if linear <= 0.0031308 {
		return 12.92 * linear
	}
	return 1.055*math.Pow(linear, 1/2.4) - 0.055
}
