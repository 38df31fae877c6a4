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

package colorxform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoxca-collective/nightrail/internal/exifrec"
)

func identityColorMatrix() [9]exifrec.Rational {
	var m [9]exifrec.Rational
	for i := range m {
		if i%4 == 0 {
			m[i] = exifrec.Rational{Num: 10000, Den: 10000}
		} else {
			m[i] = exifrec.Rational{Num: 0, Den: 10000}
		}
	}
	return m
}

func TestCameraToSRGBHandlesDegenerateMatrix(t *testing.T) {
	var zero [9]exifrec.Rational
	m := CameraToSRGB(zero)
	require.NotNil(t, m)
	r, g, b := m.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, g)
	_ = b
}

func TestApplyClampsToUnitRange(t *testing.T) {
	m := CameraToSRGB(identityColorMatrix())
	r, g, b := Apply(m, 2.0, -1.0, 0.5)
	require.GreaterOrEqual(t, r, 0.0)
	require.LessOrEqual(t, r, 1.0)
	require.Equal(t, 0.0, g)
}

func TestGammaEncodeMonotonic(t *testing.T) {
	require.Less(t, GammaEncode(0.1), GammaEncode(0.5))
	require.Less(t, GammaEncode(0.5), GammaEncode(0.9))
	require.Equal(t, 0.0, GammaEncode(0))
}
