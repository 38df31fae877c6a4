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

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoxca-collective/nightrail/internal/exifrec"
	"github.com/hoxca-collective/nightrail/internal/scheduler"
)

func TestParseModeStrictAcceptsKnownValues(t *testing.T) {
	cases := map[string]scheduler.Mode{
		"normal":  scheduler.Normal,
		"falling": scheduler.Falling,
		"rising":  scheduler.Rising,
	}
	for s, want := range cases {
		got, err := parseModeStrict(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseModeStrictRejectsUnknownAndMixedCase(t *testing.T) {
	for _, s := range []string{"Normal", "FALLING", "sideways", ""} {
		_, err := parseModeStrict(s)
		require.Error(t, err, "expected %q to be rejected", s)
	}
}

func TestFormatApertureNilIsEmpty(t *testing.T) {
	require.Equal(t, "", formatAperture(nil))
}

func TestFormatApertureFormatsFNumber(t *testing.T) {
	f := exifrec.Rational{Num: 28, Den: 10}
	require.Equal(t, "f/2.8", formatAperture(&f))
}

func TestFormatExposureBreaksDownSeconds(t *testing.T) {
	e := exifrec.Rational{Num: 3725, Den: 1} // 1h 2m 5s
	require.Equal(t, "1h2m5s", formatExposure(&e))
}

func TestFormatExposureNilIsEmpty(t *testing.T) {
	require.Equal(t, "", formatExposure(nil))
}

func TestFormatISOSpeed(t *testing.T) {
	iso := uint32(800)
	require.Equal(t, "ISO800", formatISOSpeed(&iso))
	require.Equal(t, "", formatISOSpeed(nil))
}

func TestParsePortExtractsNumber(t *testing.T) {
	require.Equal(t, 8080, parsePort(":8080"))
}
