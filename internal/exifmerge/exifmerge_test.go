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

package exifmerge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoxca-collective/nightrail/internal/exifrec"
)

func ptr[T any](v T) *T { return &v }

func TestMergeSumsExposureTime(t *testing.T) {
	a := exifrec.Record{ExposureTime: &exifrec.Rational{Num: 1, Den: 2}}
	b := exifrec.Record{ExposureTime: &exifrec.Rational{Num: 1, Den: 4}}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.NotNil(t, out.ExposureTime)
	require.InDelta(t, 0.75, out.ExposureTime.Float(), 1e-9)
}

func TestMergeExposureTimeAbsentIfEitherAbsent(t *testing.T) {
	a := exifrec.Record{ExposureTime: &exifrec.Rational{Num: 1, Den: 2}}
	b := exifrec.Record{}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Nil(t, out.ExposureTime)
}

func TestMergeDateTimeOriginalTakesEarlier(t *testing.T) {
	a := exifrec.Record{DateTimeOriginal: ptr("2024:01:01 10:00:00")}
	b := exifrec.Record{DateTimeOriginal: ptr("2024:01:01 10:05:00")}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, "2024:01:01 10:00:00", *out.DateTimeOriginal)
}

func TestMergeModifyDateTakesLater(t *testing.T) {
	a := exifrec.Record{ModifyDate: ptr("2024:01:01 10:00:00")}
	b := exifrec.Record{ModifyDate: ptr("2024:01:01 10:05:00")}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, "2024:01:01 10:05:00", *out.ModifyDate)
}

func TestMergeAlwaysDropsSubSecondAndGPS(t *testing.T) {
	a := exifrec.Record{
		SubSecTime:      ptr("05"),
		SubSecTimeOrig:  ptr("05"),
		SubSecTimeDigit: ptr("05"),
		GPSLatitude:     ptr("51.5074"),
		GPSLongitude:    ptr("-0.1278"),
	}
	b := a

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Nil(t, out.SubSecTime)
	require.Nil(t, out.SubSecTimeOrig)
	require.Nil(t, out.SubSecTimeDigit)
	require.Nil(t, out.GPSLatitude)
	require.Nil(t, out.GPSLongitude)
}

func TestMergeKeepsEqualScalarFields(t *testing.T) {
	a := exifrec.Record{ISOSpeedRatings: ptr(uint32(800)), LensModel: ptr("50mm f/1.4")}
	b := exifrec.Record{ISOSpeedRatings: ptr(uint32(800)), LensModel: ptr("50mm f/1.4")}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, uint32(800), *out.ISOSpeedRatings)
	require.Equal(t, "50mm f/1.4", *out.LensModel)
}

func TestMergeDropsDisagreeingScalarFields(t *testing.T) {
	a := exifrec.Record{ISOSpeedRatings: ptr(uint32(800))}
	b := exifrec.Record{ISOSpeedRatings: ptr(uint32(1600))}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Nil(t, out.ISOSpeedRatings)
}

func TestMergeDropsScalarFieldAbsentFromEitherSide(t *testing.T) {
	a := exifrec.Record{LensMake: ptr("Canon")}
	b := exifrec.Record{}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Nil(t, out.LensMake)
}

func TestMergeKeepsEqualRationalFields(t *testing.T) {
	a := exifrec.Record{FNumber: &exifrec.Rational{Num: 28, Den: 10}}
	b := exifrec.Record{FNumber: &exifrec.Rational{Num: 28, Den: 10}}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.NotNil(t, out.FNumber)
	require.InDelta(t, 2.8, out.FNumber.Float(), 1e-9)
}

func TestMergeDropsDisagreeingRationalFields(t *testing.T) {
	a := exifrec.Record{FocalLength: &exifrec.Rational{Num: 50, Den: 1}}
	b := exifrec.Record{FocalLength: &exifrec.Rational{Num: 85, Den: 1}}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Nil(t, out.FocalLength)
}

func TestMergeKeepsEqualLensSpecification(t *testing.T) {
	spec := exifrec.LensSpec{
		{Num: 50, Den: 1}, {Num: 50, Den: 1}, {Num: 14, Den: 10}, {Num: 14, Den: 10},
	}
	a := exifrec.Record{LensSpecification: &spec}
	b := exifrec.Record{LensSpecification: &spec}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.NotNil(t, out.LensSpecification)
}

func TestMergeDropsDisagreeingLensSpecification(t *testing.T) {
	a := exifrec.Record{LensSpecification: &exifrec.LensSpec{
		{Num: 50, Den: 1}, {Num: 50, Den: 1}, {Num: 14, Den: 10}, {Num: 14, Den: 10},
	}}
	b := exifrec.Record{LensSpecification: &exifrec.LensSpec{
		{Num: 85, Den: 1}, {Num: 85, Den: 1}, {Num: 18, Den: 10}, {Num: 18, Den: 10},
	}}

	out, err := Merge(a, b)
	require.NoError(t, err)
	require.Nil(t, out.LensSpecification)
}
