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

// Package exifmerge reconciles two EXIF records per tag-specific rules
// (Table E1 of the merge specification): rational sum for exposure time,
// min/max-combine for capture/modification timestamps, drop for sub-second
// time and GPS, and equal-else-drop for everything else that only remains
// meaningful when every source frame agreed on it.
package exifmerge

import (
	"github.com/hoxca-collective/nightrail/internal/exifrec"
)

// Merge reconciles a and b into a single record following Table E1.
func Merge(a, b exifrec.Record) (exifrec.Record, error) {
	var out exifrec.Record
	var err error

	out.ExposureTime, err = sumRational(a.ExposureTime, b.ExposureTime)
	if err != nil {
		return exifrec.Record{}, err
	}

	out.DateTimeOriginal = minString(a.DateTimeOriginal, b.DateTimeOriginal)
	out.CreateDate = minString(a.CreateDate, b.CreateDate)
	out.ModifyDate = maxString(a.ModifyDate, b.ModifyDate)

	// sub_sec_time* and gps always drop.
	out.SubSecTime = nil
	out.SubSecTimeOrig = nil
	out.SubSecTimeDigit = nil
	out.GPSLatitude = nil
	out.GPSLongitude = nil

	out.FNumber = equalOrDropRational(a.FNumber, b.FNumber)
	out.ApertureValue = equalOrDropRational(a.ApertureValue, b.ApertureValue)
	out.ISOSpeedRatings = equalOrDrop(a.ISOSpeedRatings, b.ISOSpeedRatings)
	out.ExposureProgram = equalOrDrop(a.ExposureProgram, b.ExposureProgram)
	out.FocalLength = equalOrDropRational(a.FocalLength, b.FocalLength)
	out.LensModel = equalOrDrop(a.LensModel, b.LensModel)
	out.LensMake = equalOrDrop(a.LensMake, b.LensMake)
	out.LensSerialNumber = equalOrDrop(a.LensSerialNumber, b.LensSerialNumber)
	out.LensSpecification = equalOrDropLensSpec(a.LensSpecification, b.LensSpecification)
	out.OwnerName = equalOrDrop(a.OwnerName, b.OwnerName)
	out.SerialNumber = equalOrDrop(a.SerialNumber, b.SerialNumber)
	out.Orientation = equalOrDrop(a.Orientation, b.Orientation)
	out.BrightnessValue = equalOrDropRational(a.BrightnessValue, b.BrightnessValue)
	out.MeteringMode = equalOrDrop(a.MeteringMode, b.MeteringMode)
	out.Flash = equalOrDrop(a.Flash, b.Flash)
	out.ColorSpace = equalOrDrop(a.ColorSpace, b.ColorSpace)
	out.WhiteBalance = equalOrDrop(a.WhiteBalance, b.WhiteBalance)
	out.SceneCaptureType = equalOrDrop(a.SceneCaptureType, b.SceneCaptureType)
	out.SubjectDistance = equalOrDropRational(a.SubjectDistance, b.SubjectDistance)
	out.SubjectDistRange = equalOrDrop(a.SubjectDistRange, b.SubjectDistRange)
	out.OffsetTime = equalOrDrop(a.OffsetTime, b.OffsetTime)
	out.OffsetTimeOrig = equalOrDrop(a.OffsetTimeOrig, b.OffsetTimeOrig)
	out.OffsetTimeDigit = equalOrDrop(a.OffsetTimeDigit, b.OffsetTimeDigit)
	out.ShutterSpeedValue = equalOrDropRational(a.ShutterSpeedValue, b.ShutterSpeedValue)
	out.MaxApertureValue = equalOrDropRational(a.MaxApertureValue, b.MaxApertureValue)
	out.ExposureBias = equalOrDropRational(a.ExposureBias, b.ExposureBias)
	out.LightSource = equalOrDrop(a.LightSource, b.LightSource)
	out.FlashEnergy = equalOrDropRational(a.FlashEnergy, b.FlashEnergy)
	out.ImageNumber = equalOrDrop(a.ImageNumber, b.ImageNumber)
	out.Copyright = equalOrDrop(a.Copyright, b.Copyright)
	out.Artist = equalOrDrop(a.Artist, b.Artist)
	out.SensitivityType = equalOrDrop(a.SensitivityType, b.SensitivityType)
	out.RecommendedExpIdx = equalOrDrop(a.RecommendedExpIdx, b.RecommendedExpIdx)
	out.ExposureMode = equalOrDrop(a.ExposureMode, b.ExposureMode)
	out.TimezoneOffset = equalOrDrop(a.TimezoneOffset, b.TimezoneOffset)

	return out, nil
}

func sumRational(a, b *exifrec.Rational) (*exifrec.Rational, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	sum, err := exifrec.AddReduced(*a, *b)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// equalOrDrop keeps the value only if both operands are present and equal.
func equalOrDrop[T comparable](a, b *T) *T {
	if a == nil || b == nil {
		return nil
	}
	if *a != *b {
		return nil
	}
	v := *a
	return &v
}

func equalOrDropRational(a, b *exifrec.Rational) *exifrec.Rational {
	if a == nil || b == nil {
		return nil
	}
	if !a.Equal(*b) {
		return nil
	}
	v := *a
	return &v
}

func equalOrDropLensSpec(a, b *exifrec.LensSpec) *exifrec.LensSpec {
	if a == nil || b == nil {
		return nil
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return nil
		}
	}
	v := *a
	return &v
}

// minString returns the lexicographically smaller of the two timestamps.
// Per the general Table E1 rule ("absent unless noted"), the result is
// absent unless both operands are present. EXIF date strings
// ("YYYY:MM:DD HH:MM:SS") sort correctly as plain strings.
func minString(a, b *string) *string {
	if a == nil || b == nil {
		return nil
	}
	if *a <= *b {
		v := *a
		return &v
	}
	v := *b
	return &v
}

func maxString(a, b *string) *string {
	if a == nil || b == nil {
		return nil
	}
	if *a >= *b {
		v := *a
		return &v
	}
	v := *b
	return &v
}
