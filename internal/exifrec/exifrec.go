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

// Package exifrec defines the open-keyed EXIF record and its rational type.
// Every field is optional, matching the way trawls's fileinfo.rs reads
// individual exif::Tag values and tolerates any of them being absent.
package exifrec

import (
	"fmt"

	"github.com/hoxca-collective/nightrail/internal/merrors"
)

// Rational is a 32-bit unsigned rational, the wire shape EXIF uses for
// exposure time, aperture, focal length and similar fields.
type Rational struct {
	Num uint32
	Den uint32
}

func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Equal reports whether two rationals denote the same value, independent of
// representation (1/2 == 2/4).
func (r Rational) Equal(o Rational) bool {
	return uint64(r.Num)*uint64(o.Den) == uint64(o.Num)*uint64(r.Den)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

// Reduce returns r in lowest terms.
func (r Rational) Reduce() Rational {
	if r.Num == 0 {
		return Rational{0, 1}
	}
	g := gcd(uint64(r.Num), uint64(r.Den))
	return Rational{uint32(uint64(r.Num) / g), uint32(uint64(r.Den) / g)}
}

// AddReduced sums two rationals and reduces the result, failing with
// RationalOverflowErr rather than silently truncating if the reduced
// numerator or denominator no longer fits a u32.
func AddReduced(a, b Rational) (Rational, error) {
	num := uint64(a.Num)*uint64(b.Den) + uint64(b.Num)*uint64(a.Den)
	den := uint64(a.Den) * uint64(b.Den)
	g := gcd(num, den)
	if g == 0 {
		g = 1
	}
	num, den = num/g, den/g
	if num > 0xFFFFFFFF || den > 0xFFFFFFFF {
		return Rational{}, &merrors.RationalOverflowErr{Num: num, Den: den}
	}
	return Rational{uint32(num), uint32(den)}, nil
}

// LensSpec is the four-rational (min focal, max focal, min aperture, max
// aperture) EXIF LensSpecification field.
type LensSpec [4]Rational

// Record is the open-keyed set of EXIF fields carried by an Image. Every
// field is a pointer so absence is representable without a sentinel value.
type Record struct {
	ExposureTime      *Rational
	FNumber           *Rational
	ApertureValue     *Rational
	ISOSpeedRatings   *uint32
	DateTimeOriginal  *string
	CreateDate        *string
	ModifyDate        *string
	SubSecTime        *string
	SubSecTimeOrig    *string
	SubSecTimeDigit   *string
	GPSLatitude       *string
	GPSLongitude      *string
	ExposureProgram   *uint32
	FocalLength       *Rational
	LensModel         *string
	LensMake          *string
	LensSerialNumber  *string
	LensSpecification *LensSpec
	OwnerName         *string
	SerialNumber      *string
	Orientation       *uint32
	BrightnessValue   *Rational
	MeteringMode      *uint32
	Flash             *uint32
	ColorSpace        *uint32
	WhiteBalance      *uint32
	SceneCaptureType  *uint32
	SubjectDistance   *Rational
	SubjectDistRange  *uint32
	OffsetTime        *string
	OffsetTimeOrig    *string
	OffsetTimeDigit   *string
	ShutterSpeedValue *Rational
	MaxApertureValue  *Rational
	ExposureBias      *Rational
	LightSource       *uint32
	FlashEnergy       *Rational
	ImageNumber       *uint32
	Copyright         *string
	Artist            *string
	SensitivityType   *uint32
	RecommendedExpIdx *uint32
	ExposureMode      *uint32
	TimezoneOffset    *int32
}

func Str(s string) *string    { return &s }
func U32(v uint32) *uint32    { return &v }
func I32(v int32) *int32      { return &v }
func Rat(n, d uint32) *Rational {
	r := Rational{n, d}
	return &r
}
