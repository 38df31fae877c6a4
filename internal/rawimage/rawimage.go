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

// Package rawimage is the in-memory RAW buffer plus its camera descriptor,
// sensor calibration and EXIF record -- the logically immutable Image of
// the merge specification's data model.
package rawimage

import (
	"github.com/hoxca-collective/nightrail/internal/exifmerge"
	"github.com/hoxca-collective/nightrail/internal/exifrec"
	"github.com/hoxca-collective/nightrail/internal/merrors"
	"github.com/hoxca-collective/nightrail/internal/pixelmerge"
)

// Illuminant identifies one of the reference light sources a color matrix is keyed by.
type Illuminant uint16

const (
	IlluminantUnknown Illuminant = 0
	IlluminantA       Illuminant = 17
	IlluminantD50     Illuminant = 23
	IlluminantD65     Illuminant = 21
)

// Rect is an integer rectangle in sensor pixel coordinates.
type Rect struct {
	X, Y, W, H int32
}

// CFAPattern describes the repeating color filter array mosaic.
type CFAPattern struct {
	W, H    int32
	Pattern []byte // row-major CFA color indices, length W*H
}

// Shift returns the CFA pattern as seen from the given active-area origin.
func (c CFAPattern) Shift(x, y int32) CFAPattern {
	if c.W == 0 || c.H == 0 {
		return c
	}
	shifted := make([]byte, len(c.Pattern))
	for row := int32(0); row < c.H; row++ {
		for col := int32(0); col < c.W; col++ {
			srcRow := ((row+y)%c.H + c.H) % c.H
			srcCol := ((col+x)%c.W + c.W) % c.W
			shifted[row*c.W+col] = c.Pattern[srcRow*c.W+srcCol]
		}
	}
	return CFAPattern{W: c.W, H: c.H, Pattern: shifted}
}

// ColorMatrix pairs an illuminant with its 3x3 XYZ-to-camera matrix.
type ColorMatrix struct {
	Illuminant Illuminant
	Matrix     [9]exifrec.Rational
}

// BlackLevelGrid is the per-cell black level, shiftable by the active area
// origin the way a CFA pattern is.
type BlackLevelGrid struct {
	W, H   int32
	Levels []exifrec.Rational // length W*H*C
}

func (g BlackLevelGrid) Shift(x, y int32) BlackLevelGrid {
	if g.W == 0 || g.H == 0 {
		return g
	}
	n := len(g.Levels) / int(g.W*g.H)
	shifted := make([]exifrec.Rational, len(g.Levels))
	for row := int32(0); row < g.H; row++ {
		for col := int32(0); col < g.W; col++ {
			srcRow := ((row+y)%g.H + g.H) % g.H
			srcCol := ((col+x)%g.W + g.W) % g.W
			for c := 0; c < n; c++ {
				shifted[int(row*g.W+col)*n+c] = g.Levels[int(srcRow*g.W+srcCol)*n+c]
			}
		}
	}
	return BlackLevelGrid{W: g.W, H: g.H, Levels: shifted}
}

// CameraDescriptor carries the camera identity and sensor geometry a DNG
// needs, copied forward unchanged from the left operand on every merge.
type CameraDescriptor struct {
	Make, CleanMake   string
	Model, CleanModel string
	CFA               CFAPattern
	ActiveArea        Rect
	CropArea          Rect
	Orientation       uint16
	DefaultScale      [2]exifrec.Rational
	BestQualityScale  exifrec.Rational
}

// Calibration is the sensor calibration data that, like the camera
// descriptor, is assumed identical across all source frames and copied
// forward from the left operand without verification.
type Calibration struct {
	WhiteLevel    []uint16 // one entry per component
	BlackLevel    BlackLevelGrid
	MaskedAreas   []Rect
	WBCoefficients [3]exifrec.Rational
	ColorMatrices []ColorMatrix
	// DNGTags holds passthrough tags to re-emit verbatim in the raw SubIFD,
	// keyed by raw TIFF/DNG tag id.
	DNGTags map[uint16][]byte
}

// Image is the logically immutable bundle described by the merge
// specification's data model: decoded RAW samples, camera descriptor,
// sensor calibration, EXIF record and a fold-count.
type Image struct {
	Width, Height, Components int32
	Pixels                    []uint16 // length Width*Height*Components

	Camera CameraDescriptor
	Calib  Calibration
	Exif   exifrec.Record

	// NumImages counts how many source exposures have been folded into this
	// Image. Always >=1 for real frames; 0 only for the reduction identity.
	NumImages int32
}

// dims returns the W/H/C triple used for mismatch comparisons.
func (img *Image) dims() merrors.Dims {
	return merrors.Dims{W: img.Width, H: img.Height, C: img.Components}
}

// SameDims reports whether two images share width, height and components.
func SameDims(a, b *Image) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Components == b.Components
}

// Merge combines two images of identical dimensions under the given pixel
// mode, weighted by each operand's NumImages when mode is WeightedAverage
// (weights are ignored by Maximize -- see pixelmerge.Mode). The merged
// image inherits the left operand's camera descriptor and calibration
// verbatim; all source frames are assumed to share a camera and calibration,
// and no verification is performed.
func Merge(a, b *Image, mode pixelmerge.Mode) (*Image, error) {
	if !SameDims(a, b) {
		return nil, &merrors.DimensionMismatchErr{Left: a.dims(), Right: b.dims()}
	}

	wa, wb := 1.0, 1.0
	if mode == pixelmerge.WeightedAverage {
		wa, wb = float64(a.NumImages), float64(b.NumImages)
	}

	pixels := pixelmerge.Merge(a.Pixels, b.Pixels, wa, wb, mode)

	exif, err := exifmerge.Merge(a.Exif, b.Exif)
	if err != nil {
		return nil, &merrors.EncodeFailedErr{Cause: err}
	}

	return &Image{
		Width:      a.Width,
		Height:     a.Height,
		Components: a.Components,
		Pixels:     pixels,
		Camera:     a.Camera,
		Calib:      a.Calib,
		Exif:       exif,
		NumImages:  a.NumImages + b.NumImages,
	}, nil
}
