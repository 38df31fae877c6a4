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

// Package preview is the Preview Renderer (§4.8): it demosaics the merged
// CFA buffer into per-pixel camera RGB, color-corrects and tone-adjusts via
// internal/colorxform and lucasb-eyer/go-colorful, rescales to 16-bit RGB,
// and (optionally) JPEG-encodes the result, reusing the teacher's own
// image/image/color/image/jpeg pipeline from internal/writejpg.go.
package preview

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/hoxca-collective/nightrail/internal/colorxform"
	"github.com/hoxca-collective/nightrail/internal/exifrec"
	"github.com/hoxca-collective/nightrail/internal/rawimage"
)

// RGB16 is a 16-bit-per-channel RGB raster, the packaging §4.8 calls for
// before JPEG encoding (which then quantizes to 8 bits per the format).
type RGB16 struct {
	Width, Height int
	R, G, B       []uint16 // each length Width*Height
}

// Render demosaics img's CFA buffer, applies its color matrix (preferring
// the illuminant-A entry per §4.7's ColorMatrix1 rule) and a mild
// saturation lift via go-colorful's HSV round-trip, and returns the result
// as a 16-bit RGB raster.
func Render(img *rawimage.Image) *RGB16 {
	w, h := int(img.Width), int(img.Height)
	demosaiced := demosaic(img)

	m := colorxform.CameraToSRGB(pickColorMatrix(img))

	out := &RGB16{Width: w, Height: h, R: make([]uint16, w*h), G: make([]uint16, w*h), B: make([]uint16, w*h)}
	for i := 0; i < w*h; i++ {
		r, g, b := demosaiced.r[i], demosaiced.g[i], demosaiced.b[i]
		lr, lg, lb := colorxform.Apply(m, r, g, b)

		sr := colorxform.GammaEncode(lr)
		sg := colorxform.GammaEncode(lg)
		sb := colorxform.GammaEncode(lb)

		sr, sg, sb = liftSaturation(sr, sg, sb, 1.08)

		out.R[i] = to16(sr)
		out.G[i] = to16(sg)
		out.B[i] = to16(sb)
	}
	return out
}

// pickColorMatrix prefers the illuminant-A entry, falling back to whatever
// entry is first, matching the DNG Writer's own ColorMatrix1 selection rule
// so the preview and the embedded DNG preview agree.
func pickColorMatrix(img *rawimage.Image) [9]exifrec.Rational {
	mats := img.Calib.ColorMatrices
	if len(mats) == 0 {
		var identity [9]exifrec.Rational
		for i := range identity {
			if i%4 == 0 {
				identity[i] = exifrec.Rational{Num: 1, Den: 1}
			}
		}
		return identity
	}
	chosen := mats[0]
	for _, m := range mats {
		if m.Illuminant == rawimage.IlluminantA {
			chosen = m
			break
		}
	}
	return chosen.Matrix
}

// liftSaturation nudges chroma via go-colorful's HSV decomposition, the
// library's native strength, rather than hand-rolling an RGB<->HSV
// conversion the way a plain-stdlib renderer would.
func liftSaturation(r, g, b, factor float64) (float64, float64, float64) {
	c := colorful.Color{R: r, G: g, B: b}
	h, s, v := c.Hsv()
	s *= factor
	if s > 1 {
		s = 1
	}
	lifted := colorful.Hsv(h, s, v)
	return clamp01(lifted.R), clamp01(lifted.G), clamp01(lifted.B)
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

func to16(normalized float64) uint16 {
	v := normalized * 65535.0
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}

type planarRGB struct {
	r, g, b []float64
}

// demosaic is a simple full-resolution bilinear Bayer demosaic: each sample
// position yields one RGB pixel by reading its own channel directly and
// averaging the adjacent samples that carry the channels the CFA didn't
// sample there (the four orthogonal neighbors for green and the four
// diagonal ones for the opposite color at a red or blue site; the
// horizontal and vertical neighbor pairs at a green site). Samples past
// the edge reuse the nearest in-bounds sample.
func demosaic(img *rawimage.Image) planarRGB {
	w, h := int(img.Width), int(img.Height)
	out := planarRGB{r: make([]float64, w*h), g: make([]float64, w*h), b: make([]float64, w*h)}

	cfa := img.Camera.CFA
	white := maxWhiteLevel(img.Calib.WhiteLevel)

	at := func(x, y int) float64 {
		x = clampInt(x, 0, w-1)
		y = clampInt(y, 0, h-1)
		return float64(img.Pixels[y*w+x]) / white
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ch := cfaChannel(cfa, x, y)
			v := at(x, y)
			r, g, b := 0.0, 0.0, 0.0
			switch ch {
			case 0: // R
				r = v
				g = (at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1)) / 4
				b = (at(x-1, y-1) + at(x+1, y-1) + at(x-1, y+1) + at(x+1, y+1)) / 4
			case 2: // B
				b = v
				g = (at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1)) / 4
				r = (at(x-1, y-1) + at(x+1, y-1) + at(x-1, y+1) + at(x+1, y+1)) / 4
			default: // G (and any other CFA color index)
				g = v
				horiz := (at(x-1, y) + at(x+1, y)) / 2
				vert := (at(x, y-1) + at(x, y+1)) / 2
				if cfaChannel(cfa, x+1, y) == 2 {
					// Green on a blue row: blue lies left/right, red above/below.
					r, b = vert, horiz
				} else {
					r, b = horiz, vert
				}
			}
			idx := y*w + x
			out.r[idx], out.g[idx], out.b[idx] = r, g, b
		}
	}
	return out
}

func cfaChannel(cfa rawimage.CFAPattern, x, y int) byte {
	if cfa.W == 0 || cfa.H == 0 {
		// No CFA metadata: treat every sample as green, the conservative
		// choice for a monochrome-looking preview rather than a guess.
		return 1
	}
	col := x % int(cfa.W)
	row := y % int(cfa.H)
	return cfa.Pattern[row*int(cfa.W)+col]
}

func maxWhiteLevel(levels []uint16) float64 {
	if len(levels) == 0 {
		return 65535
	}
	max := levels[0]
	for _, v := range levels {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return 65535
	}
	return float64(max)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ToJPEG encodes rgb as an 8-bit JPEG at the given quality (1-100),
// mirroring the teacher's FITSImage.WriteJPG: build an image.RGBA, then
// hand it to the standard image/jpeg encoder.
func ToJPEG(rgb *RGB16, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJPEG(&buf, rgb, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJPEG writes rgb as a JPEG to w.
func WriteJPEG(w io.Writer, rgb *RGB16, quality int) error {
	img := image.NewRGBA(image.Rect(0, 0, rgb.Width, rgb.Height))
	for y := 0; y < rgb.Height; y++ {
		rowOff := y * rgb.Width
		for x := 0; x < rgb.Width; x++ {
			i := rowOff + x
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rgb.R[i] >> 8),
				G: uint8(rgb.G[i] >> 8),
				B: uint8(rgb.B[i] >> 8),
				A: 255,
			})
		}
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// WriteJPEGToFile writes rgb as a JPEG to the given path.
func WriteJPEGToFile(path string, rgb *RGB16, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	defer bw.Flush()
	return WriteJPEG(bw, rgb, quality)
}
