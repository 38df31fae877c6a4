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

// Package rawio is the Image Loader (§4.4): it opens a RAW file, extracts
// EXIF metadata via evanoberholster/imagemeta, decodes the sample plane,
// applies the caller's intensity scaling, and wraps the result as a
// rawimage.Image with num_images=1. It reports Status.start_loading/
// finish_loading around the decode so the shared counters stay consistent
// under concurrent callers.
package rawio

import (
	"bufio"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/evanoberholster/imagemeta/exif2"
	"github.com/evanoberholster/imagemeta/exif2/ifds"
	"github.com/evanoberholster/imagemeta/exif2/ifds/exififd"
	"github.com/evanoberholster/imagemeta/imagetype"
	"github.com/evanoberholster/imagemeta/isobmff"
	"github.com/evanoberholster/imagemeta/jpeg"
	"github.com/evanoberholster/imagemeta/tiff"

	"github.com/hoxca-collective/nightrail/internal/exifrec"
	"github.com/hoxca-collective/nightrail/internal/merrors"
	"github.com/hoxca-collective/nightrail/internal/rawimage"
	"github.com/hoxca-collective/nightrail/internal/status"
)

// IntensityEpsilon is the threshold below which a requested intensity is
// treated as 1.0 and the sample buffer is left untouched, per §4.4.
const IntensityEpsilon = 0.001

// Load decodes path at the given intensity (1.0 for Normal mode and all
// darks; in [0,1] for Falling/Rising lights per Table M1) into a freshly
// allocated Image with num_images=1. It brackets the decode with st's
// loading counters; st may be nil for callers (such as tests) that don't
// need status tracking.
func Load(path string, intensity float64, st *status.ProcessingStatus) (*rawimage.Image, error) {
	if st != nil {
		if !st.StartLoading() {
			return nil, &merrors.AbortedErr{}
		}
	}

	img, err := decode(path, intensity)

	if st != nil {
		st.FinishLoading(path, err)
	}
	return img, err
}

func decode(path string, intensity float64) (*rawimage.Image, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &merrors.IoFailedErr{Path: path, Cause: err}
	}
	if !fi.Mode().IsRegular() {
		return nil, &merrors.IoFailedErr{Path: path, Cause: os.ErrInvalid}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &merrors.IoFailedErr{Path: path, Cause: err}
	}
	defer f.Close()

	width, height, components, pixels, err := readContainer(f)
	if err != nil {
		return nil, &merrors.DecodeFailedErr{Path: path, Cause: err}
	}

	exif, camera := extractExif(path)

	if math.Abs(intensity-1.0) > IntensityEpsilon {
		scaleInPlace(pixels, intensity)
	}

	return &rawimage.Image{
		Width:      width,
		Height:     height,
		Components: components,
		Pixels:     pixels,
		Camera:     camera,
		Exif:       exif,
		NumImages:  1,
	}, nil
}

// scaleInPlace multiplies every sample by intensity in f32 and truncates
// (not rounds) back to u16, matching the spec's floor(sample*intensity).
func scaleInPlace(pixels []uint16, intensity float64) {
	for i, v := range pixels {
		scaled := float32(float64(v) * intensity)
		if scaled < 0 {
			scaled = 0
		}
		if scaled > 65535 {
			scaled = 65535
		}
		pixels[i] = uint16(scaled)
	}
}

// extractExif opens path a second time for evanoberholster/imagemeta's own
// reader and maps the fields the merge pipeline's EXIF record carries. A
// metadata decode failure is tolerated (an empty record), matching trawls's
// fileinfo.rs, which treats EXIF as best-effort relative to the pixel
// decode: the pixel container above is the authoritative decode-or-fail
// signal.
func extractExif(path string) (exifrec.Record, rawimage.CameraDescriptor) {
	var rec exifrec.Record
	var cam rawimage.CameraDescriptor

	f, err := os.Open(path)
	if err != nil {
		return rec, cam
	}
	defer f.Close()

	ex, err := imagemeta.Decode(f)
	if err != nil {
		return rec, cam
	}

	cam.Make = strings.TrimSpace(ex.Make)
	cam.Model = strings.TrimSpace(ex.Model)
	cam.CleanMake = cleanCameraToken(cam.Make)
	cam.CleanModel = cleanCameraToken(cam.Model)

	if t := ex.DateTimeOriginal(); !t.IsZero() {
		rec.DateTimeOriginal = exifrec.Str(t.Format("2006:01:02 15:04:05"))
	}
	if t := ex.CreateDate(); !t.IsZero() {
		rec.CreateDate = exifrec.Str(t.Format("2006:01:02 15:04:05"))
	}
	if t := ex.ModifyDate(); !t.IsZero() {
		rec.ModifyDate = exifrec.Str(t.Format("2006:01:02 15:04:05"))
	}

	// imagemeta's high-level Exif type surfaces Make/Model/the date methods
	// above directly, but not ExposureTime/FNumber/ISOSpeedRatings as clean
	// rationals -- the same gap the nir0k-GeoRAW retrieval-pack file hits,
	// which drops to a custom exif2.TagParserFn over the raw ExifIFD tags
	// for exactly these three fields. Re-seeking and re-scanning the same
	// file that way is what fills exposure_time/fnumber/iso_speed_ratings in
	// the merged EXIF record (Table E1); a failure here is tolerated the
	// same as a Decode failure above.
	if _, err := f.Seek(0, io.SeekStart); err == nil {
		if rf, err := decodeRationalFields(f); err == nil {
			rec.ExposureTime = rf.exposureTime
			rec.FNumber = rf.fNumber
			rec.ISOSpeedRatings = rf.isoSpeed
		}
	}

	return rec, cam
}

// rationalFields holds the three equal-else-drop/summed fields Table E1
// needs that imagemeta's high-level Exif type doesn't surface directly.
type rationalFields struct {
	exposureTime *exifrec.Rational
	fNumber      *exifrec.Rational
	isoSpeed     *uint32
}

// decodeRationalFields scans r's ExifIFD tags directly, the same
// exif2.NewIfdReader/SetCustomTagParser shape nir0k-GeoRAW's
// decodeSeriesExif uses, picking out ExposureTime, FNumber and
// ISOSpeedRatings as raw rationals/integers instead of imagemeta's
// lossy-to-float convenience accessors.
func decodeRationalFields(r io.ReadSeeker) (rationalFields, error) {
	var out rationalFields

	reader := bufio.NewReaderSize(nil, 4*1024)
	reader.Reset(r)

	ir := exif2.NewIfdReader(exif2.Logger)
	defer ir.Close()

	ir.SetCustomTagParser(func(p exif2.TagParser, t exif2.Tag) error {
		if ifds.IfdType(t.Ifd) != ifds.ExifIFD {
			return nil
		}
		switch t.ID {
		case exififd.ExposureTime:
			if v := p.ParseRationalU(t); v[1] != 0 {
				out.exposureTime = exifrec.Rat(uint32(v[0]), uint32(v[1]))
			}
		case exififd.FNumber:
			if v := p.ParseRationalU(t); v[1] != 0 {
				out.fNumber = exifrec.Rat(uint32(v[0]), uint32(v[1]))
			}
		case exififd.ISOSpeedRatings:
			out.isoSpeed = exifrec.U32(p.ParseUint32(t))
		}
		return nil
	})

	imgType, err := imagetype.ScanBuf(reader)
	if err != nil {
		return rationalFields{}, err
	}

	switch imgType {
	case imagetype.ImageJPEG:
		err = jpeg.ScanJPEG(reader, ir.DecodeJPEGIfd, nil)
	case imagetype.ImageCR2, imagetype.ImageTiff, imagetype.ImagePanaRAW, imagetype.ImageDNG:
		var header tiff.Header
		if header, err = tiff.ScanTiffHeader(reader, imgType); err == nil {
			err = ir.DecodeTiff(reader, header)
		}
	case imagetype.ImageCR3, imagetype.ImageAVIF:
		boxReader := isobmff.NewReader(reader)
		defer boxReader.Close()
		boxReader.ExifReader = ir.DecodeIfd
		if err = boxReader.ReadFTYP(); err == nil {
			err = boxReader.ReadMetadata()
		}
	case imagetype.ImageHEIF:
		var header tiff.Header
		if header, err = tiff.ScanTiffHeader(reader, imgType); err == nil {
			err = ir.DecodeTiff(reader, header)
		}
	default:
		err = errUnsupportedMetadataType
	}

	return out, err
}

var errUnsupportedMetadataType = unsupportedMetadataTypeErr{}

type unsupportedMetadataTypeErr struct{}

func (unsupportedMetadataTypeErr) Error() string {
	return "rawio: metadata reading not supported for this image type"
}

// Candidate is the metadata-only summary the info-preload path produces per
// source file, matching original_source's ImageCandidate (fileinfo.rs):
// path, filename, creation time, dimensions and ISO, all without decoding
// the (potentially large) pixel plane.
type Candidate struct {
	Path         string    `json:"path"`
	Filename     string    `json:"filename"`
	CreationTime time.Time `json:"creation_time"`
	Width        int32     `json:"width"`
	Height       int32     `json:"height"`
	ISOSpeed     *uint32   `json:"iso_speed,omitempty"`
}

// LoadCandidate reads only the header of path's sample container plus its
// EXIF block, skipping the sample plane entirely -- the preload path
// original_source's frontend.rs::load_image_infos drives ahead of the
// actual merge so a caller can show a file list before committing to a
// full decode.
func LoadCandidate(path string) (Candidate, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Candidate{}, &merrors.IoFailedErr{Path: path, Cause: err}
	}
	if !fi.Mode().IsRegular() {
		return Candidate{}, &merrors.IoFailedErr{Path: path, Cause: os.ErrInvalid}
	}

	f, err := os.Open(path)
	if err != nil {
		return Candidate{}, &merrors.IoFailedErr{Path: path, Cause: err}
	}
	defer f.Close()

	width, height, _, err := readHeader(f)
	if err != nil {
		return Candidate{}, &merrors.DecodeFailedErr{Path: path, Cause: err}
	}

	exif, _ := extractExif(path)

	return Candidate{
		Path:         path,
		Filename:     filepath.Base(path),
		CreationTime: fi.ModTime(),
		Width:        width,
		Height:       height,
		ISOSpeed:     exif.ISOSpeedRatings,
	}, nil
}

// cleanCameraToken strips manufacturer boilerplate the way DNG's
// UniqueCameraModel wants a terse identity; trawls's fill_exif_root
// performs the equivalent trim on make/model before composing that tag.
func cleanCameraToken(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(s, " CORPORATION"))
}
