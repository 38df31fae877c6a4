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

package rawio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/hoxca-collective/nightrail/internal/merrors"
)

var errNotContainer = errors.New("rawio: not a nightrail raw container")

// Container is the on-disk shape of the sample-plane side of the RAW
// decoder boundary. The specification treats the actual multi-vendor RAW
// raster decoder as a trusted external library whose contract is
// specified, not implemented (§1, §4.4); this package's metadata side
// genuinely wires evanoberholster/imagemeta (see rawio.go), but no
// ecosystem library in the retrieval pack decodes vendor RAW pixel planes,
// so the sample side is this small self-describing container instead --
// the stand-in for that out-of-scope boundary, read by readContainer;
// tests and the reference CLI both exercise this container format
// directly.
const containerMagic = "NRRAW001"

// WriteContainer serializes width/height/components and a u16 sample plane
// to w in the container format readContainer reads back.
func WriteContainer(w io.Writer, width, height, components int32, pixels []uint16) error {
	if _, err := w.Write([]byte(containerMagic)); err != nil {
		return err
	}
	hdr := []int32{width, height, components}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, pixels)
}

// WriteContainerFile writes a container file at path.
func WriteContainerFile(path string, width, height, components int32, pixels []uint16) error {
	f, err := os.Create(path)
	if err != nil {
		return &merrors.IoFailedErr{Path: path, Cause: err}
	}
	defer f.Close()
	if err := WriteContainer(f, width, height, components, pixels); err != nil {
		return &merrors.IoFailedErr{Path: path, Cause: err}
	}
	return nil
}

func readContainer(r io.Reader) (width, height, components int32, pixels []uint16, err error) {
	width, height, components, err = readHeader(r)
	if err != nil {
		return
	}
	pixels = make([]uint16, int64(width)*int64(height)*int64(components))
	err = binary.Read(r, binary.LittleEndian, pixels)
	return
}

// readHeader reads only the magic and the width/height/components triple,
// leaving the (potentially large) sample plane unread -- the cheap path the
// info-preload phase (§4.9's InfoLoadingStatus) uses to report dimensions
// without paying for a full pixel decode.
func readHeader(r io.Reader) (width, height, components int32, err error) {
	magic := make([]byte, len(containerMagic))
	if _, err = io.ReadFull(r, magic); err != nil {
		return
	}
	if string(magic) != containerMagic {
		err = errNotContainer
		return
	}
	hdr := make([]int32, 3)
	err = binary.Read(r, binary.LittleEndian, hdr)
	width, height, components = hdr[0], hdr[1], hdr[2]
	return
}
