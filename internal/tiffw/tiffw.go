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

// Package tiffw is the low-level little-endian TIFF/IFD writer the DNG
// Writer (§4.7) builds on. The specification treats "the DNG low-level
// writer" as a trusted external library whose contract is specified, not
// implemented (§1); no ecosystem Go package in the retrieval pack actually
// writes TIFF/DNG (github.com/mdouchement/tiff, the pack's one TIFF-shaped
// candidate, turned out to be an internal, unexported decode-only package
// with no callable usage example anywhere in the pack, so it was dropped
// rather than kept as an unexercised require), so this package is that
// boundary's concrete, hand-rolled implementation, exercised end-to-end by
// internal/dngwriter and checked by its own tests against the encoded
// bytes (the package has no decoder).
package tiffw

import (
	"encoding/binary"
	"io"
	"sort"
)

// Tag type codes per the TIFF 6.0 spec.
const (
	TypeByte     uint16 = 1
	TypeASCII    uint16 = 2
	TypeShort    uint16 = 3
	TypeLong     uint16 = 4
	TypeRational uint16 = 5
	TypeSByte    uint16 = 6
	TypeUndef    uint16 = 7
	TypeSShort   uint16 = 8
	TypeSLong    uint16 = 9
	TypeSRat     uint16 = 10
)

var typeSize = map[uint16]int{
	TypeByte: 1, TypeASCII: 1, TypeShort: 2, TypeLong: 4,
	TypeRational: 8, TypeSByte: 1, TypeUndef: 1, TypeSShort: 2,
	TypeSLong: 4, TypeSRat: 8,
}

// Entry is one IFD directory entry; Data holds the type-encoded value
// bytes (already little-endian), whose length must be a multiple of the
// type's element size.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Data  []byte
}

// IFD is a set of entries; the byte offset of the next IFD (0 if none) is
// passed to Encode. Entries may be added in any order; Encode sorts them
// by tag before writing, since the TIFF spec requires ascending tag order.
type IFD struct {
	Entries []Entry
}

// AddBytes appends an entry of type typ whose value bytes are already
// little-endian encoded; Count is the number of typ-sized elements in data.
func (d *IFD) AddBytes(tag uint16, typ uint16, data []byte) {
	count := len(data)
	if n := typeSize[typ]; n > 0 {
		count /= n
	}
	d.Entries = append(d.Entries, Entry{Tag: tag, Type: typ, Count: uint32(count), Data: data})
}

// AddASCII appends a NUL-terminated ASCII string entry.
func (d *IFD) AddASCII(tag uint16, s string) {
	data := append([]byte(s), 0)
	d.AddBytes(tag, TypeASCII, data)
}

// AddShorts appends a SHORT-typed entry.
func (d *IFD) AddShorts(tag uint16, vals []uint16) {
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	d.Entries = append(d.Entries, Entry{Tag: tag, Type: TypeShort, Count: uint32(len(vals)), Data: buf})
}

// AddLongs appends a LONG-typed entry.
func (d *IFD) AddLongs(tag uint16, vals []uint32) {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	d.Entries = append(d.Entries, Entry{Tag: tag, Type: TypeLong, Count: uint32(len(vals)), Data: buf})
}

// Rational is a TIFF unsigned rational (numerator, denominator).
type Rational struct{ Num, Den uint32 }

// AddRationals appends a RATIONAL-typed entry.
func (d *IFD) AddRationals(tag uint16, vals []Rational) {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*8:], v.Num)
		binary.LittleEndian.PutUint32(buf[i*8+4:], v.Den)
	}
	d.Entries = append(d.Entries, Entry{Tag: tag, Type: TypeRational, Count: uint32(len(vals)), Data: buf})
}

// AddUndef appends an UNDEFINED-typed entry carrying raw bytes (used for
// opaque passthrough DNG tags and the embedded LJPEG stream itself).
func (d *IFD) AddUndef(tag uint16, data []byte) {
	d.Entries = append(d.Entries, Entry{Tag: tag, Type: TypeUndef, Count: uint32(len(data)), Data: data})
}

// entrySize is the fixed 12-byte on-disk size of one directory entry.
const entrySize = 12

// ByteSize returns how many bytes d's IFD occupies on disk: the 2-byte
// count, 12 bytes per entry, 4 bytes for the next-IFD offset, plus any
// entries whose Data overflows the inline 4-byte slot.
func (d *IFD) ByteSize() uint32 {
	size := uint32(2 + len(d.Entries)*entrySize + 4)
	for _, e := range d.Entries {
		if len(e.Data) > 4 {
			size += uint32(len(e.Data))
			if len(e.Data)%2 == 1 {
				size++ // word-align overflow data per TIFF convention
			}
		}
	}
	return size
}

// Encode writes d at baseOffset (the absolute file offset this IFD's
// directory header starts at) with nextIFD as the following IFD's offset
// (0 if none), returning the bytes written. Entries are sorted by tag
// first, since the TIFF spec requires ascending tag order and callers are
// free to add tags in whatever order is convenient.
func (d *IFD) Encode(baseOffset uint32, nextIFD uint32) []byte {
	sort.Slice(d.Entries, func(i, j int) bool { return d.Entries[i].Tag < d.Entries[j].Tag })

	overflowStart := baseOffset + 2 + uint32(len(d.Entries))*entrySize + 4
	buf := make([]byte, 0, d.ByteSize())

	count := make([]byte, 2)
	binary.LittleEndian.PutUint16(count, uint16(len(d.Entries)))
	buf = append(buf, count...)

	overflow := make([]byte, 0)
	cursor := overflowStart

	for _, e := range d.Entries {
		entry := make([]byte, entrySize)
		binary.LittleEndian.PutUint16(entry[0:], e.Tag)
		binary.LittleEndian.PutUint16(entry[2:], e.Type)
		binary.LittleEndian.PutUint32(entry[4:], e.Count)

		if len(e.Data) <= 4 {
			copy(entry[8:], e.Data)
		} else {
			binary.LittleEndian.PutUint32(entry[8:], cursor)
			overflow = append(overflow, e.Data...)
			advance := uint32(len(e.Data))
			if advance%2 == 1 {
				overflow = append(overflow, 0)
				advance++
			}
			cursor += advance
		}
		buf = append(buf, entry...)
	}

	next := make([]byte, 4)
	binary.LittleEndian.PutUint32(next, nextIFD)
	buf = append(buf, next...)
	buf = append(buf, overflow...)
	return buf
}

// Header writes the 8-byte little-endian TIFF header ("II", magic 42, and
// the first IFD's offset).
func Header(w io.Writer, firstIFDOffset uint32) error {
	hdr := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(hdr[4:], firstIFDOffset)
	_, err := w.Write(hdr)
	return err
}
