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

package tiffw

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderWritesLittleEndianMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Header(&buf, 8))
	b := buf.Bytes()
	require.Equal(t, []byte{'I', 'I'}, b[0:2])
	require.EqualValues(t, 42, binary.LittleEndian.Uint16(b[2:4]))
	require.EqualValues(t, 8, binary.LittleEndian.Uint32(b[4:8]))
}

func TestIFDInlineVsOverflowEntries(t *testing.T) {
	var d IFD
	d.AddShorts(0x0100, []uint16{4}) // inline: 2 bytes fits in the 4-byte slot
	d.AddASCII(0x010f, "Canon")      // overflow: 6 bytes (5 + NUL) exceeds 4

	encoded := d.Encode(8, 0)
	require.EqualValues(t, d.ByteSize(), len(encoded))

	// Directory count header.
	require.EqualValues(t, 2, binary.LittleEndian.Uint16(encoded[0:2]))

	// Second entry's offset field should point past the fixed IFD header.
	secondEntryOffset := 2 + entrySize
	valueOffset := binary.LittleEndian.Uint32(encoded[secondEntryOffset+8:])
	require.Greater(t, valueOffset, uint32(8))
}

func TestIFDRationalsRoundTripBytes(t *testing.T) {
	var d IFD
	d.AddRationals(0x829a, []Rational{{Num: 1, Den: 100}, {Num: 3, Den: 1}})
	require.Len(t, d.Entries, 1)
	require.EqualValues(t, TypeRational, d.Entries[0].Type)
	require.EqualValues(t, 2, d.Entries[0].Count)
	require.EqualValues(t, 1, binary.LittleEndian.Uint32(d.Entries[0].Data[0:4]))
	require.EqualValues(t, 100, binary.LittleEndian.Uint32(d.Entries[0].Data[4:8]))
}
