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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoxca-collective/nightrail/internal/status"
)

func TestLoadAppliesIntensityScaling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.nrraw")
	require.NoError(t, WriteContainerFile(path, 2, 2, 1, []uint16{1000, 1000, 1000, 1000}))

	img, err := Load(path, 0.5, nil)
	require.NoError(t, err)
	require.Equal(t, []uint16{500, 500, 500, 500}, img.Pixels)
	require.EqualValues(t, 1, img.NumImages)
}

func TestLoadLeavesBufferUntouchedNearUnity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.nrraw")
	require.NoError(t, WriteContainerFile(path, 1, 1, 1, []uint16{1234}))

	img, err := Load(path, 1.0-IntensityEpsilon/2, nil)
	require.NoError(t, err)
	require.Equal(t, []uint16{1234}, img.Pixels)
}

func TestLoadMissingFileIsIoFailed(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.nrraw"), 1.0, nil)
	require.Error(t, err)
}

func TestLoadNonRegularFileIsIoFailed(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, 1.0, nil)
	require.Error(t, err)
}

func TestLoadRecordsStatusCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.nrraw")
	require.NoError(t, WriteContainerFile(path, 1, 1, 1, []uint16{1}))

	st := status.NewProcessingStatus(1, 0, nil)
	_, err := Load(path, 1.0, st)
	require.NoError(t, err)

	results := st.Results()
	require.True(t, results[path].OK)
	require.EqualValues(t, 1, st.JSON().Loaded)
}

func TestLoadSkippedWhenAborted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.nrraw")
	require.NoError(t, WriteContainerFile(path, 1, 1, 1, []uint16{1}))

	st := status.NewProcessingStatus(1, 0, nil)
	st.Abort()

	_, err := Load(path, 1.0, st)
	require.Error(t, err)
}

func TestLoadCandidateReportsDimensionsAndFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.nrraw")
	require.NoError(t, WriteContainerFile(path, 3, 2, 1, []uint16{1, 2, 3, 4, 5, 6}))

	c, err := LoadCandidate(path)
	require.NoError(t, err)
	require.Equal(t, path, c.Path)
	require.Equal(t, "e.nrraw", c.Filename)
	require.EqualValues(t, 3, c.Width)
	require.EqualValues(t, 2, c.Height)
}

func TestLoadCandidateMissingFileIsIoFailed(t *testing.T) {
	_, err := LoadCandidate(filepath.Join(t.TempDir(), "missing.nrraw"))
	require.Error(t, err)
}
