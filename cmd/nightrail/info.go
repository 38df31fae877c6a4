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

package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hoxca-collective/nightrail/internal/scheduler"
	"github.com/hoxca-collective/nightrail/internal/status"
)

// newInfoCmd surfaces the metadata-only preload path (SPEC_FULL.md §4's
// supplemented load_image_infos feature): a quick dimensions/ISO/filename
// summary over a file list with no pixel decode, the way original_source's
// frontend.rs::load_image_infos lets a caller preview a batch before
// committing to a full merge.
func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info FILES...",
		Short: "Preview RAW file metadata without decoding pixel data",
		Long: `info reads only the dimensions and EXIF metadata of each given RAW
file, skipping the (potentially large) pixel plane, the same preload pass a
GUI front-end would run to populate a file list before a merge starts.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := status.NewInfoLoadingStatus(int32(len(args)), "cli", nil)
			candidates, err := scheduler.RunInfoPreload(context.Background(), args, st)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(candidates)
		},
	}
	return cmd
}
