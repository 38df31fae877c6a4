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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hoxca-collective/nightrail/internal/dngwriter"
	"github.com/hoxca-collective/nightrail/internal/exifrec"
	"github.com/hoxca-collective/nightrail/internal/nlog"
	"github.com/hoxca-collective/nightrail/internal/preview"
	"github.com/hoxca-collective/nightrail/internal/scheduler"
	"github.com/hoxca-collective/nightrail/internal/status"
	"github.com/hoxca-collective/nightrail/internal/statushttp"
)

// renderedPreview is the success record §6 specifies: a base64-encoded JPEG
// plus the three human-readable summary fields the UI surface displays
// alongside it.
type renderedPreview struct {
	Encoded  string `json:"encoded"`
	Aperture string `json:"aperture"`
	Exposure string `json:"exposure"`
	ISOSpeed string `json:"isospeed"`
}

// parseModeStrict is the CLI's enum parser: unlike scheduler.ParseMode (the
// lenient JSON/RPC surface parser that falls through to Normal), the CLI
// rejects unknown mode strings outright, per SPEC_FULL.md's Open Question
// decision that only the JSON/GUI surface preserves the original fallthrough.
func parseModeStrict(s string) (scheduler.Mode, error) {
	switch s {
	case "normal":
		return scheduler.Normal, nil
	case "falling":
		return scheduler.Falling, nil
	case "rising":
		return scheduler.Rising, nil
	default:
		return 0, fmt.Errorf("invalid --mode %q: must be one of falling, rising, normal", s)
	}
}

func newMergeCmd() *cobra.Command {
	var (
		out         string
		previewPath string
		mode        string
		darks       []string
		serve       string
	)

	cmd := &cobra.Command{
		Use:   "merge [--out PATH] [--preview PATH] --mode <falling|rising|normal> FILES...",
		Short: "Merge a set of lightframe RAW exposures into a DNG",
		Long: `merge streams the given lightframe (and optional darkframe) RAW files
through the scheduler's parallel load/tree-reduce pipeline, combines their
pixels under the requested intensity schedule, reconciles their EXIF
metadata, and writes the merged result as a Digital Negative plus an
optional rendered JPEG preview.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseModeStrict(mode)
			if err != nil {
				return err
			}
			return runMerge(cmd, args, darks, out, previewPath, m, serve)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "destination DNG path (required)")
	cmd.Flags().StringVar(&previewPath, "preview", "", "optional destination JPEG preview path")
	cmd.Flags().StringVar(&mode, "mode", "", "intensity schedule: falling, rising, or normal (required)")
	cmd.Flags().StringSliceVar(&darks, "dark", nil, "darkframe RAW path, may be repeated")
	cmd.Flags().StringVar(&serve, "serve", "", "optional address to also expose live status over SSE, e.g. :8080")

	cmd.MarkFlagRequired("out")
	cmd.MarkFlagRequired("mode")

	return cmd
}

func runMerge(cmd *cobra.Command, lights, darks []string, out, previewPath string, mode scheduler.Mode, serve string) error {
	var observer status.Observer
	if serve != "" {
		hub := statushttp.NewHub()
		observer = hub
		go func() {
			if err := statushttp.Run(parsePort(serve), hub); err != nil {
				nlog.Warnf("status server stopped: %v", err)
			}
		}()
	}

	st := status.NewProcessingStatus(int32(len(lights)), int32(len(darks)), observer)

	bar := progressbar.NewOptions(len(lights)+len(darks),
		progressbar.OptionSetDescription("merging"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionClearOnFinish(),
	)
	stopPoll := pollProgress(bar, st)
	defer stopPoll()

	img, err := scheduler.RunMerge(context.Background(), lights, darks, mode, st)
	stopPoll()
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	if err := dngwriter.Write(out, img); err != nil {
		return fmt.Errorf("writing DNG %q: %w", out, err)
	}

	rgb := preview.Render(img)
	jpg, err := preview.ToJPEG(rgb, 90)
	if err != nil {
		return fmt.Errorf("rendering preview: %w", err)
	}
	if previewPath != "" {
		if err := preview.WriteJPEGToFile(previewPath, rgb, 90); err != nil {
			return fmt.Errorf("writing preview %q: %w", previewPath, err)
		}
	}

	result := renderedPreview{
		Encoded:  base64.StdEncoding.EncodeToString(jpg),
		Aperture: formatAperture(img.Exif.FNumber),
		Exposure: formatExposure(img.Exif.ExposureTime),
		ISOSpeed: formatISOSpeed(img.Exif.ISOSpeedRatings),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(result)
}

// pollProgress drives the progress bar from st.JSON() at a short interval
// until the returned stop func is called, the CLI analogue of indicatif
// bars the original Rust processing/cli_progress.rs module drives from the
// same loaded/merged counters.
func pollProgress(bar *progressbar.ProgressBar, st *status.ProcessingStatus) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(150 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				snap := st.JSON()
				bar.Set(int(snap.Loaded + snap.Merged))
				if snap.Finished || snap.Aborted {
					return
				}
			case <-done:
				return
			}
		}
	}()
	var once bool
	return func() {
		if once {
			return
		}
		once = true
		close(done)
		<-stopped
	}
}

func formatAperture(f *exifrec.Rational) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("f/%.1f", f.Float())
}

func formatExposure(e *exifrec.Rational) string {
	if e == nil {
		return ""
	}
	total := e.Float()
	h := int(total) / 3600
	m := (int(total) % 3600) / 60
	s := int(total) % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}

func formatISOSpeed(iso *uint32) string {
	if iso == nil {
		return ""
	}
	return fmt.Sprintf("ISO%d", *iso)
}

func parsePort(addr string) int {
	port := 0
	fmt.Sscanf(addr, ":%d", &port)
	return port
}
