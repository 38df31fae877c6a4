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

// nightrail is the CLI entry point for the Merge Pipeline Core (§6). Unlike
// the teacher's cmd/nightlight, which parses a single flat flag.FlagSet and
// switches on a bare command word, this surface is built on spf13/cobra +
// spf13/pflag the way _examples/jmh-devel-photonic's internal/cli package
// wires its root command and subcommands, because SPEC_FULL.md's expanded
// CLI section calls for a conventional multi-command surface (merge,
// version, legal) rather than the teacher's single-binary switch statement.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hoxca-collective/nightrail/internal/config"
	"github.com/hoxca-collective/nightrail/internal/dngwriter"
	"github.com/hoxca-collective/nightrail/internal/nlog"
	"github.com/hoxca-collective/nightrail/internal/scheduler"
)

// version is stamped into built binaries the same way the teacher's
// cmd/nightlight keeps a package-level version const; nightrail additionally
// threads it into dngwriter.Version so the DNG Software tag reflects it.
const version = "0.1.0"

func main() {
	dngwriter.Version = version

	cfg, err := config.Load()
	if err != nil {
		nlog.Fatalf("loading configuration: %v", err)
	}

	if os.Getenv("NIGHTRAIL_LOG") == "" {
		nlog.SetLevel(cfg.Logging.Level)
	} else {
		nlog.FromEnv()
	}

	applyProcessingConfig(cfg.Processing)

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// applyProcessingConfig threads the settings-file worker/memory/scratch
// knobs (internal/config.Processing) into the runtime and scheduler state
// they actually govern: ParallelJobs overrides GOMAXPROCS and the
// scheduler's fan-out width, MemoryBudgetMiB caps that same fan-out against
// an estimated per-image footprint, and TempDir becomes TMPDIR for anything
// downstream that consults the OS default scratch directory.
func applyProcessingConfig(p config.Processing) {
	if p.ParallelJobs > 0 {
		runtime.GOMAXPROCS(p.ParallelJobs)
		scheduler.SetWorkerOverride(p.ParallelJobs)
	}
	scheduler.SetMemoryBudgetMiB(p.MemoryBudgetMiB)
	if p.TempDir != "" {
		os.Setenv("TMPDIR", p.TempDir)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nightrail",
		Short: "nightrail merges astrophotography RAW exposures into a DNG",
		Long: `nightrail streams a set of lightframe (and optional darkframe) RAW
exposures through a concurrent load/merge pipeline, combining pixels under a
star-trail or conventional-stack numerical mode, reconciling their EXIF
metadata, and writing the result as a Digital Negative plus an optional
rendered JPEG preview.`,
		SilenceUsage: true,
	}

	root.AddCommand(newMergeCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newLegalCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", dngwriter.AppName, version)
			return nil
		},
	}
}

func newLegalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "legal",
		Short: "Show license and attribution information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), legalText)
			return nil
		},
	}
}

const legalText = `nightrail - astrophotography RAW merge pipeline

Copyright (C) 2024 The nightrail authors

This program is free software: you can redistribute it and/or modify it
under the terms of the GNU General Public License as published by the Free
Software Foundation, either version 3 of the License, or (at your option)
any later version.

This program is distributed in the hope that it will be useful, but WITHOUT
ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
more details.

You should have received a copy of the GNU General Public License along
with this program. If not, see <https://www.gnu.org/licenses/>.`
