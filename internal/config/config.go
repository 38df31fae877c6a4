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

// Package config is the JSON-backed settings file an installed nightrail
// falls back to underneath its CLI flags, in the shape of photonic's
// internal/config/config.go: Load() returns sensible defaults when the
// file is absent, and decodes over those defaults when it is present.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/pbnjay/memory"
)

const defaultConfigPath = "~/.config/nightrail/config.json"

// Config holds user-editable settings that sit underneath CLI flags.
type Config struct {
	Processing Processing `json:"processing"`
	Logging    Logging    `json:"logging"`
}

// Processing controls worker-pool sizing and scratch space.
type Processing struct {
	ParallelJobs   int    `json:"parallel_jobs"`
	MemoryBudgetMiB int   `json:"memory_budget_mib"`
	TempDir        string `json:"temp_dir"`
}

// Logging sets nlog's default level, overridden in turn by the
// NIGHTRAIL_LOG environment variable at process startup. Format is not
// read by nlog or the CLI.
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load reads configuration from NIGHTRAIL_CONFIG (or the default path),
// falling back to defaultConfig() when the file doesn't exist.
func Load() (*Config, error) {
	cfg := defaultConfig()

	path := os.Getenv("NIGHTRAIL_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	expanded, err := expandUser(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Processing: Processing{
			ParallelJobs:    0, // 0 means "use scheduler.WorkerCount()"
			MemoryBudgetMiB: int(memory.TotalMemory() / 1024 / 1024),
			TempDir:         os.TempDir(),
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
