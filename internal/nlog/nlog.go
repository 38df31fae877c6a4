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

// Package nlog centralizes process-wide logging, in the same spirit as the
// LogPrintf/LogFatalf helpers nightlight exposes from its internal package,
// but backed by a structured, leveled logger instead of the bare log package.
package nlog

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

// SetLevel configures the minimum emitted level. Unknown names fall back to info,
// mirroring the lenient parsing nightlight applies to its own flags.
func SetLevel(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	base = base.Level(lvl)
}

// FromEnv configures the log level from NIGHTRAIL_LOG, the RUST_LOG-style
// variable called for in the external interface contract. Default is info.
func FromEnv() {
	if v := os.Getenv("NIGHTRAIL_LOG"); v != "" {
		SetLevel(v)
	} else {
		SetLevel("info")
	}
}

// AlsoToFile tees subsequent log output to the given file path in addition to
// the console, mirroring nightlight's LogAlsoToFile.
func AlsoToFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	multi := zerolog.MultiLevelWriter(console, f)
	base = zerolog.New(multi).With().Timestamp().Logger().Level(base.GetLevel())
	return nil
}

// Printf logs a formatted message at info level.
func Printf(format string, args ...interface{}) {
	base.Info().Msgf(format, args...)
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...interface{}) {
	base.Debug().Msgf(format, args...)
}

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...interface{}) {
	base.Warn().Msgf(format, args...)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) {
	base.Error().Msgf(format, args...)
}

// Fatalf logs at fatal level and terminates the process, matching
// nightlight's LogFatalf semantics.
func Fatalf(format string, args ...interface{}) {
	base.Fatal().Msgf(format, args...)
}

// Fatal logs the given values at fatal level and terminates the process.
func Fatal(args ...interface{}) {
	base.Fatal().Msg(sprint(args...))
}

// Sync is a no-op placeholder retained for symmetry with nightlight's
// LogSync; zerolog's console writer is unbuffered, so there is nothing to
// flush, but callers that formerly deferred LogSync() keep compiling.
func Sync() {}

// Writer exposes the current logger as an io.Writer for libraries (such as
// the gin HTTP sink) that want to forward their own request logs through the
// same destination.
func Writer() io.Writer {
	return base
}

func sprint(args ...interface{}) string {
	return fmt.Sprint(args...)
}
