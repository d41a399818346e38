// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is the severity of a log event. Higher values are more severe.
type Level int8

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelFatal Level = 12
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

// String implements the [fmt.Stringer] interface.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int8(l))
}

// MarshalText implements the [encoding.TextMarshaler] interface.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnknownLevelError is returned when a level name can not be parsed.
type UnknownLevelError struct {
	Name string
}

// Error implements the [builtin.error] interface.
func (e UnknownLevelError) Error() string {
	return fmt.Sprintf("unknown level: %q", e.Name)
}

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
// Names are matched case-insensitively.
func (l *Level) UnmarshalText(b []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(b)))
	if name == "WARNING" {
		name = "WARN"
	}
	for lvl, n := range levelNames {
		if n == name {
			*l = lvl
			return nil
		}
	}
	return UnknownLevelError{Name: string(b)}
}

// Enabled reports whether an event at level l passes the minimum level.
func (l Level) Enabled(min Level) bool {
	return l >= min
}

// LevelFromSlog maps a [slog.Level] onto a Level. Levels below
// [slog.LevelDebug] are treated as trace.
func LevelFromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return LevelTrace
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	case l < slog.LevelError+4:
		return LevelError
	default:
		return LevelFatal
	}
}

// SlogLevel maps l onto the closest [slog.Level].
func (l Level) SlogLevel() slog.Level {
	return slog.Level(l)
}
