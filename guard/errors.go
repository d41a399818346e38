// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package guard

import (
	"fmt"

	"github.com/z5labs/telemetry"
)

// ErrAlreadyInstalled is returned when another dispatcher is installed
// process wide.
var ErrAlreadyInstalled = telemetry.ErrAlreadyInstalled

// ConfigReadError is returned when a [config.Source] fails to apply.
type ConfigReadError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigReadError) Error() string {
	return fmt.Sprintf("guard: failed to read config: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigReadError) Unwrap() error {
	return e.Cause
}

// ConfigUnmarshalError is returned when the read config does not decode
// into a [Config].
type ConfigUnmarshalError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigUnmarshalError) Error() string {
	return fmt.Sprintf("guard: failed to unmarshal config: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigUnmarshalError) Unwrap() error {
	return e.Cause
}

// InvalidConfigError is returned by [Config.Validate].
type InvalidConfigError struct {
	Field  string
	Reason string
}

// Error implements the [builtin.error] interface.
func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("guard: invalid config field %s: %s", e.Field, e.Reason)
}

// SinkInitError is returned when a configured sink could not be built.
type SinkInitError struct {
	Sink  string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e SinkInitError) Error() string {
	return fmt.Sprintf("guard: failed to initialize %s sink: %s", e.Sink, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e SinkInitError) Unwrap() error {
	return e.Cause
}
