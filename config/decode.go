// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/z5labs/telemetry/internal/try"
	"gopkg.in/yaml.v3"
)

// Format names an encoding a [Source] can be decoded from.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DecodeError occurs if a reader does not hold a valid document
// in the expected [Format].
type DecodeError struct {
	Format Format
	Cause  error
}

// Error implements the [builtin.error] interface.
func (e DecodeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Format, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e DecodeError) Unwrap() error {
	return e.Cause
}

// Decoded is a [Source] which parses a document into a [Map]
// before applying it.
type Decoded struct {
	r         io.Reader
	format    Format
	unmarshal func([]byte, any) error
}

// FromYaml returns a source which will apply its config
// from YAML values parsed from the given io.Reader.
func FromYaml(r io.Reader) Decoded {
	return Decoded{r: r, format: FormatYAML, unmarshal: yaml.Unmarshal}
}

// FromJson returns a source which will apply its config
// from JSON values parsed from the given io.Reader.
func FromJson(r io.Reader) Decoded {
	return Decoded{r: r, format: FormatJSON, unmarshal: json.Unmarshal}
}

// FromFile picks the decoder from the extension of name.
// Files ending in .json are parsed as JSON, everything else as YAML.
func FromFile(r io.Reader, name string) Decoded {
	if path.Ext(name) == ".json" {
		return FromJson(r)
	}
	return FromYaml(r)
}

// Format reports the encoding src expects.
func (src Decoded) Format() Format {
	return src.format
}

// Apply implements the [Source] interface.
func (src Decoded) Apply(store Store) (err error) {
	c, _ := src.r.(io.Closer)
	defer try.Close(&err, c)

	b, err := io.ReadAll(src.r)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}

	m := make(map[string]any)
	err = src.unmarshal(b, &m)
	if err != nil {
		return DecodeError{Format: src.format, Cause: err}
	}
	return Map(m).Apply(store)
}
