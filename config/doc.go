// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config layers key value sources into a single tree and decodes
// it into a struct.
//
// Sources are applied in order and later sources override earlier ones:
//
//	m, err := config.Read(
//	    config.FromYaml(config.NewFileReader(os.DirFS("."), "telemetry.yaml")),
//	    config.FromEnv("TELEMETRY_"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	var cfg guard.Config
//	err = m.Unmarshal(&cfg)
//
// Struct fields are matched with the `config` tag. Strings are decoded
// into any [encoding.TextUnmarshaler] and into [time.Duration], and are
// weakly coerced into booleans and numbers so environment variables can
// populate any field.
package config
