// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

type fsFunc func(string) (fs.File, error)

func (f fsFunc) Open(path string) (fs.File, error) {
	return f(path)
}

func TestFileReader_Read(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the fs.FS fails to open the file", func(t *testing.T) {
			openErr := errors.New("failed to open")
			fs := fsFunc(func(s string) (fs.File, error) {
				return nil, openErr
			})

			r := NewFileReader(fs, "config.yaml")
			_, err := io.ReadAll(r)
			if !assert.ErrorIs(t, err, openErr) {
				return
			}
		})
	})
}

func TestFileReader_Close(t *testing.T) {
	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if Close is called before the underlying file has been opened", func(t *testing.T) {
			fs := fsFunc(func(s string) (fs.File, error) {
				return nil, nil
			})

			r := NewFileReader(fs, "config.yaml")
			err := r.Close()
			if !assert.Nil(t, err) {
				return
			}
		})
	})
}

func TestNewOptionalFileReader(t *testing.T) {
	t.Run("will read nothing", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			r := NewOptionalFileReader(fstest.MapFS{}, "telemetry.yaml")

			b, err := io.ReadAll(r)
			if !assert.NoError(t, err) {
				return
			}
			assert.Empty(t, b)
		})
	})

	t.Run("will read the file", func(t *testing.T) {
		t.Run("if it exists", func(t *testing.T) {
			fsys := fstest.MapFS{
				"telemetry.yaml": &fstest.MapFile{Data: []byte("min_level: debug\n")},
			}
			r := NewOptionalFileReader(fsys, "telemetry.yaml")

			b, err := io.ReadAll(r)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "min_level: debug\n", string(b))
			assert.NoError(t, r.Close())
		})
	})
}
