// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"errors"
	"io"
	"io/fs"
	"sync"
)

// FileReader is an io.Reader that opens its file lazily, on the first Read.
type FileReader struct {
	path     string
	fs       fs.FS
	optional bool

	openOnce sync.Once
	openErr  error
	file     io.ReadCloser
}

// NewFileReader configures a FileReader.
func NewFileReader(fsys fs.FS, path string) *FileReader {
	return &FileReader{
		path: path,
		fs:   fsys,
	}
}

// NewOptionalFileReader configures a FileReader which reads as empty
// if the file does not exist.
func NewOptionalFileReader(fsys fs.FS, path string) *FileReader {
	r := NewFileReader(fsys, path)
	r.optional = true
	return r
}

// Read implements the [io.Reader] interface.
func (r *FileReader) Read(b []byte) (int, error) {
	r.openOnce.Do(func() {
		r.file, r.openErr = r.fs.Open(r.path)
		if r.optional && errors.Is(r.openErr, fs.ErrNotExist) {
			r.openErr = io.EOF
		}
	})
	if r.openErr != nil {
		return 0, r.openErr
	}
	return r.file.Read(b)
}

// Close implements the [io.Closer] interface.
func (r *FileReader) Close() error {
	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil
	return err
}
