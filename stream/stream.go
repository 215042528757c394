/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

// Package stream provides the byte streams items are carried in while they
// move through the import pipeline.
//
// A File wraps a file of an afero filesystem. A Temporary holds scratch data
// either in memory or in a file of the temporary directory and can be moved to
// its final location once processing is done.
package stream

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Stream is a readable, writable and seekable byte source.
type Stream interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Seeker
	io.Closer

	// Name returns the path of the stream in its filesystem.
	Name() string

	// Size returns the current size of the stream in bytes.
	Size() (int64, error)
}

// File is a Stream backed by a file of an afero filesystem.
type File struct {
	afero.File
	fs afero.Fs
}

// Open opens an existing file for reading.
func Open(fs afero.Fs, name string) (*File, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &File{File: f, fs: fs}, nil
}

// Create creates or truncates a file for writing, creating its parent
// directories.
func Create(fs afero.Fs, name string) (*File, error) {
	if err := fs.MkdirAll(filepath.Dir(name), 0750); err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return nil, err
	}
	return &File{File: f, fs: fs}, nil
}

// Size returns the size of the underlying file.
func (f *File) Size() (int64, error) {
	info, err := f.File.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Rewind seeks s back to its first byte.
func Rewind(s io.Seeker) error {
	_, err := s.Seek(0, io.SeekStart)
	return err
}

// CopyTo copies the whole content of src, starting at its first byte, to dst
// and returns the number of bytes written.
func CopyTo(dst io.Writer, src Stream) (int64, error) {
	if err := Rewind(src); err != nil {
		return 0, errors.Wrap(err, "could not rewind stream")
	}
	return io.Copy(dst, src)
}
