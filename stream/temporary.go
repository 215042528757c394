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

package stream

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Temporary is a scratch Stream. Small streams are kept in memory, larger ones
// in a file of the temporary directory. A memory stream that grows beyond the
// threshold rolls over to a file.
type Temporary struct {
	file       afero.File
	fs         afero.Fs
	diskFs     afero.Fs
	dir        string
	threshold  int64
	fileBacked bool
	closed     bool
}

// NewTemporary creates an empty temporary stream. The stream starts on disk
// when expectedSize exceeds threshold, otherwise in memory.
func NewTemporary(diskFs afero.Fs, dir string, expectedSize, threshold int64) (*Temporary, error) {
	t := &Temporary{diskFs: diskFs, dir: dir, threshold: threshold}
	if expectedSize > threshold {
		if err := t.openDisk(); err != nil {
			return nil, err
		}
		return t, nil
	}

	t.fs = afero.NewMemMapFs()
	f, err := t.fs.Create("/" + uuid.New().String())
	if err != nil {
		return nil, errors.Wrap(err, "could not create memory stream")
	}
	t.file = f
	return t, nil
}

func (t *Temporary) openDisk() error {
	if err := t.diskFs.MkdirAll(t.dir, 0750); err != nil {
		return errors.Wrap(err, "could not create temp directory")
	}
	f, err := afero.TempFile(t.diskFs, t.dir, "artifactimport-*")
	if err != nil {
		return errors.Wrap(err, "could not create tmp file")
	}
	t.fs = t.diskFs
	t.file = f
	t.fileBacked = true
	return nil
}

// FileBacked reports whether the stream currently lives in a file.
func (t *Temporary) FileBacked() bool {
	return t.fileBacked
}

// Name returns the path of the backing file.
func (t *Temporary) Name() string {
	return t.file.Name()
}

func (t *Temporary) Read(p []byte) (int, error) {
	return t.file.Read(p)
}

func (t *Temporary) ReadAt(p []byte, off int64) (int, error) {
	return t.file.ReadAt(p, off)
}

func (t *Temporary) Seek(offset int64, whence int) (int64, error) {
	return t.file.Seek(offset, whence)
}

func (t *Temporary) Write(p []byte) (int, error) {
	if !t.fileBacked {
		pos, err := t.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		if pos+int64(len(p)) > t.threshold {
			if err := t.Rollover(); err != nil {
				return 0, err
			}
		}
	}
	return t.file.Write(p)
}

// Rollover moves a memory stream to a file, keeping the current position.
func (t *Temporary) Rollover() error {
	if t.fileBacked {
		return nil
	}

	pos, err := t.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	memFs, memFile := t.fs, t.file

	if err := t.openDisk(); err != nil {
		return err
	}
	if _, err := memFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(t.file, memFile); err != nil {
		return errors.Wrap(err, "could not fill tmp file")
	}
	if _, err := t.file.Seek(pos, io.SeekStart); err != nil {
		return err
	}

	_ = memFile.Close()
	return memFs.Remove(memFile.Name())
}

// Size returns the size of the stream in bytes.
func (t *Temporary) Size() (int64, error) {
	info, err := t.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// MoveTo stores the content of the stream as name in fs and closes the
// stream. A file backed stream is renamed when fs is its own filesystem.
func (t *Temporary) MoveTo(fs afero.Fs, name string) (int64, error) {
	if err := fs.MkdirAll(filepath.Dir(name), 0750); err != nil {
		return 0, err
	}

	if t.fileBacked && fs == t.diskFs {
		size, err := t.Size()
		if err != nil {
			return 0, err
		}
		if err := t.file.Close(); err != nil {
			return 0, err
		}
		t.closed = true
		return size, fs.Rename(t.file.Name(), name)
	}

	dst, err := fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return 0, err
	}
	n, err := CopyTo(dst, t)
	if err != nil {
		dst.Close() // nolint:errcheck
		return n, err
	}
	if err := dst.Close(); err != nil {
		return n, err
	}
	return n, t.Close()
}

// Close closes the stream and deletes its backing data.
func (t *Temporary) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.file.Close(); err != nil {
		return err
	}
	return t.fs.Remove(t.file.Name())
}
