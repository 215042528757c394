package sqlitefs

import (
	"bytes"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// item is an open file of the archive. Read items hold the uncompressed
// content, write items collect the content until Close.
type item struct {
	fs   *FS
	path string

	// reader item
	reader   *bytes.Reader
	info     os.FileInfo
	children []os.FileInfo

	// writer item
	buf    *bytes.Buffer
	perm   os.FileMode
	closed bool
}

func newWriteItem(fs *FS, name string, perm os.FileMode) *item {
	return &item{fs: fs, path: name, buf: &bytes.Buffer{}, perm: perm}
}

func newReadItem(name string, info *Info, data []byte, children []os.FileInfo) (*item, error) {
	i := &item{path: name, info: info, children: children}
	if info.dir {
		i.reader = bytes.NewReader(nil)
		return i, nil
	}

	// sqlar stores content uncompressed when compression does not pay off
	if int64(len(data)) < info.sz {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(err, "could not decompress %s", name)
		}
		defer zr.Close()
		content, err := io.ReadAll(zr)
		if err != nil {
			return nil, errors.Wrapf(err, "could not decompress %s", name)
		}
		data = content
	}
	i.reader = bytes.NewReader(data)
	return i, nil
}

func (i *item) Name() string {
	return path.Base(i.path)
}

func (i *item) Read(p []byte) (n int, err error) {
	if i.reader == nil {
		return 0, ErrNotImplemented
	}
	return i.reader.Read(p)
}

func (i *item) ReadAt(p []byte, off int64) (n int, err error) {
	if i.reader == nil {
		return 0, ErrNotImplemented
	}
	return i.reader.ReadAt(p, off)
}

func (i *item) Seek(offset int64, whence int) (int64, error) {
	if i.reader == nil {
		return 0, ErrNotImplemented
	}
	return i.reader.Seek(offset, whence)
}

func (i *item) Readdir(count int) ([]os.FileInfo, error) {
	n := len(i.children)
	if count > 0 && count < n {
		n = count
	}
	return i.children[:n], nil
}

func (i *item) Readdirnames(n int) ([]string, error) {
	infos, err := i.Readdir(n)
	names := make([]string, len(infos))
	for c, info := range infos {
		names[c] = info.Name()
	}
	return names, err
}

func (i *item) Stat() (os.FileInfo, error) {
	if i.info != nil {
		return i.info, nil
	}
	return &Info{name: i.Name(), sz: int64(i.buf.Len()), mode: i.perm}, nil
}

func (i *item) Write(p []byte) (n int, err error) {
	if i.buf == nil || i.closed {
		return 0, os.ErrClosed
	}
	return i.buf.Write(p)
}

func (i *item) WriteAt([]byte, int64) (n int, err error) {
	return 0, ErrNotImplemented
}

func (i *item) WriteString(s string) (ret int, err error) {
	return i.Write([]byte(s))
}

// Close stores the content of a write item.
func (i *item) Close() error {
	if i.buf == nil || i.closed {
		return nil
	}
	i.closed = true

	raw := i.buf.Bytes()
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	data := raw
	if compressed.Len() < len(raw) {
		data = compressed.Bytes()
	}
	return i.fs.store(i.path, int64(len(raw)), data)
}

func (i *item) Truncate(size int64) error {
	if i.buf == nil || size > int64(i.buf.Len()) {
		return ErrNotImplemented
	}
	i.buf.Truncate(int(size))
	return nil
}

func (i *item) Sync() error {
	return nil
}
