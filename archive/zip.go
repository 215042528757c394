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

package archive

import (
	"context"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactimport/stream"
)

type zipExtractor struct{}

func (*zipExtractor) Kind() Kind { return Zip }

// Extract extracts a zip archive. Zip encryption is not supported, encrypted
// members are reported with ErrEncrypted.
func (*zipExtractor) Extract(ctx context.Context, src stream.Stream, opts Options) error {
	n, err := size(src)
	if err != nil {
		return err
	}
	r, err := zip.NewReader(src, n)
	if err != nil {
		return errors.Wrap(err, "could not read zip")
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		m := Member{Name: f.Name, Size: int64(f.UncompressedSize64), Modified: f.Modified}
		if !opts.include(m) {
			continue
		}

		f := f
		open := func() (io.ReadCloser, error) {
			if f.Flags&0x1 != 0 {
				return nil, ErrEncrypted
			}
			return f.Open()
		}
		if err := opts.extractMember(ctx, m, open); err != nil {
			return err
		}
	}
	return nil
}
