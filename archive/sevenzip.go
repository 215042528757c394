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

	"github.com/bodgit/sevenzip"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactimport/stream"
)

type sevenZipExtractor struct{}

func (*sevenZipExtractor) Kind() Kind { return SevenZip }

func (*sevenZipExtractor) Extract(ctx context.Context, src stream.Stream, opts Options) error {
	n, err := size(src)
	if err != nil {
		return err
	}
	r, err := sevenzip.NewReaderWithPassword(src, n, opts.Password)
	if err != nil {
		return errors.Wrap(err, "could not read 7z")
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		m := Member{Name: f.Name, Size: int64(f.UncompressedSize), Modified: f.Modified}
		if !opts.include(m) {
			continue
		}
		if err := opts.extractMember(ctx, m, f.Open); err != nil {
			return err
		}
	}
	return nil
}
