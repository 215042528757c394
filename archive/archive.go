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

// Package archive extracts the members of zip and 7z archives.
//
// An Extractor reads an archive from a stream.Stream and hands every member
// accepted by Options.Include to a destination stream returned by
// Options.Create. Options.Done is called once per created member, with the
// destination stream and the extraction error of that member.
package archive

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/artifactimport/stream"
)

var (
	// ErrUnsupportedFormat is returned for archive formats without extractor.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrEncrypted is passed to Done for encrypted members that cannot be
	// decrypted.
	ErrEncrypted = errors.New("encrypted archive member")
)

// Kind is an archive container format.
type Kind int

const (
	Unknown Kind = iota
	Zip
	SevenZip
	Cab
)

func (k Kind) String() string {
	switch k {
	case Zip:
		return "zip"
	case SevenZip:
		return "7z"
	case Cab:
		return "cab"
	}
	return "unknown"
}

var magics = []struct {
	kind  Kind
	magic []byte
}{
	{Zip, []byte("PK\x03\x04")},
	{Zip, []byte("PK\x05\x06")},
	{SevenZip, []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}},
	{Cab, []byte("MSCF")},
}

// Member describes one file of an archive.
type Member struct {
	// Name is the slash separated path of the member inside the archive.
	Name     string
	Size     int64
	Modified time.Time
}

// Base returns the last element of the member name.
func (m Member) Base() string {
	return path.Base(m.Name)
}

// Options control a single extraction.
type Options struct {
	Password string

	// Include selects the members to extract. A nil Include selects all.
	Include func(Member) bool

	// Create returns the destination of a member. An error aborts the
	// extraction.
	Create func(ctx context.Context, m Member) (stream.Stream, error)

	// Done takes over the destination stream of a member.
	Done func(m Member, dst stream.Stream, err error)
}

// Extractor extracts archives of one Kind.
type Extractor interface {
	Kind() Kind
	Extract(ctx context.Context, src stream.Stream, opts Options) error
}

// Detect identifies the archive format by the magic bytes at the start of r.
func Detect(r io.ReaderAt) Kind {
	head := make([]byte, 8)
	n, _ := r.ReadAt(head, 0)
	head = head[:n]
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.kind
		}
	}
	return Unknown
}

// KindOf returns the archive format implied by the extension of name.
func KindOf(name string) Kind {
	switch strings.ToLower(path.Ext(name)) {
	case ".zip":
		return Zip
	case ".7z":
		return SevenZip
	case ".cab":
		return Cab
	}
	return Unknown
}

// New returns the extractor for k.
func New(k Kind) (Extractor, error) {
	switch k {
	case Zip:
		return &zipExtractor{}, nil
	case SevenZip:
		return &sevenZipExtractor{}, nil
	}
	return nil, errors.Wrap(ErrUnsupportedFormat, k.String())
}

// Supported reports whether k has an extractor.
func Supported(k Kind) bool {
	return k == Zip || k == SevenZip
}

// For returns the extractor for src. The content decides, the extension of
// name is used when the content is not recognized.
func For(src stream.Stream, name string) (Extractor, error) {
	k := Detect(src)
	if k == Unknown {
		k = KindOf(name)
	}
	return New(k)
}

func (o *Options) include(m Member) bool {
	return o.Include == nil || o.Include(m)
}

// extractMember copies one member to a new destination stream. Only the error
// of Create is returned, copy errors are reported to Done.
func (o *Options) extractMember(ctx context.Context, m Member, open func() (io.ReadCloser, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := o.Create(ctx, m)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", m.Name)
	}

	err = copyMember(dst, open)
	if err == nil {
		err = stream.Rewind(dst)
	}
	if o.Done != nil {
		o.Done(m, dst, errors.Wrapf(err, "could not extract %s", m.Name))
	} else {
		dst.Close() // nolint:errcheck
	}
	return nil
}

func copyMember(dst io.Writer, open func() (io.ReadCloser, error)) error {
	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(dst, rc)
	return err
}

func size(src stream.Stream) (int64, error) {
	n, err := src.Size()
	if err != nil {
		return 0, errors.Wrap(err, "could not get archive size")
	}
	return n, nil
}
