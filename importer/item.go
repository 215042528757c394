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

package importer

import (
	"path"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/forensicanalysis/artifactimport/stream"
)

// cached is a value that is computed on first use and never again.
type cached[T any] struct {
	ok bool
	v  T
}

func (c *cached[T]) get(compute func() T) T {
	if !c.ok {
		c.v = compute()
		c.ok = true
	}
	return c.v
}

// Item is a unit of work of the pipeline. An item is owned by exactly one
// stage at a time, a stage must not touch an item after handing it on.
type Item struct {
	ID uuid.UUID
	// Name is the leaf name, FullName the relative path of the item.
	Name     string
	FullName string

	InputFile  string
	OutputFile string

	ComputerName string
	SystemType   string
	Timestamp    time.Time

	Stream stream.Stream

	FileBytesCharged int64
	MemBytesCharged  int64

	ImportStart    time.Time
	ImportEnd      time.Time
	BytesExtracted int64
	LinesImported  int64

	definition *Definition
	format     cached[Format]
	ignore     cached[bool]
	extract    cached[bool]
	importRule cached[*Rule]

	done atomic.Bool
}

// NewItem creates an item for the artifact at fullName.
func NewItem(def *Definition, fullName string, s stream.Stream) *Item {
	return &Item{
		ID:         uuid.New(),
		Name:       path.Base(fullName),
		FullName:   fullName,
		Stream:     s,
		Timestamp:  time.Now().UTC(),
		definition: def,
	}
}

// child creates an item that was produced from i, like an archive member.
func (i *Item) child(fullName string, s stream.Stream) *Item {
	c := NewItem(i.definition, fullName, s)
	c.InputFile = i.InputFile
	c.ComputerName = i.ComputerName
	c.SystemType = i.SystemType
	c.Timestamp = i.Timestamp
	return c
}

// Format returns the classification of the item. It is computed once from
// the extension or the leading bytes of the stream. Empty streams are Data.
func (i *Item) Format() Format {
	return i.format.get(func() Format {
		if i.Stream != nil {
			if size, err := i.Stream.Size(); err == nil && size == 0 {
				return Data
			}
		}
		if f := FormatOf(i.Name); f != Undetermined {
			return f
		}
		if i.Stream == nil {
			return Data
		}
		f, err := sniff(i.Stream)
		if err != nil {
			return Data
		}
		return f
	})
}

// IsToIgnore reports whether an ignore rule matches the item.
func (i *Item) IsToIgnore() bool {
	return i.ignore.get(func() bool {
		_, ok := i.definition.Match(ActionIgnore, i.Name, i.FullName)
		return ok
	})
}

// IsToImport reports whether an import rule matches the item.
func (i *Item) IsToImport() bool {
	return i.ImportRule() != nil
}

// ImportRule returns the first matching import rule or nil.
func (i *Item) ImportRule() *Rule {
	return i.importRule.get(func() *Rule {
		r, _ := i.definition.Match(ActionImport, i.Name, i.FullName)
		return r
	})
}

// IsToExtract reports whether an extract rule matches the item.
func (i *Item) IsToExtract() bool {
	return i.extract.get(func() bool {
		_, ok := i.definition.Match(ActionExtract, i.Name, i.FullName)
		return ok
	})
}

// IsToExpand is the negation of IsToExtract. Expand rules are not consulted,
// expanding is the fallback for everything not extracted.
func (i *Item) IsToExpand() bool {
	return !i.IsToExtract()
}

// Table returns the table of the matching import rule.
func (i *Item) Table() string {
	if r := i.ImportRule(); r != nil {
		return r.Table
	}
	return ""
}

// Password returns the archive password configured for the item.
func (i *Item) Password() string {
	return i.definition.Password(i.Name, i.FullName)
}

// Charged returns the number of bytes reserved for the item.
func (i *Item) Charged() int64 {
	return i.FileBytesCharged + i.MemBytesCharged
}

// Rewind moves the item stream to its first byte.
func (i *Item) Rewind() error {
	if i.Stream == nil {
		return nil
	}
	return stream.Rewind(i.Stream)
}

// CloseStream closes and detaches the stream of the item.
func (i *Item) CloseStream() error {
	if i.Stream == nil {
		return nil
	}
	err := i.Stream.Close()
	i.Stream = nil
	return err
}
