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
	"bytes"
	"io"
	"path"
	"strings"
)

// Format is the triage classification of an item.
type Format int

const (
	Undetermined Format = iota
	Envelopped
	Archive
	CSV
	XML
	Text
	RegistryHive
	EventLog
	Data
)

var formatNames = map[Format]string{
	Undetermined: "undetermined",
	Envelopped:   "envelopped",
	Archive:      "archive",
	CSV:          "csv",
	XML:          "xml",
	Text:         "text",
	RegistryHive: "registryhive",
	EventLog:     "eventlog",
	Data:         "data",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// Importable reports whether items of this format can be imported into a
// table.
func (f Format) Importable() bool {
	return f == CSV || f == EventLog || f == RegistryHive
}

var extensions = map[string]Format{
	".p7b": Envelopped,
	".7z":  Archive,
	".zip": Archive,
	".cab": Archive,
	".csv": CSV,
	".xml": XML,
	".txt": Text,
	".log": Text,
}

var magics = []struct {
	format Format
	magic  []byte
}{
	{RegistryHive, []byte("regf")},
	{EventLog, []byte("ElfFile")},
}

// sniffSize is the number of leading bytes inspected for magic values.
const sniffSize = 16

// FormatOf returns the format implied by the extension of name or
// Undetermined.
func FormatOf(name string) Format {
	return extensions[strings.ToLower(path.Ext(name))]
}

// sniff inspects the first bytes of r. The position of r is restored.
func sniff(r io.ReadSeeker) (f Format, err error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return Undetermined, err
	}
	defer func() {
		if _, serr := r.Seek(pos, io.SeekStart); serr != nil && err == nil {
			err = serr
		}
	}()

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Undetermined, err
	}
	head := make([]byte, sniffSize)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Undetermined, err
	}
	head = head[:n]

	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.format, nil
		}
	}
	return Data, nil
}
