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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/artifactimport/stream"
)

var testDefinition = &Definition{Rules: []Rule{
	{Action: ActionIgnore, NameMatch: "*.tmp"},
	{Action: ActionImport, NameMatch: "*.csv", Table: "T"},
	{Action: ActionImport, NameMatch: "*.evtx", Table: "events"},
	{Action: ActionExtract, NameMatch: "*.txt"},
	{Action: ActionExtract, NameMatch: "config/**/*.xml"},
	{Action: ActionExtract, NameMatch: "keep.zip"},
	{Action: ActionExpand, NameMatch: "secret.7z", Password: "infected"},
}}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rules   []Rule
		wantErr bool
	}{
		{"valid", testDefinition.Rules, false},
		{"empty pattern", []Rule{{Action: ActionExtract}}, true},
		{"bad pattern", []Rule{{Action: ActionExtract, NameMatch: "[a-"}}, true},
		{"import without table", []Rule{{Action: ActionImport, NameMatch: "*.csv"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Definition{Rules: tt.rules}).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefinition_Match(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		action   Action
		want     bool
	}{
		{"ignore exact", "a/b.tmp", ActionIgnore, true},
		{"ignore stem", "data.tmp.csv", ActionIgnore, true},
		{"import case insensitive", "logs/DATA.CSV", ActionImport, true},
		{"extract", "x/readme.txt", ActionExtract, true},
		{"full name pattern", "config/a/b/settings.xml", ActionExtract, true},
		{"full name pattern mismatch", "other/settings.xml", ActionExtract, false},
		{"no rule", "image.bin", ActionExtract, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := NewItem(testDefinition, tt.fullName, nil)
			_, got := testDefinition.Match(tt.action, item.Name, item.FullName)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRule_matches(t *testing.T) {
	tests := []struct {
		pattern  string
		fullName string
		want     bool
	}{
		{"*.tmp", "data.tmp.csv", true},
		{"data", "data.exe", true},
		{"data", "logs/DATA.exe.bak", true},
		{"*.csv", "x.csv.gz", true},
		{"*.csv", "csv.txt", false},
		{"data", "metadata.exe", false},
		{"logs/*.csv", "logs/a.csv.gz", true},
		{"logs/*.csv", "other/a.csv", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.fullName, func(t *testing.T) {
			r := Rule{Action: ActionExtract, NameMatch: tt.pattern}
			assert.Equal(t, tt.want, r.matches(path.Base(tt.fullName), tt.fullName))
		})
	}
}

func TestTriage_StemOfUnimportableFormat(t *testing.T) {
	def := &Definition{Rules: []Rule{{Action: ActionImport, NameMatch: "*.csv", Table: "T"}}}
	s := memStream(t, []byte("\x1f\x8b\x08"))
	defer s.Close()
	item := NewItem(def, "x.csv.gz", s)
	assert.True(t, item.IsToImport())
	assert.Equal(t, RequestIgnore, Triage(item))
}

func TestDefinition_Password(t *testing.T) {
	assert.Equal(t, "infected", testDefinition.Password("secret.7z", "a/secret.7z"))
	assert.Equal(t, "", testDefinition.Password("other.7z", "other.7z"))
	assert.Equal(t, "", (*Definition)(nil).Password("x", "x"))
}

func TestParseAction(t *testing.T) {
	for _, a := range []Action{ActionIgnore, ActionImport, ActionExtract, ActionExpand} {
		got, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseAction("EXTRACT")
	require.NoError(t, err)
	assert.Equal(t, ActionExtract, got)

	_, err = ParseAction("unknown")
	assert.Error(t, err)
}

func memStream(t *testing.T, content []byte) stream.Stream {
	t.Helper()
	f, err := stream.Create(afero.NewMemMapFs(), "/in/"+t.Name())
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, stream.Rewind(f))
	return f
}

func TestItem_Format(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    Format
	}{
		{"collect.p7b", []byte("x"), Envelopped},
		{"collect.ZIP", []byte("x"), Archive},
		{"sample.csv", []byte("a,b\n"), CSV},
		{"empty.csv", nil, Data},
		{"SYSTEM", []byte("regf\x00\x00\x00\x00"), RegistryHive},
		{"Application.evt", []byte("ElfFile\x00"), EventLog},
		{"blob", []byte("\x00\x01\x02"), Data},
		{"notes.txt", []byte("hello"), Text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memStream(t, tt.content)
			defer s.Close()
			item := NewItem(testDefinition, tt.name, s)

			assert.Equal(t, tt.want, item.Format())
			assert.Equal(t, tt.want, item.Format())

			pos, err := s.Seek(0, io.SeekCurrent)
			require.NoError(t, err)
			assert.Equal(t, int64(0), pos)
		})
	}
}

func TestItem_FormatCached(t *testing.T) {
	s := memStream(t, []byte("\x00\x01\x02\x03\x04"))
	defer s.Close()
	item := NewItem(testDefinition, "blob", s)
	require.Equal(t, Data, item.Format())

	_, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = s.Write([]byte("regf\x00"))
	require.NoError(t, err)
	require.NoError(t, stream.Rewind(s))

	assert.Equal(t, Data, item.Format())
	assert.Equal(t, RegistryHive, NewItem(testDefinition, "blob", s).Format())
}

func TestSniff_RestoresPosition(t *testing.T) {
	r := bytes.NewReader([]byte("regf0123456789"))
	_, err := r.Seek(3, io.SeekStart)
	require.NoError(t, err)

	f, err := sniff(r)
	require.NoError(t, err)
	assert.Equal(t, RegistryHive, f)

	pos, err := r.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)
}

func TestItem_Child(t *testing.T) {
	parent := NewItem(testDefinition, "host/collect.zip", nil)
	parent.InputFile = "/in/collect.zip"
	parent.ComputerName = "ws1"
	parent.SystemType = "workstation"

	c := parent.child("host/collect.zip/logs/a.csv", nil)
	assert.Equal(t, "a.csv", c.Name)
	assert.Equal(t, "/in/collect.zip", c.InputFile)
	assert.Equal(t, "ws1", c.ComputerName)
	assert.Equal(t, "workstation", c.SystemType)
	assert.Equal(t, parent.Timestamp, c.Timestamp)
	assert.NotEqual(t, parent.ID, c.ID)
	assert.Equal(t, "T", c.Table())
}
