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

package sqlitefs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T) *FS {
	t.Helper()
	fs, err := New(filepath.Join(t.TempDir(), "extract.sqlar"))
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestFS_WriteRead(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"small", []byte("x")},
		{"compressible", bytes.Repeat([]byte("forensic artifact "), 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFS(t)
			require.NoError(t, fs.MkdirAll("/dir/sub", 0755))
			require.NoError(t, afero.WriteFile(fs, "/dir/sub/file.bin", tt.content, 0644))

			info, err := fs.Stat("/dir/sub/file.bin")
			require.NoError(t, err)
			assert.False(t, info.IsDir())
			assert.Equal(t, int64(len(tt.content)), info.Size())

			got, err := afero.ReadFile(fs, "/dir/sub/file.bin")
			require.NoError(t, err)
			assert.Equal(t, len(tt.content), len(got))
			assert.True(t, bytes.Equal(tt.content, got))
		})
	}
}

func TestFS_ReadAtSeek(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, afero.WriteFile(fs, "/hive", []byte("regf0000"), 0644))

	f, err := fs.Open("/hive")
	require.NoError(t, err)
	defer f.Close()

	p := make([]byte, 4)
	_, err = f.ReadAt(p, 4)
	require.NoError(t, err)
	assert.Equal(t, "0000", string(p))

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(f, p)
	require.NoError(t, err)
	assert.Equal(t, "regf", string(p))
}

func TestFS_Readdir(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.MkdirAll("/a/b", 0755))
	require.NoError(t, afero.WriteFile(fs, "/a/one.txt", []byte("1"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/a/b/two.txt", []byte("2"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/a_b.txt", []byte("3"), 0644))

	d, err := fs.Open("/a")
	require.NoError(t, err)
	names, err := d.Readdirnames(0)
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"b", "one.txt"}, names)

	var walked []string
	err = afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			walked = append(walked, path)
		}
		return err
	})
	require.NoError(t, err)
	sort.Strings(walked)
	assert.Equal(t, []string{"/a/b/two.txt", "/a/one.txt", "/a_b.txt"}, walked)
}

func TestFS_RenameRemove(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.MkdirAll("/old", 0755))
	require.NoError(t, afero.WriteFile(fs, "/old/f.txt", []byte("f"), 0644))

	require.NoError(t, fs.Rename("/old", "/new"))
	exists, err := afero.Exists(fs, "/new/f.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = afero.Exists(fs, "/old/f.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.Remove("/new/f.txt"))
	assert.True(t, os.IsNotExist(fs.Remove("/new/f.txt")))

	require.NoError(t, afero.WriteFile(fs, "/new/g.txt", []byte("g"), 0644))
	require.NoError(t, fs.RemoveAll("/new"))
	_, err = fs.Stat("/new")
	assert.True(t, os.IsNotExist(err))
}

func TestFS_Concurrent(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.MkdirAll("/out", 0755))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := filepath.Join("/out", string(rune('a'+i))+".txt")
			assert.NoError(t, afero.WriteFile(fs, name, bytes.Repeat([]byte{byte(i)}, 100), 0644))
		}(i)
	}
	wg.Wait()

	infos, err := afero.ReadDir(fs, "/out")
	require.NoError(t, err)
	assert.Len(t, infos, 20)
}
