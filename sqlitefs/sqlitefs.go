// Package sqlitefs implements an afero.Fs stored in a SQLite archive (sqlar)
// file. It is used as extraction output when files should be collected into a
// single database instead of a directory.
package sqlitefs

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"crawshaw.io/sqlite"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrNotImplemented is returned for file operations the archive cannot do.
var ErrNotImplemented = errors.New("not implemented")

// FS is a sqlar archive. All methods are safe for concurrent use.
type FS struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

var _ afero.Fs = (*FS)(nil)

const table = `CREATE TABLE IF NOT EXISTS sqlar(
  name TEXT PRIMARY KEY,  -- name of the file
  mode INT,               -- access permissions
  mtime INT,              -- last modification time
  sz INT,                 -- original file size
  data BLOB               -- compressed content
);`

// New opens or creates the archive at url.
func New(url string) (*FS, error) {
	if url != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(url), 0750); err != nil {
			return nil, err
		}
	}
	conn, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}
	fs := &FS{conn: conn}
	if err := fs.exec(table, nil); err != nil {
		conn.Close() // nolint:errcheck
		return nil, err
	}
	return fs, nil
}

// exec runs query once, bind sets its parameters. Must be called with fs.mu
// held.
func (fs *FS) exec(query string, bind func(stmt *sqlite.Stmt)) error {
	stmt, err := fs.conn.Prepare(query)
	if err != nil {
		return err
	}
	if bind != nil {
		bind(stmt)
	}
	if _, err := stmt.Step(); err != nil {
		stmt.Finalize() // nolint:errcheck
		return err
	}
	return stmt.Finalize()
}

func (fs *FS) Chmod(name string, mode os.FileMode) error {
	name = normalizeFilename(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.exec("UPDATE sqlar SET mode = $mode WHERE name = $name", func(stmt *sqlite.Stmt) {
		stmt.SetText("$name", name)
		stmt.SetInt64("$mode", int64(mode))
	})
}

// Chown does nothing, the archive does not store owners.
func (fs *FS) Chown(string, int, int) error {
	return nil
}

func (fs *FS) Chtimes(name string, _ time.Time, mtime time.Time) error {
	name = normalizeFilename(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.exec("UPDATE sqlar SET mtime = $mtime WHERE name = $name", func(stmt *sqlite.Stmt) {
		stmt.SetText("$name", name)
		stmt.SetInt64("$mtime", mtime.Unix())
	})
}

func (fs *FS) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	name = normalizeFilename(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mkdir(name, perm)
}

func (fs *FS) mkdir(name string, perm os.FileMode) error {
	return fs.exec(`INSERT OR IGNORE INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, NULL)`, func(stmt *sqlite.Stmt) {
		stmt.SetText("$name", name)
		stmt.SetInt64("$mode", int64(perm|os.ModeDir))
		stmt.SetInt64("$mtime", time.Now().Unix())
	})
}

func (fs *FS) MkdirAll(p string, perm os.FileMode) error {
	p = normalizeFilename(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	all := "/"
	if err := fs.mkdir(all, perm); err != nil {
		return err
	}
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		all = path.Join(all, part)
		if err := fs.mkdir(all, perm); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) Name() string {
	return "SQLiteFS"
}

func (fs *FS) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens a file for reading or creates a file for writing. Written
// content is stored when the file is closed. Appending is not supported.
func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	name = normalizeFilename(name)

	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		if flag&os.O_APPEND != 0 {
			return nil, ErrNotImplemented
		}
		if flag&os.O_CREATE == 0 {
			if _, err := fs.Stat(name); err != nil {
				return nil, err
			}
		}
		if err := fs.createFile(name, perm); err != nil {
			return nil, err
		}
		return newWriteItem(fs, name, perm), nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, data, err := fs.load(name)
	if err != nil {
		return nil, err
	}
	var children []os.FileInfo
	if info.dir {
		children, err = fs.selectChildren(name)
		if err != nil {
			return nil, err
		}
	}
	return newReadItem(name, info, data, children)
}

// load reads the metadata and the stored data of name. Must be called with
// fs.mu held.
func (fs *FS) load(name string) (*Info, []byte, error) {
	stmt, err := fs.conn.Prepare(`SELECT mode, mtime, sz, data IS NULL AS dir, data FROM sqlar WHERE name = $name`)
	if err != nil {
		return nil, nil, err
	}
	defer stmt.Finalize() // nolint:errcheck

	stmt.SetText("$name", name)
	hasRow, err := stmt.Step()
	if err != nil {
		return nil, nil, err
	} else if !hasRow {
		return nil, nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}

	info := scanInfo(stmt, path.Base(name))
	var data []byte
	if !info.dir {
		data = make([]byte, stmt.GetLen("data"))
		stmt.GetBytes("data", data)
	}
	return info, data, nil
}

func scanInfo(stmt *sqlite.Stmt, name string) *Info {
	return &Info{
		name:  name,
		sz:    stmt.GetInt64("sz"),
		mode:  os.FileMode(stmt.GetInt64("mode")),
		mtime: time.Unix(stmt.GetInt64("mtime"), 0),
		dir:   stmt.GetInt64("dir") == 1,
	}
}

// selectChildren must be called with fs.mu held.
func (fs *FS) selectChildren(name string) ([]os.FileInfo, error) {
	stmt, err := fs.conn.Prepare(`SELECT name, mode, mtime, sz, data IS NULL AS dir FROM sqlar WHERE substr(name, 1, length($prefix)) = $prefix`)
	if err != nil {
		return nil, err
	}
	defer stmt.Finalize() // nolint:errcheck

	prefix := strings.TrimSuffix(name, "/") + "/"
	stmt.SetText("$prefix", prefix)

	var children []os.FileInfo
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		childName := stmt.GetText("name")
		rel := childName[len(prefix):]
		if rel == "" || strings.Contains(rel, "/") {
			continue
		}
		children = append(children, scanInfo(stmt, rel))
	}
	return children, nil
}

func (fs *FS) createFile(name string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := fs.exec(`INSERT OR REPLACE INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, 0, zeroblob(0))`, func(stmt *sqlite.Stmt) {
		stmt.SetText("$name", name)
		stmt.SetInt64("$mode", int64(perm))
		stmt.SetInt64("$mtime", time.Now().Unix())
	})
	return errors.Wrapf(err, "failed to create %s", name)
}

// store replaces the content of name.
func (fs *FS) store(name string, sz int64, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.exec(`UPDATE sqlar SET sz = $sz, data = $data, mtime = $mtime WHERE name = $name`, func(stmt *sqlite.Stmt) {
		stmt.SetText("$name", name)
		stmt.SetInt64("$sz", sz)
		stmt.SetInt64("$mtime", time.Now().Unix())
		if len(data) == 0 {
			stmt.SetZeroBlob("$data", 0)
		} else {
			stmt.SetBytes("$data", data)
		}
	})
}

func (fs *FS) Remove(name string) error {
	name = normalizeFilename(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := fs.exec(`DELETE FROM sqlar WHERE name = $name`, func(stmt *sqlite.Stmt) {
		stmt.SetText("$name", name)
	})
	if err != nil {
		return err
	}
	if fs.conn.Changes() == 0 {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	return nil
}

func (fs *FS) RemoveAll(p string) error {
	p = normalizeFilename(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.exec(`DELETE FROM sqlar WHERE name = $name OR substr(name, 1, length($prefix)) = $prefix`, func(stmt *sqlite.Stmt) {
		stmt.SetText("$name", p)
		stmt.SetText("$prefix", strings.TrimSuffix(p, "/")+"/")
	})
}

// Rename moves a file or a directory with all its children.
func (fs *FS) Rename(oldname, newname string) error {
	oldname = normalizeFilename(oldname)
	newname = normalizeFilename(newname)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.exec(`UPDATE sqlar SET name = $newname || substr(name, length($oldname) + 1)
		WHERE name = $oldname OR substr(name, 1, length($oldname) + 1) = $oldname || '/'`, func(stmt *sqlite.Stmt) {
		stmt.SetText("$oldname", oldname)
		stmt.SetText("$newname", newname)
	})
}

func (fs *FS) Stat(name string) (os.FileInfo, error) {
	name = normalizeFilename(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	stmt, err := fs.conn.Prepare("SELECT mode, mtime, sz, data IS NULL AS dir FROM sqlar WHERE name = $name")
	if err != nil {
		return nil, err
	}
	defer stmt.Finalize() // nolint:errcheck

	stmt.SetText("$name", name)
	hasRow, err := stmt.Step()
	if err != nil {
		return nil, err
	} else if !hasRow {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return scanInfo(stmt, path.Base(name)), nil
}

func (fs *FS) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.conn.Close()
}

type Info struct {
	sz    int64
	mtime time.Time
	mode  os.FileMode
	dir   bool
	name  string
}

func (i *Info) Name() string       { return i.name }
func (i *Info) Size() int64        { return i.sz }
func (i *Info) Mode() os.FileMode  { return i.mode }
func (i *Info) ModTime() time.Time { return i.mtime }
func (i *Info) IsDir() bool        { return i.dir }
func (i *Info) Sys() interface{}   { return nil }

func normalizeFilename(name string) string {
	if name == "." || name == "" || name == "/" {
		return "/"
	}
	name = filepath.ToSlash(name)
	name = "/" + strings.Trim(name, "/")
	return name
}
