package cmd

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/artifactimport/sqlitefs"
	"github.com/forensicanalysis/artifactimport/stream"
)

const (
	maxCompactLength  = 64
	maxCompactSegment = 4
)

// Unpack is the artifactimport unpack commandline subcommand. It copies the
// items of an extraction archive to a directory.
func Unpack() *cobra.Command {
	var mode string
	unpackCommand := &cobra.Command{
		Use:   "unpack <archive.sqlar> <directory>",
		Short: "Copy extracted items from a SQLite archive to a directory",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			dst := afero.NewBasePathFs(afero.NewOsFs(), args[1])
			return unpack(src, dst, mode, cmd.OutOrStdout())
		},
	}

	usage := `define the file names of unpacked items. can be one of:
folder (e.g. 'collect.zip/C/Users/user/NTUSER.DAT')
compact (e.g. 'coll_C_User_user_NTUSER.DAT')
basename (e.g. 'NTUSER.DAT')
`
	unpackCommand.Flags().StringVar(&mode, "mode", "folder", usage)
	return unpackCommand
}

func unpack(src, dst afero.Fs, mode string, out io.Writer) error {
	return afero.Walk(src, "/", func(srcPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		fullPath := filepath.ToSlash(srcPath)
		dest, err := destinationPath(fullPath, mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "unpack '%s' to '%s'\n", fullPath, dest)
		return copyFile(src, dst, fullPath, "/"+dest)
	})
}

func copyFile(src, dst afero.Fs, srcPath, dstPath string) error {
	r, err := stream.Open(src, srcPath)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := stream.Create(dst, dstPath)
	if err != nil {
		return err
	}
	if _, err := stream.CopyTo(w, r); err != nil {
		w.Close() // nolint:errcheck
		return errors.Wrapf(err, "could not copy %s", srcPath)
	}
	return w.Close()
}

func destinationPath(fullPath, mode string) (string, error) {
	switch mode {
	case "basename":
		return path.Base(fullPath), nil
	case "folder":
		return strings.TrimLeft(fullPath, "/"), nil
	case "compact":
		return compactPath(fullPath), nil
	}
	return "", errors.Errorf("unknown mode %q", mode)
}

// compactPath flattens a path into a file name of at most maxCompactLength
// characters. Directory names are shortened first, then the file name.
func compactPath(filePath string) string {
	segments := strings.Split(strings.TrimLeft(filePath, "/"), "/")
	compact := strings.Join(segments, "_")

	for i := 0; i < len(segments)-1 && len(compact) > maxCompactLength; i++ {
		segments[i] = head(segments[i], maxCompactSegment)
		compact = strings.Join(segments, "_")
	}

	if len(compact) > maxCompactLength {
		name := segments[len(segments)-1]
		ext := path.Ext(name)
		segments[len(segments)-1] = head(strings.TrimSuffix(name, ext), maxCompactSegment) + ext
		compact = strings.Join(segments, "_")
	}

	return tail(compact, maxCompactLength)
}

func head(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[:n]
}

func tail(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[len(s)-n:]
}

// Ls is the artifactimport ls commandline subcommand.
func Ls() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <archive.sqlar>",
		Short: "List extracted items of a SQLite archive",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()

			return afero.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", filepath.ToSlash(p), info.Size())
				}
				return nil
			})
		},
	}
}
