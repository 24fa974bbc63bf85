package view

import (
	"io/fs"
	"os"
	"path"
	"strings"
)

// Filesystem is the existence check the finder uses for every candidate file.
type Filesystem interface {
	Exists(path string) bool
}

// OSFilesystem checks candidates against the local disk.
type OSFilesystem struct{}

// Exists reports whether name is a regular file (or a symlink to one).
func (OSFilesystem) Exists(name string) bool {
	info, err := os.Stat(name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// FSFilesystem checks candidates inside an fs.FS, such as an embed.FS.
// Candidate paths are cleaned and stripped of any leading slash, since
// fs.FS names are always unrooted.
type FSFilesystem struct {
	FS fs.FS
}

// Exists implements Filesystem.
func (f FSFilesystem) Exists(name string) bool {
	info, err := fs.Stat(f.FS, FSName(name))
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// FSName converts a finder path into a valid fs.FS name.
func FSName(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		return "."
	}
	return name
}
