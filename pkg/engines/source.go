package engines

import (
	"io/fs"
	"os"
	"time"

	"github.com/CTAG07/viewkit/pkg/view"
)

// Source reads template bodies by the physical path the finder resolved.
type Source interface {
	ReadFile(path string) ([]byte, error)
}

// ModTimer is implemented by sources that can report when a template last
// changed. Engines with auto reload enabled use it to drop stale parses.
type ModTimer interface {
	ModTime(path string) (time.Time, error)
}

// OSSource reads templates from the local disk.
type OSSource struct{}

// ReadFile implements Source.
func (OSSource) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ModTime implements ModTimer.
func (OSSource) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// FSSource reads templates from an fs.FS. Paths are mapped with
// view.FSName, matching view.FSFilesystem.
type FSSource struct {
	FS fs.FS
}

// ReadFile implements Source.
func (s FSSource) ReadFile(path string) ([]byte, error) {
	return fs.ReadFile(s.FS, view.FSName(path))
}

// ModTime implements ModTimer.
func (s FSSource) ModTime(path string) (time.Time, error) {
	info, err := fs.Stat(s.FS, view.FSName(path))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// modTime returns the source's timestamp for path, or the zero time when
// the source cannot tell.
func modTime(src Source, path string) time.Time {
	mt, ok := src.(ModTimer)
	if !ok {
		return time.Time{}
	}
	t, err := mt.ModTime(path)
	if err != nil {
		return time.Time{}
	}
	return t
}
