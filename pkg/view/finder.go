package view

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// HintPathDelimiter separates a namespace from the view name ("ns::view").
const HintPathDelimiter = "::"

// DefaultExtension is the extension every finder starts with.
const DefaultExtension = "tmpl"

// Finder locates the file behind a logical view name.
type Finder interface {
	// Find returns the full path of the named view.
	Find(name string) (string, error)
	// AddLocation appends a directory to the global search paths.
	AddLocation(location string)
	// PrependLocation puts a directory in front of the global search paths.
	PrependLocation(location string)
	// AddNamespace appends hint paths to a namespace.
	AddNamespace(namespace string, hints ...string)
	// PrependNamespace puts hint paths in front of a namespace's existing ones.
	PrependNamespace(namespace string, hints ...string)
	// ReplaceNamespace discards a namespace's hint paths in favour of hints.
	ReplaceNamespace(namespace string, hints ...string)
	// AddExtension registers ext as the highest priority extension.
	AddExtension(ext string)
	// Flush drops every cached resolution.
	Flush()
}

// FinderOption configures a FileFinder at construction.
type FinderOption func(*FileFinder)

// WithExtensions replaces the default extension list. Order is priority order.
func WithExtensions(exts ...string) FinderOption {
	return func(f *FileFinder) {
		if len(exts) == 0 {
			return
		}
		f.extensions = make([]string, 0, len(exts))
		for _, ext := range exts {
			f.extensions = append(f.extensions, strings.TrimPrefix(ext, "."))
		}
	}
}

// WithFilesystem sets the existence check used for candidate files.
func WithFilesystem(fs Filesystem) FinderOption {
	return func(f *FileFinder) {
		if fs != nil {
			f.fs = fs
		}
	}
}

// FileFinder resolves view names against directories on a Filesystem.
// Resolutions are cached by trimmed name until Flush is called.
// All methods are concurrent-safe.
type FileFinder struct {
	fs         Filesystem
	paths      []string
	hints      map[string][]string
	extensions []string
	views      map[string]string
	generation uint64 // bumped by Flush
	mu         sync.RWMutex
}

// NewFileFinder creates a finder over the given search paths. Without
// options it checks the local disk and knows only DefaultExtension.
func NewFileFinder(paths []string, opts ...FinderOption) *FileFinder {
	f := &FileFinder{
		fs:         OSFilesystem{},
		paths:      slices.Clone(paths),
		hints:      map[string][]string{},
		extensions: []string{DefaultExtension},
		views:      map[string]string{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find returns the fully qualified location of the view.
//
// Namespaced names ("ns::a.b") search only the namespace's hint paths;
// everything else searches the global paths. Paths are tried in order, and
// within each path every extension is tried before moving on.
func (f *FileFinder) Find(name string) (string, error) {
	name = strings.TrimSpace(name)

	f.mu.RLock()
	if p, ok := f.views[name]; ok {
		f.mu.RUnlock()
		return p, nil
	}
	fsys := f.fs
	gen := f.generation
	exts := f.extensions
	paths := f.paths
	var hints []string
	var view string
	var err error
	namespaced := f.HasHintInformation(name)
	if namespaced {
		var namespace string
		namespace, view, err = f.parseNamespaceSegments(name)
		hints = f.hints[namespace]
	}
	f.mu.RUnlock()

	if err != nil {
		return "", err
	}

	var p string
	if namespaced {
		p, err = findInPaths(fsys, view, hints, exts)
	} else {
		p, err = findInPaths(fsys, name, paths, exts)
	}
	if err != nil {
		return "", err
	}

	// A Flush during the search makes this result stale for the cache.
	f.mu.Lock()
	if f.generation == gen {
		f.views[name] = p
	}
	f.mu.Unlock()

	return p, nil
}

// parseNamespaceSegments splits "ns::view". Callers hold at least a read lock.
func (f *FileFinder) parseNamespaceSegments(name string) (namespace, view string, err error) {
	segments := strings.Split(name, HintPathDelimiter)
	if len(segments) != 2 || segments[1] == "" {
		return "", "", fmt.Errorf("view [%s] has an invalid name: %w", name, ErrInvalidName)
	}
	if _, ok := f.hints[segments[0]]; !ok {
		return "", "", fmt.Errorf("no hint path defined for [%s]: %w", segments[0], ErrInvalidName)
	}
	return segments[0], segments[1], nil
}

func findInPaths(fsys Filesystem, name string, paths, exts []string) (string, error) {
	files := possibleViewFiles(name, exts)
	for _, dir := range paths {
		for _, file := range files {
			candidate := joinPath(dir, file)
			if fsys.Exists(candidate) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("view [%s]: %w", name, ErrNotFound)
}

// possibleViewFiles lists the file names a view may be stored under.
// A name already carrying a registered extension is used verbatim.
func possibleViewFiles(name string, exts []string) []string {
	if ext := extension(name); ext != "" && slices.Contains(exts, ext) {
		return []string{name}
	}
	base := strings.ReplaceAll(name, ".", "/")
	files := make([]string, len(exts))
	for i, ext := range exts {
		files[i] = base + "." + ext
	}
	return files
}

func joinPath(dir, file string) string {
	return strings.TrimRight(dir, `/\`) + "/" + file
}

// AddLocation appends a directory to the global search paths.
func (f *FileFinder) AddLocation(location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, location)
}

// PrependLocation puts a directory in front of the global search paths.
func (f *FileFinder) PrependLocation(location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append([]string{location}, f.paths...)
}

// AddNamespace appends hint paths to a namespace, creating it if needed.
func (f *FileFinder) AddNamespace(namespace string, hints ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints[namespace] = append(slices.Clone(f.hints[namespace]), hints...)
}

// PrependNamespace puts hint paths in front of a namespace's existing ones.
func (f *FileFinder) PrependNamespace(namespace string, hints ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints[namespace] = append(slices.Clone(hints), f.hints[namespace]...)
}

// ReplaceNamespace replaces every hint path of a namespace.
func (f *FileFinder) ReplaceNamespace(namespace string, hints ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints[namespace] = slices.Clone(hints)
}

// AddExtension registers ext in front of the others. An extension that is
// already known moves to the front instead of being duplicated.
func (f *FileFinder) AddExtension(ext string) {
	ext = strings.TrimPrefix(ext, ".")
	f.mu.Lock()
	defer f.mu.Unlock()
	exts := slices.DeleteFunc(slices.Clone(f.extensions), func(e string) bool { return e == ext })
	f.extensions = slices.Insert(exts, 0, ext)
}

// HasHintInformation reports whether name carries a namespace. A name that
// starts with the delimiter has an empty namespace and does not count.
func (f *FileFinder) HasHintInformation(name string) bool {
	return strings.Index(name, HintPathDelimiter) > 0
}

// Flush drops every cached resolution.
func (f *FileFinder) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = map[string]string{}
	f.generation++
}

// Paths returns a copy of the global search paths.
func (f *FileFinder) Paths() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.paths)
}

// Hints returns a copy of the namespace hint paths.
func (f *FileFinder) Hints() map[string][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string][]string, len(f.hints))
	for ns, h := range f.hints {
		out[ns] = slices.Clone(h)
	}
	return out
}

// Extensions returns the registered extensions in priority order.
func (f *FileFinder) Extensions() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.extensions)
}

// Filesystem returns the existence check in use.
func (f *FileFinder) Filesystem() Filesystem {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fs
}

// SetFilesystem swaps the existence check. Cached resolutions are kept;
// call Flush if they may no longer hold.
func (f *FileFinder) SetFilesystem(fs Filesystem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fs = fs
}
