package engines

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/CTAG07/viewkit/pkg/view"
)

const (
	// Pongo2EngineKey is the resolver key Pongo2Engine is registered under.
	Pongo2EngineKey = "pongo2"
	// Pongo2Extension is the file extension bound to Pongo2Engine.
	Pongo2Extension = "j2"
)

// Pongo2Engine renders view files with pongo2 (Django/Jinja syntax).
//
// Nested *view.View values in the data are rendered to plain strings; mark
// them with |safe in the template to avoid escaping. Data keys that are not
// identifiers ([A-Za-z0-9_]) can't be referenced from pongo2 and are left
// out of the context.
// All methods are concurrent-safe.
type Pongo2Engine struct {
	logger     *slog.Logger
	set        *pongo2.TemplateSet
	cache      bool
	autoReload bool
	loaded     *loadTracker
}

// NewPongo2Engine creates a Pongo2Engine. WithFinder lets templates
// include and extend other views by name; WithDebug, WithCache and
// WithAutoReload control pongo2's template cache.
func NewPongo2Engine(opts ...Option) *Pongo2Engine {
	s := newSettings(opts)

	loaded := &loadTracker{source: s.source, modTimes: map[string]time.Time{}}
	loader := &finderLoader{finder: s.finder, source: s.source}
	if s.cache && s.autoReload {
		loader.loaded = loaded
	}
	set := pongo2.NewSet("viewkit", loader)
	set.Debug = s.debug

	return &Pongo2Engine{
		logger:     s.logger,
		set:        set,
		cache:      s.cache,
		autoReload: s.autoReload,
		loaded:     loaded,
	}
}

// Get implements view.Engine.
func (e *Pongo2Engine) Get(p string, data map[string]any) (string, error) {
	if e.cache && e.autoReload {
		e.evictIfStale()
	}

	var (
		tpl *pongo2.Template
		err error
	)
	if e.cache {
		tpl, err = e.set.FromCache(p)
	} else {
		tpl, err = e.set.FromFile(p)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load template [%s]: %w", p, err)
	}

	ctx, err := renderNested(data, func(s string) any { return s })
	if err != nil {
		return "", err
	}

	for k := range ctx {
		if !isIdentifier(k) {
			e.logger.Debug("Dropping data key pongo2 can't reference", "path", p, "key", k)
			delete(ctx, k)
		}
	}

	out, err := tpl.Execute(pongo2.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to execute template [%s]: %w", p, err)
	}
	return strings.TrimLeft(out, leadingSpace), nil
}

// evictIfStale empties pongo2's cache when any file loaded since the last
// eviction has a newer modification time. Includes and parents are parsed
// into the templates that use them, so one stale file invalidates them all.
func (e *Pongo2Engine) evictIfStale() {
	stale := e.loaded.stale()
	if stale == "" {
		return
	}
	e.set.CleanCache()
	e.loaded.reset()
	e.logger.Debug("Templates reloaded", "changed", stale)
}

// Reset empties pongo2's template cache.
func (e *Pongo2Engine) Reset() {
	e.set.CleanCache()
	e.loaded.reset()
}

// Set exposes the underlying template set, e.g. to add globals.
func (e *Pongo2Engine) Set() *pongo2.TemplateSet {
	return e.set
}

// finderLoader is a pongo2.TemplateLoader that resolves template names
// through a view.Finder and reads bodies from a Source.
type finderLoader struct {
	finder view.Finder
	source Source
	loaded *loadTracker
}

// Abs resolves name. Top level names arrive already resolved by the
// factory. Names referenced from a template are looked up as views first,
// then relative to the referencing template's directory.
func (l *finderLoader) Abs(base, name string) string {
	if base == "" {
		return name
	}
	if l.finder != nil {
		if p, err := l.finder.Find(name); err == nil {
			return p
		}
	}
	if path.IsAbs(name) {
		return name
	}
	return path.Join(path.Dir(base), name)
}

// Get reads the template body at p.
func (l *finderLoader) Get(p string) (io.Reader, error) {
	if l.loaded != nil {
		l.loaded.record(p)
	}
	body, err := l.source.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(body), nil
}

// loadTracker remembers the modification time of every file the loader
// read.
type loadTracker struct {
	source   Source
	modTimes map[string]time.Time
	mu       sync.Mutex
}

func (t *loadTracker) record(p string) {
	mt := modTime(t.source, p)
	t.mu.Lock()
	t.modTimes[p] = mt
	t.mu.Unlock()
}

// stale returns the first tracked path whose file changed, or "".
func (t *loadTracker) stale() string {
	t.mu.Lock()
	tracked := maps.Clone(t.modTimes)
	t.mu.Unlock()

	for p, last := range tracked {
		if modTime(t.source, p).After(last) {
			return p
		}
	}
	return ""
}

func (t *loadTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.modTimes)
}

func isIdentifier(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
