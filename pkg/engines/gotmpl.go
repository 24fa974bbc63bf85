package engines

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/viewkit/pkg/view"
)

// GoEngineKey is the resolver key GoEngine is registered under.
const GoEngineKey = view.DefaultEngine

// leadingSpace is stripped from the front of every rendered view.
const leadingSpace = " \t\n\r\x00\x0b"

type parsedTemplate struct {
	tpl     *template.Template
	modTime time.Time
}

// GoEngine renders view files as html/template templates.
//
// Each file is parsed on first use and kept until Reset is called, unless
// caching is disabled. Nested *view.View values in the data render in place
// as trusted HTML.
// All methods are concurrent-safe.
type GoEngine struct {
	logger     *slog.Logger
	source     Source
	finder     view.Finder
	funcs      template.FuncMap
	cache      bool
	autoReload bool
	templates  map[string]parsedTemplate
	mu         sync.RWMutex
}

// NewGoEngine creates a GoEngine. See the Option functions for defaults.
func NewGoEngine(opts ...Option) *GoEngine {
	s := newSettings(opts)

	e := &GoEngine{
		logger:     s.logger,
		source:     s.source,
		finder:     s.finder,
		cache:      s.cache,
		autoReload: s.autoReload,
		templates:  map[string]parsedTemplate{},
	}
	e.funcs = DefaultFuncs()
	e.funcs["include"] = e.include
	maps.Copy(e.funcs, s.funcs)
	return e
}

// Get implements view.Engine.
func (e *GoEngine) Get(path string, data map[string]any) (string, error) {
	tpl, err := e.template(path)
	if err != nil {
		return "", err
	}

	ctx, err := renderNested(data, func(s string) any { return template.HTML(s) })
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err = tpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template [%s]: %w", path, err)
	}
	return strings.TrimLeft(buf.String(), leadingSpace), nil
}

// template returns the parsed template for path, parsing it if needed.
func (e *GoEngine) template(path string) (*template.Template, error) {
	var mt time.Time
	if e.autoReload {
		mt = modTime(e.source, path)
	}

	e.mu.RLock()
	cached, ok := e.templates[path]
	e.mu.RUnlock()
	if ok && (!e.autoReload || !mt.After(cached.modTime)) {
		return cached.tpl, nil
	}

	body, err := e.source.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template [%s]: %w", path, err)
	}
	tpl, err := template.New(path).Funcs(e.funcs).Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template [%s]: %w", path, err)
	}

	if e.cache {
		e.mu.Lock()
		e.templates[path] = parsedTemplate{tpl: tpl, modTime: mt}
		e.mu.Unlock()
		if ok {
			e.logger.Debug("Template reloaded", "path", path)
		}
	}
	return tpl, nil
}

// include renders another view by name with the given data, for use as
// {{ include "partials.header" . }}. The included file is rendered by this
// engine whatever its extension.
func (e *GoEngine) include(name string, data map[string]any) (template.HTML, error) {
	if e.finder == nil {
		return "", fmt.Errorf("include [%s]: engine has no finder", name)
	}
	p, err := e.finder.Find(name)
	if err != nil {
		return "", err
	}
	out, err := e.Get(p, data)
	if err != nil {
		return "", err
	}
	return template.HTML(out), nil
}

// Reset drops every parsed template.
func (e *GoEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.templates)
}

// Cached returns how many templates are currently parsed.
func (e *GoEngine) Cached() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.templates)
}

// renderNested copies data, rendering every *view.View value and wrapping
// the result with wrap.
func renderNested(data map[string]any, wrap func(string) any) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		nested, ok := v.(*view.View)
		if !ok {
			out[k] = v
			continue
		}
		s, err := nested.Render(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to render nested view [%s] under %q: %w", nested.Name(), k, err)
		}
		out[k] = wrap(s)
	}
	return out, nil
}
