package engines

import (
	"html/template"
	"io"
	"log/slog"
	"maps"

	"github.com/CTAG07/viewkit/pkg/view"
)

// settings is shared by both engines.
type settings struct {
	logger     *slog.Logger
	source     Source
	finder     view.Finder
	funcs      template.FuncMap
	cache      bool
	autoReload bool
	debug      bool
}

func newSettings(opts []Option) settings {
	s := settings{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		source: OSSource{},
		funcs:  template.FuncMap{},
		cache:  true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures an engine.
type Option func(*settings)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSource sets where template bodies are read from. Defaults to OSSource.
func WithSource(src Source) Option {
	return func(s *settings) {
		if src != nil {
			s.source = src
		}
	}
}

// WithFinder lets templates refer to other views by name. The Go engine
// exposes it through the "include" function, pongo2 through its loader.
func WithFinder(f view.Finder) Option {
	return func(s *settings) { s.finder = f }
}

// WithFuncs adds template functions. Later additions override earlier ones
// and the defaults. Only the Go engine uses them.
func WithFuncs(funcs template.FuncMap) Option {
	return func(s *settings) { maps.Copy(s.funcs, funcs) }
}

// WithCache toggles caching of parsed templates. Enabled by default.
func WithCache(enabled bool) Option {
	return func(s *settings) { s.cache = enabled }
}

// WithAutoReload re-parses a cached template when its source reports a
// newer modification time.
func WithAutoReload(enabled bool) Option {
	return func(s *settings) { s.autoReload = enabled }
}

// WithDebug turns on pongo2's debug mode, which also bypasses its cache.
func WithDebug(enabled bool) Option {
	return func(s *settings) { s.debug = enabled }
}
