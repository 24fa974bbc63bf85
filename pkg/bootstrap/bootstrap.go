// Package bootstrap builds a ready view.Factory from a config.Config.
package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/CTAG07/viewkit/pkg/config"
	"github.com/CTAG07/viewkit/pkg/engines"
	"github.com/CTAG07/viewkit/pkg/view"
)

type options struct {
	fs     view.Filesystem
	source engines.Source
	funcs  []engines.Option
}

// Option customizes New.
type Option func(*options)

// WithFilesystem makes the finder check candidates against fs instead of
// the local disk.
func WithFilesystem(fs view.Filesystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithSource makes the engines read templates from src instead of the
// local disk.
func WithSource(src engines.Source) Option {
	return func(o *options) { o.source = src }
}

// WithStore is shorthand for a backend that is both a Filesystem and a
// Source, such as *store.Store.
func WithStore(s interface {
	view.Filesystem
	engines.Source
}) Option {
	return func(o *options) {
		o.fs = s
		o.source = s
	}
}

// WithEngineOptions passes extra options to every engine, e.g.
// engines.WithFuncs.
func WithEngineOptions(opts ...engines.Option) Option {
	return func(o *options) { o.funcs = append(o.funcs, opts...) }
}

// Factory bundles the factory with the engines New created so callers can
// reset their caches.
type Factory struct {
	*view.Factory
	Go     *engines.GoEngine
	Pongo2 *engines.Pongo2Engine
}

// Reset flushes the finder cache and drops every parsed template.
func (f *Factory) Reset() {
	f.Flush()
	if f.Go != nil {
		f.Go.Reset()
	}
	if f.Pongo2 != nil {
		f.Pongo2.Reset()
	}
}

// New builds a factory from cfg. The Go engine is always registered for
// ".tmpl" and any extra extensions; "pongo2" in cfg.Engines adds the pongo2
// engine for ".j2". Unknown engine names are an error.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	o := options{fs: view.OSFilesystem{}, source: engines.OSSource{}}
	for _, opt := range opts {
		opt(&o)
	}

	finder := view.NewFileFinder(cfg.Paths, view.WithFilesystem(o.fs))
	resolver := view.NewEngineResolver(logger)
	factory := view.NewFactory(resolver, finder, view.WithLogger(logger))

	base := []engines.Option{
		engines.WithLogger(logger),
		engines.WithSource(o.source),
		engines.WithFinder(finder),
	}
	base = append(base, o.funcs...)

	out := &Factory{Factory: factory}
	out.Go = engines.NewGoEngine(append(slices.Clone(base), engines.WithAutoReload(cfg.AutoReload))...)
	resolver.Register(engines.GoEngineKey, func() (view.Engine, error) { return out.Go, nil })

	for _, ext := range slices.Backward(cfg.Extensions) {
		factory.AddExtension(ext, engines.GoEngineKey, nil)
	}

	for _, name := range cfg.Engines {
		switch name {
		case engines.GoEngineKey:
		case engines.Pongo2EngineKey:
			out.Pongo2 = engines.NewPongo2Engine(append(slices.Clone(base),
				engines.WithDebug(cfg.Pongo2.Debug),
				engines.WithCache(cfg.Pongo2.Cache),
				engines.WithAutoReload(cfg.Pongo2.AutoReload),
			)...)
			factory.AddExtension(engines.Pongo2Extension, engines.Pongo2EngineKey, func() (view.Engine, error) {
				return out.Pongo2, nil
			})
		default:
			return nil, fmt.Errorf("engine %q: %w", name, view.ErrUnknownEngine)
		}
	}

	for ns, hints := range cfg.Namespaces {
		factory.AddNamespace(ns, hints...)
	}
	factory.ShareData(cfg.Shared)

	logger.Debug("View factory built",
		"paths", []string(cfg.Paths),
		"engines", resolver.Keys(),
		"namespaces", len(cfg.Namespaces),
	)
	return out, nil
}
