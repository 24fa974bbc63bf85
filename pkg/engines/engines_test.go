package engines

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CTAG07/viewkit/pkg/view"
)

// writeViews creates the given files under a temporary directory and
// returns its path.
func writeViews(tb testing.TB, files map[string]string) string {
	tb.Helper()
	dir := tb.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			tb.Fatalf("failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			tb.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return filepath.ToSlash(dir)
}

// touch rewrites a file and pushes its modification time forward so auto
// reload notices the change regardless of filesystem timestamp precision.
func touch(tb testing.TB, p, body string) {
	tb.Helper()
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		tb.Fatalf("failed to rewrite %s: %v", p, err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(p, future, future); err != nil {
		tb.Fatalf("failed to touch %s: %v", p, err)
	}
}

// newFactory wires both engines to a finder over dir.
func newFactory(tb testing.TB, dir string, opts ...Option) *view.Factory {
	tb.Helper()
	finder := view.NewFileFinder([]string{dir})
	opts = append([]Option{WithFinder(finder)}, opts...)

	resolver := view.NewEngineResolver(nil)
	resolver.Register(GoEngineKey, func() (view.Engine, error) { return NewGoEngine(opts...), nil })
	factory := view.NewFactory(resolver, finder)
	factory.AddExtension(Pongo2Extension, Pongo2EngineKey, func() (view.Engine, error) {
		return NewPongo2Engine(opts...), nil
	})
	return factory
}

func render(tb testing.TB, factory *view.Factory, name string, data any) string {
	tb.Helper()
	v, err := factory.Make(name, data)
	if err != nil {
		tb.Fatalf("Make(%q) error = %v", name, err)
	}
	out, err := v.Render(nil)
	if err != nil {
		tb.Fatalf("Render(%q) error = %v", name, err)
	}
	return out
}
