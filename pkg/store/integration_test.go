package store

import (
	"context"
	"testing"

	"github.com/CTAG07/viewkit/pkg/engines"
	"github.com/CTAG07/viewkit/pkg/view"
)

func TestStore_BacksFinderAndEngines(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, "/views/layout.tmpl", []byte(`<p>{{ .msg }}</p>{{ include "partials.sig" . }}`))
	_ = s.Put(ctx, "/views/partials/sig.tmpl", []byte(`-- {{ .from }}`))
	_ = s.Put(ctx, "/views/card.j2", []byte(`[{{ msg }}]`))

	finder := view.NewFileFinder([]string{"/views"}, view.WithFilesystem(s))
	resolver := view.NewEngineResolver(nil)
	resolver.Register(engines.GoEngineKey, func() (view.Engine, error) {
		return engines.NewGoEngine(engines.WithSource(s), engines.WithFinder(finder), engines.WithAutoReload(true)), nil
	})
	factory := view.NewFactory(resolver, finder)
	factory.AddExtension(engines.Pongo2Extension, engines.Pongo2EngineKey, func() (view.Engine, error) {
		return engines.NewPongo2Engine(engines.WithSource(s), engines.WithFinder(finder)), nil
	})

	renderView := func(name string) string {
		t.Helper()
		v, err := factory.Make(name, map[string]any{"msg": "hi", "from": "ops"})
		if err != nil {
			t.Fatalf("Make(%q) error = %v", name, err)
		}
		out, err := v.Render(nil)
		if err != nil {
			t.Fatalf("Render(%q) error = %v", name, err)
		}
		return out
	}

	if out := renderView("layout"); out != "<p>hi</p>-- ops" {
		t.Errorf("layout = %q", out)
	}
	if out := renderView("card"); out != "[hi]" {
		t.Errorf("card = %q", out)
	}

	// Put stamps a newer time, so the Go engine reparses.
	_ = s.Put(ctx, "/views/layout.tmpl", []byte(`<h1>{{ .msg }}</h1>`))
	if out := renderView("layout"); out != "<h1>hi</h1>" {
		t.Errorf("layout after update = %q", out)
	}

	if factory.Exists("missing") {
		t.Error("Exists(missing) = true")
	}
}
