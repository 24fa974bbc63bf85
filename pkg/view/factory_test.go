package view

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"testing"
)

// stubFinder maps names to paths and records every lookup.
type stubFinder struct {
	views      map[string]string
	finds      []string
	extensions []string
	flushed    int
}

func newStubFinder(views map[string]string) *stubFinder {
	return &stubFinder{views: views}
}

func (s *stubFinder) Find(name string) (string, error) {
	s.finds = append(s.finds, name)
	if p, ok := s.views[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("view [%s]: %w", name, ErrNotFound)
}

func (s *stubFinder) AddLocation(string)                 {}
func (s *stubFinder) PrependLocation(string)             {}
func (s *stubFinder) AddNamespace(string, ...string)     {}
func (s *stubFinder) PrependNamespace(string, ...string) {}
func (s *stubFinder) ReplaceNamespace(string, ...string) {}
func (s *stubFinder) AddExtension(ext string)            { s.extensions = append(s.extensions, ext) }
func (s *stubFinder) Flush()                             { s.flushed++ }

// echoEngine renders "<path>|<iterator value>|<key>" style output for
// RenderEach assertions.
type echoEngine struct {
	calls []map[string]any
}

func (e *echoEngine) Get(path string, data map[string]any) (string, error) {
	e.calls = append(e.calls, data)
	if v, ok := data["val"]; ok {
		return fmt.Sprintf("[%v=%v]", data["key"], v), nil
	}
	return "<" + path + ">", nil
}

func getFactory(views map[string]string) (*Factory, *stubFinder, *EngineResolver) {
	finder := newStubFinder(views)
	resolver := NewEngineResolver(nil)
	return NewFactory(resolver, finder), finder, resolver
}

func TestFactory_MakeCreatesViewWithProperPathAndEngine(t *testing.T) {
	factory, finder, resolver := getFactory(map[string]string{"view": "path.tmpl"})
	engine := &stubEngine{}
	resolver.Register("go", func() (Engine, error) { return engine, nil })

	v, err := factory.Make("view", map[string]any{"foo": "bar", "baz": "mine"}, map[string]any{"baz": "boom", "qux": 1})
	if err != nil {
		t.Fatalf("Make() error = %v", err)
	}
	if v.Engine() != engine {
		t.Error("Make() bound the wrong engine")
	}
	if v.Path() != "path.tmpl" {
		t.Errorf("Path() = %q", v.Path())
	}
	want := map[string]any{"foo": "bar", "baz": "mine", "qux": 1}
	if got := v.Data(); !maps.Equal(got, want) {
		t.Errorf("Data() = %v, want %v", got, want)
	}
	if !slices.Equal(finder.finds, []string{"view"}) {
		t.Errorf("finds = %v", finder.finds)
	}
}

func TestFactory_MakeErrors(t *testing.T) {
	factory, _, resolver := getFactory(map[string]string{"view": "view.foo", "ok": "ok.tmpl"})

	if _, err := factory.Make("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Make(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := factory.Make("view", nil); !errors.Is(err, ErrUnknownExtension) {
		t.Errorf("Make(view) error = %v, want ErrUnknownExtension", err)
	}
	if _, err := factory.Make("ok", nil); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("Make(ok) error = %v, want ErrUnknownEngine", err)
	}
	resolver.Register("go", func() (Engine, error) { return &stubEngine{}, nil })
	if _, err := factory.Make("ok", 3.5); err == nil {
		t.Error("Make() with scalar data should fail")
	}
}

func TestFactory_ExistsPassesAndFailsViews(t *testing.T) {
	factory, _, _ := getFactory(map[string]string{"bar": "path.tmpl"})

	if factory.Exists("foo") {
		t.Error("Exists(foo) = true, want false")
	}
	if !factory.Exists("bar") {
		t.Error("Exists(bar) = false, want true")
	}
}

func TestFactory_ExistsSwallowsInvalidNames(t *testing.T) {
	finder := NewFileFinder([]string{"/views"}, WithFilesystem(newRecordingFS()))
	factory := NewFactory(NewEngineResolver(nil), finder)

	if factory.Exists("nope::view") {
		t.Error("Exists() of an unregistered namespace should be false")
	}
}

func TestFactory_RenderEach(t *testing.T) {
	factory, finder, resolver := getFactory(map[string]string{"row": "row.tmpl", "empty": "empty.tmpl"})
	engine := &echoEngine{}
	resolver.Register("go", func() (Engine, error) { return engine, nil })

	out, err := factory.RenderEach("row", map[string]string{"k2": "v2", "k1": "v1"}, "val", "")
	if err != nil {
		t.Fatalf("RenderEach() error = %v", err)
	}
	if out != "[k1=v1][k2=v2]" {
		t.Errorf("RenderEach() = %q", out)
	}
	wantFirst := map[string]any{"val": "v1", "key": "k1"}
	if !maps.Equal(engine.calls[0], wantFirst) {
		t.Errorf("first render data = %v, want %v", engine.calls[0], wantFirst)
	}

	out, err = factory.RenderEach("row", []Item{{Key: "b", Value: 2}, {Key: "a", Value: 1}}, "val", "")
	if err != nil {
		t.Fatalf("RenderEach() error = %v", err)
	}
	if out != "[b=2][a=1]" {
		t.Errorf("RenderEach() with explicit order = %q", out)
	}

	out, err = factory.RenderEach("row", []string{"x", "y"}, "val", "")
	if err != nil {
		t.Fatalf("RenderEach() error = %v", err)
	}
	if out != "[0=x][1=y]" {
		t.Errorf("RenderEach() over a slice = %q", out)
	}

	finder.finds = nil
	engine.calls = nil
	out, err = factory.RenderEach("row", map[string]string{}, "val", "empty")
	if err != nil {
		t.Fatalf("RenderEach() error = %v", err)
	}
	if out != "<empty.tmpl>" {
		t.Errorf("RenderEach() empty = %q", out)
	}
	if !slices.Equal(finder.finds, []string{"empty"}) || len(engine.calls) != 1 || len(engine.calls[0]) != 0 {
		t.Errorf("empty view rendered %v with %v", finder.finds, engine.calls)
	}
}

func TestFactory_RenderEachSortsMapKeysByValue(t *testing.T) {
	factory, _, resolver := getFactory(map[string]string{"row": "row.tmpl"})
	resolver.Register("go", func() (Engine, error) { return &echoEngine{}, nil })

	tests := []struct {
		name  string
		items any
		want  string
	}{
		{name: "ints", items: map[int]string{10: "ten", 2: "two", -1: "neg"}, want: "[-1=neg][2=two][10=ten]"},
		{name: "uints", items: map[uint8]int{20: 1, 3: 2}, want: "[3=2][20=1]"},
		{name: "floats", items: map[float64]string{1.5: "a", 0.25: "b"}, want: "[0.25=b][1.5=a]"},
		{name: "interface keys", items: map[any]string{10: "ten", 9: "nine"}, want: "[9=nine][10=ten]"},
		{name: "mixed interface keys", items: map[any]int{"b": 1, 3: 2}, want: "[3=2][b=1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := factory.RenderEach("row", tt.items, "val", "")
			if err != nil {
				t.Fatalf("RenderEach() error = %v", err)
			}
			if out != tt.want {
				t.Errorf("RenderEach() = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestFactory_RenderEachEmptyVariants(t *testing.T) {
	factory, finder, _ := getFactory(nil)

	out, err := factory.RenderEach("row", nil, "val", "")
	if err != nil || out != "" {
		t.Errorf("RenderEach() = %q, %v", out, err)
	}
	out, err = factory.RenderEach("row", []int{}, "val", "raw|<p>nothing</p>")
	if err != nil || out != "<p>nothing</p>" {
		t.Errorf("RenderEach() raw = %q, %v", out, err)
	}
	if len(finder.finds) != 0 {
		t.Errorf("no view should be looked up, got %v", finder.finds)
	}
	if _, err := factory.RenderEach("row", 42, "val", ""); err == nil {
		t.Error("RenderEach() over a scalar should fail")
	}
}

func TestFactory_AddExtensionWithCustomResolver(t *testing.T) {
	factory, finder, _ := getFactory(map[string]string{"view": "path.foo"})
	engine := &stubEngine{}

	factory.AddExtension("foo", "bar", func() (Engine, error) { return engine, nil })

	v, err := factory.Make("view", nil)
	if err != nil {
		t.Fatalf("Make() error = %v", err)
	}
	if v.Engine() != engine {
		t.Error("Make() should use the engine registered with the extension")
	}
	if !slices.Equal(finder.extensions, []string{"foo"}) {
		t.Errorf("finder extensions = %v", finder.extensions)
	}
}

func TestFactory_AddingExtensionPrependsNotAppends(t *testing.T) {
	factory, _, _ := getFactory(nil)
	factory.AddExtension("foo", "bar", nil)
	factory.AddExtension("baz", "bar", nil)
	factory.AddExtension("foo", "qux", nil)

	want := []ExtensionBinding{
		{Extension: "foo", Engine: "qux"},
		{Extension: "baz", Engine: "bar"},
		{Extension: DefaultExtension, Engine: DefaultEngine},
	}
	if got := factory.Extensions(); !slices.Equal(got, want) {
		t.Errorf("Extensions() = %v, want %v", got, want)
	}
}

func TestFactory_MakeWithSlashAndDot(t *testing.T) {
	factory, finder, resolver := getFactory(map[string]string{
		"foo.bar":                 "path.tmpl",
		"vendor/package::foo.bar": "path.tmpl",
	})
	resolver.Register("go", func() (Engine, error) { return &stubEngine{}, nil })

	for _, name := range []string{"foo/bar", "foo.bar", "vendor/package::foo/bar", "vendor/package::foo.bar"} {
		if _, err := factory.Make(name, nil); err != nil {
			t.Fatalf("Make(%q) error = %v", name, err)
		}
	}
	want := []string{"foo.bar", "foo.bar", "vendor/package::foo.bar", "vendor/package::foo.bar"}
	if !slices.Equal(finder.finds, want) {
		t.Errorf("finds = %v, want %v", finder.finds, want)
	}
}

func TestFactory_PrepareFor(t *testing.T) {
	factory, _, resolver := getFactory(map[string]string{
		"admin.users": "a.tmpl",
		"home":        "h.tmpl",
	})
	resolver.Register("go", func() (Engine, error) { return &stubEngine{}, nil })

	var order []string
	factory.Prepare(func(v *View) error {
		order = append(order, "global:"+v.Name())
		return nil
	})
	factory.PrepareFor(func(v *View) error {
		order = append(order, "admin:"+v.Name())
		v.With("menu", "admin")
		return nil
	}, "admin.*")

	for _, name := range []string{"admin.users", "home"} {
		v, err := factory.Make(name, nil)
		if err != nil {
			t.Fatalf("Make() error = %v", err)
		}
		if _, err := v.Render(nil); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if name == "admin.users" && v.Get("menu") != "admin" {
			t.Error("targeted hook should inject data")
		}
	}

	want := []string{"global:admin.users", "admin:admin.users", "global:home"}
	if !slices.Equal(order, want) {
		t.Errorf("hook order = %v, want %v", order, want)
	}
}

func TestFactory_SharedData(t *testing.T) {
	factory, _, _ := getFactory(nil)
	factory.Share("a", 1)
	factory.ShareData(map[string]any{"b": 2, "a": 3})

	shared := factory.Shared()
	if !maps.Equal(shared, map[string]any{"a": 3, "b": 2}) {
		t.Errorf("Shared() = %v", shared)
	}
	shared["c"] = 4
	if _, ok := factory.Shared()["c"]; ok {
		t.Error("Shared() should return a copy")
	}
}

func TestFactory_EndToEndWithFileFinder(t *testing.T) {
	fs := newRecordingFS("/views/layouts/main.tmpl", "/themes/blog/post.j2")
	finder := NewFileFinder([]string{"/views"}, WithFilesystem(fs))
	resolver := NewEngineResolver(nil)
	resolver.Register("go", func() (Engine, error) { return &echoEngine{}, nil })
	factory := NewFactory(resolver, finder)
	factory.AddExtension("j2", "pongo2", func() (Engine, error) { return &echoEngine{}, nil })
	factory.AddNamespace("blog", "/themes/blog")

	out, err := factory.RenderEach("layouts/main", []string{}, "val", "blog::post")
	if err != nil {
		t.Fatalf("RenderEach() error = %v", err)
	}
	if out != "</themes/blog/post.j2>" {
		t.Errorf("RenderEach() = %q", out)
	}

	v, err := factory.Make("layouts/main", nil)
	if err != nil {
		t.Fatalf("Make() error = %v", err)
	}
	if v.Path() != "/views/layouts/main.tmpl" {
		t.Errorf("Path() = %q", v.Path())
	}

	factory.Flush()
	fs.calls = nil
	if !factory.Exists("layouts.main") {
		t.Error("Exists() after Flush should still find the view")
	}
	if len(fs.calls) == 0 {
		t.Error("Flush() should force a fresh search")
	}
}
