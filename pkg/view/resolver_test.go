package view

import (
	"errors"
	"slices"
	"testing"
)

type stubEngine struct {
	id       int
	contents string
	calls    []engineCall
}

type engineCall struct {
	path string
	data map[string]any
}

func (s *stubEngine) Get(path string, data map[string]any) (string, error) {
	s.calls = append(s.calls, engineCall{path: path, data: data})
	return s.contents, nil
}

// countingFactory returns an EngineFactory that builds a new stubEngine on
// every call, numbering them from 1.
func countingFactory(built *int) EngineFactory {
	return func() (Engine, error) {
		*built++
		return &stubEngine{id: *built}, nil
	}
}

func TestResolver_ResolvesOnce(t *testing.T) {
	r := NewEngineResolver(nil)
	var built int
	r.Register("foo", countingFactory(&built))

	first, err := r.Resolve("foo")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve("foo")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first != second {
		t.Error("Resolve() should return the memoized instance")
	}
	if built != 1 {
		t.Errorf("factory called %d times, want 1", built)
	}
}

func TestResolver_ReRegisterEvictsInstance(t *testing.T) {
	r := NewEngineResolver(nil)
	var built int
	r.Register("foo", countingFactory(&built))

	first, _ := r.Resolve("foo")
	r.Register("foo", countingFactory(&built))
	second, err := r.Resolve("foo")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first == second {
		t.Error("Resolve() after Register should build a new instance")
	}
	if got := second.(*stubEngine).id; got != 2 {
		t.Errorf("second engine id = %d, want 2", got)
	}
}

func TestResolver_UnknownEngine(t *testing.T) {
	r := NewEngineResolver(nil)
	if _, err := r.Resolve("foo"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownEngine", err)
	}
}

func TestResolver_FactoryErrorIsNotMemoized(t *testing.T) {
	r := NewEngineResolver(nil)
	boom := errors.New("boom")
	fail := true
	r.Register("foo", func() (Engine, error) {
		if fail {
			return nil, boom
		}
		return &stubEngine{}, nil
	})

	if _, err := r.Resolve("foo"); !errors.Is(err, boom) {
		t.Fatalf("Resolve() error = %v, want %v", err, boom)
	}
	fail = false
	if _, err := r.Resolve("foo"); err != nil {
		t.Fatalf("Resolve() after recovery error = %v", err)
	}
}

func TestResolver_Keys(t *testing.T) {
	r := NewEngineResolver(nil)
	var built int
	r.Register("pongo2", countingFactory(&built))
	r.Register("go", countingFactory(&built))

	if got, want := r.Keys(), []string{"go", "pongo2"}; !slices.Equal(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}
