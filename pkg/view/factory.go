package view

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// DefaultEngine is the engine key bound to DefaultExtension.
const DefaultEngine = "go"

// rawPrefix marks an empty-view argument to RenderEach as literal text.
const rawPrefix = "raw|"

// PrepareFunc runs against a view right before it renders.
type PrepareFunc func(v *View) error

// ExtensionBinding associates a file extension with an engine key.
type ExtensionBinding struct {
	Extension string
	Engine    string
}

// Item is one key/value pair for RenderEach when the caller needs a
// specific iteration order.
type Item struct {
	Key   any
	Value any
}

type prepareHook struct {
	fn       PrepareFunc
	patterns []string
}

// Option configures a Factory at construction.
type Option func(*Factory)

// WithLogger sets the factory's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Factory is the entry point for making views. It owns the shared data
// and prepare hooks applied to every view it makes.
// All methods are concurrent-safe.
type Factory struct {
	logger     *slog.Logger
	engines    *EngineResolver
	finder     Finder
	extensions []ExtensionBinding
	shared     map[string]any
	prepare    []prepareHook
	mu         sync.RWMutex
}

// NewFactory creates a factory over the given resolver and finder. The
// factory starts with DefaultExtension bound to DefaultEngine.
func NewFactory(engines *EngineResolver, finder Finder, opts ...Option) *Factory {
	f := &Factory{
		logger:     orDiscard(nil),
		engines:    engines,
		finder:     finder,
		extensions: []ExtensionBinding{{Extension: DefaultExtension, Engine: DefaultEngine}},
		shared:     map[string]any{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Make resolves the named view and binds it to its engine.
//
// data may be nil, a map with string keys or a struct; mergeData maps sit
// underneath it in the given order, so data wins on collisions.
func (f *Factory) Make(name string, data any, mergeData ...map[string]any) (*View, error) {
	name = normalizeName(name)

	p, err := f.finder.Find(name)
	if err != nil {
		return nil, err
	}

	engine, err := f.engineFromPath(p)
	if err != nil {
		return nil, err
	}

	own, err := toData(data)
	if err != nil {
		return nil, fmt.Errorf("view [%s]: %w", name, err)
	}
	layers := append(slices.Clone(mergeData), own)

	f.logger.Debug("View resolved", "view", name, "path", p)
	return newView(f, engine, name, p, merge(layers...)), nil
}

// engineFromPath maps a resolved file to its engine instance.
func (f *Factory) engineFromPath(p string) (Engine, error) {
	ext := extension(p)

	f.mu.RLock()
	key, ok := "", false
	for _, b := range f.extensions {
		if b.Extension == ext {
			key, ok = b.Engine, true
			break
		}
	}
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unrecognized extension in file [%s]: %w", p, ErrUnknownExtension)
	}
	return f.engines.Resolve(key)
}

// normalizeName turns slashes into dots on the view side of a name. The
// namespace part, if any, is left untouched.
func normalizeName(name string) string {
	if !strings.Contains(name, HintPathDelimiter) {
		return strings.ReplaceAll(name, "/", ".")
	}
	parts := strings.SplitN(name, HintPathDelimiter, 2)
	return parts[0] + HintPathDelimiter + strings.ReplaceAll(parts[1], "/", ".")
}

// Exists reports whether the named view can be found. Lookup failures are
// never returned.
func (f *Factory) Exists(name string) bool {
	_, err := f.finder.Find(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidName) {
			f.logger.Warn("View lookup failed", "view", name, "error", err)
		}
		return false
	}
	return true
}

// RenderEach renders view once per element of items and concatenates the
// results. Each render gets the element under iterator and its key under
// "key".
//
// items may be a slice or array (keys are indexes), a map with keys in
// sorted order, or a []Item for an explicit order. When there are no
// items, empty is rendered once without data instead; an empty string
// renders nothing and a "raw|" prefix returns the rest of empty verbatim.
func (f *Factory) RenderEach(view string, items any, iterator string, empty string) (string, error) {
	pairs, err := itemsOf(items)
	if err != nil {
		return "", err
	}

	if len(pairs) == 0 {
		switch {
		case empty == "":
			return "", nil
		case strings.HasPrefix(empty, rawPrefix):
			return strings.TrimPrefix(empty, rawPrefix), nil
		}
		v, err := f.Make(empty, nil)
		if err != nil {
			return "", err
		}
		return v.Render(nil)
	}

	var sb strings.Builder
	for _, it := range pairs {
		v, err := f.Make(view, map[string]any{"key": it.Key, iterator: it.Value})
		if err != nil {
			return "", err
		}
		out, err := v.Render(nil)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

func itemsOf(items any) ([]Item, error) {
	if items == nil {
		return nil, nil
	}
	if pairs, ok := items.([]Item); ok {
		return pairs, nil
	}

	val := reflect.ValueOf(items)
	switch val.Kind() {
	case reflect.Slice, reflect.Array:
		pairs := make([]Item, val.Len())
		for i := range pairs {
			pairs[i] = Item{Key: i, Value: val.Index(i).Interface()}
		}
		return pairs, nil
	case reflect.Map:
		keys := val.MapKeys()
		slices.SortFunc(keys, compareKeys)
		pairs := make([]Item, len(keys))
		for i, k := range keys {
			pairs[i] = Item{Key: k.Interface(), Value: val.MapIndex(k).Interface()}
		}
		return pairs, nil
	}
	return nil, fmt.Errorf("render each: unsupported collection %T", items)
}

// compareKeys orders map keys of the same basic kind by value and
// everything else by their printed form.
func compareKeys(a, b reflect.Value) int {
	if a.Kind() == reflect.Interface && !a.IsNil() {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface && !b.IsNil() {
		b = b.Elem()
	}
	switch {
	case a.CanInt() && b.CanInt():
		return cmp.Compare(a.Int(), b.Int())
	case a.CanUint() && b.CanUint():
		return cmp.Compare(a.Uint(), b.Uint())
	case a.CanFloat() && b.CanFloat():
		return cmp.Compare(a.Float(), b.Float())
	case a.Kind() == reflect.String && b.Kind() == reflect.String:
		return cmp.Compare(a.String(), b.String())
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}

// AddExtension binds ext to the engine key and makes it the finder's
// highest priority extension. A non-nil factory is registered for the key.
func (f *Factory) AddExtension(ext, engine string, factory EngineFactory) {
	ext = strings.TrimPrefix(ext, ".")
	f.finder.AddExtension(ext)

	if factory != nil {
		f.engines.Register(engine, factory)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	bindings := slices.DeleteFunc(slices.Clone(f.extensions), func(b ExtensionBinding) bool { return b.Extension == ext })
	f.extensions = slices.Insert(bindings, 0, ExtensionBinding{Extension: ext, Engine: engine})
}

// Extensions returns the extension bindings, newest first.
func (f *Factory) Extensions() []ExtensionBinding {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.extensions)
}

// Prepare registers hooks that run before every view renders.
func (f *Factory) Prepare(hooks ...PrepareFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fn := range hooks {
		f.prepare = append(f.prepare, prepareHook{fn: fn})
	}
}

// PrepareFor registers a hook that only runs for views whose name matches
// one of the patterns (path.Match syntax, e.g. "admin.*").
func (f *Factory) PrepareFor(hook PrepareFunc, patterns ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepare = append(f.prepare, prepareHook{fn: hook, patterns: slices.Clone(patterns)})
}

// CallPrepare runs the applicable prepare hooks in registration order and
// stops at the first error.
func (f *Factory) CallPrepare(v *View) error {
	f.mu.RLock()
	hooks := slices.Clone(f.prepare)
	f.mu.RUnlock()

	for _, h := range hooks {
		if !h.matches(v.Name()) {
			continue
		}
		if err := h.fn(v); err != nil {
			return fmt.Errorf("prepare hook for view [%s]: %w", v.Name(), err)
		}
	}
	return nil
}

func (h prepareHook) matches(name string) bool {
	if len(h.patterns) == 0 {
		return true
	}
	for _, p := range h.patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Share adds a key to the data every view receives.
func (f *Factory) Share(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared[key] = value
}

// ShareData merges data into the shared data.
func (f *Factory) ShareData(data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maps.Copy(f.shared, data)
}

// Shared returns a copy of the shared data.
func (f *Factory) Shared() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.shared)
}

// Finder returns the factory's finder.
func (f *Factory) Finder() Finder { return f.finder }

// EngineResolver returns the factory's engine resolver.
func (f *Factory) EngineResolver() *EngineResolver { return f.engines }

// AddLocation appends a global search path.
func (f *Factory) AddLocation(location string) { f.finder.AddLocation(location) }

// PrependLocation prepends a global search path.
func (f *Factory) PrependLocation(location string) { f.finder.PrependLocation(location) }

// AddNamespace appends hint paths to a namespace.
func (f *Factory) AddNamespace(namespace string, hints ...string) {
	f.finder.AddNamespace(namespace, hints...)
}

// PrependNamespace prepends hint paths to a namespace.
func (f *Factory) PrependNamespace(namespace string, hints ...string) {
	f.finder.PrependNamespace(namespace, hints...)
}

// ReplaceNamespace replaces a namespace's hint paths.
func (f *Factory) ReplaceNamespace(namespace string, hints ...string) {
	f.finder.ReplaceNamespace(namespace, hints...)
}

// Flush drops the finder's cached resolutions.
func (f *Factory) Flush() { f.finder.Flush() }

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
