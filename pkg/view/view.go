package view

import "maps"

// RenderCallback post-processes rendered contents. A non-empty return value
// replaces the contents; an empty one leaves them as they were.
type RenderCallback func(v *View, contents string) string

// View is a template path bound to an engine and a bag of data.
//
// Views are created by Factory.Make and belong to the caller that made
// them; they are not safe for concurrent mutation.
type View struct {
	factory *Factory
	engine  Engine
	name    string
	path    string
	data    map[string]any
}

func newView(factory *Factory, engine Engine, name, path string, data map[string]any) *View {
	if data == nil {
		data = map[string]any{}
	}
	return &View{
		factory: factory,
		engine:  engine,
		name:    name,
		path:    path,
		data:    data,
	}
}

// Render produces the view's contents.
//
// Prepare hooks registered on the factory run first and may change the
// view's data. The engine then receives the factory's shared data overlaid
// with the view's own data. The view's data is not modified by the merge.
func (v *View) Render(callback RenderCallback) (string, error) {
	var shared map[string]any
	if v.factory != nil {
		if err := v.factory.CallPrepare(v); err != nil {
			return "", err
		}
		shared = v.factory.Shared()
	}

	contents, err := v.engine.Get(v.path, merge(shared, v.data))
	if err != nil {
		return "", err
	}

	if callback != nil {
		if res := callback(v, contents); res != "" {
			return res, nil
		}
	}
	return contents, nil
}

// String renders the view without a callback. Errors yield "".
func (v *View) String() string {
	s, err := v.Render(nil)
	if err != nil {
		return ""
	}
	return s
}

// With sets a single data key.
func (v *View) With(key string, value any) *View {
	v.data[key] = value
	return v
}

// WithData merges data into the view; later values win.
func (v *View) WithData(data map[string]any) *View {
	maps.Copy(v.data, data)
	return v
}

// Nest makes a sub-view through the owning factory and stores it under key.
// The sub-view is returned, not the receiver.
func (v *View) Nest(key, name string, data any) (*View, error) {
	sub, err := v.factory.Make(name, data)
	if err != nil {
		return nil, err
	}
	v.data[key] = sub
	return sub, nil
}

// Data returns a copy of the view's data.
func (v *View) Data() map[string]any {
	return maps.Clone(v.data)
}

// Get returns the value stored under key, or nil.
func (v *View) Get(key string) any {
	return v.data[key]
}

// Lookup returns the value stored under key and whether it was present.
func (v *View) Lookup(key string) (any, bool) {
	val, ok := v.data[key]
	return val, ok
}

// Set stores value under key.
func (v *View) Set(key string, value any) {
	v.data[key] = value
}

// Has reports whether key is present.
func (v *View) Has(key string) bool {
	_, ok := v.data[key]
	return ok
}

// Delete removes key.
func (v *View) Delete(key string) {
	delete(v.data, key)
}

// Name returns the normalized view name the view was made with.
func (v *View) Name() string { return v.name }

// Path returns the resolved template path.
func (v *View) Path() string { return v.path }

// SetPath points the view at another template file.
func (v *View) SetPath(path string) { v.path = path }

// Engine returns the engine the view renders with.
func (v *View) Engine() Engine { return v.engine }

// Factory returns the factory that made the view.
func (v *View) Factory() *Factory { return v.factory }
