package view

// Engine turns a resolved template path and its data into rendered text.
type Engine interface {
	Get(path string, data map[string]any) (string, error)
}

// EngineFunc adapts an ordinary function to the Engine interface.
type EngineFunc func(path string, data map[string]any) (string, error)

// Get implements Engine.
func (f EngineFunc) Get(path string, data map[string]any) (string, error) {
	return f(path, data)
}

// EngineFactory builds an engine on first use. See EngineResolver.
type EngineFactory func() (Engine, error)
