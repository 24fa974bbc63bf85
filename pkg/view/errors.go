package view

import "errors"

var (
	// ErrInvalidName is returned for a malformed namespaced view name, or one
	// that references a namespace with no registered hint paths.
	ErrInvalidName = errors.New("view: invalid view name")
	// ErrNotFound is returned when no candidate file exists in any searched location.
	ErrNotFound = errors.New("view: not found")
	// ErrUnknownEngine is returned when resolving an engine key that was never registered.
	ErrUnknownEngine = errors.New("view: unknown engine")
	// ErrUnknownExtension is returned when a resolved file's extension is not
	// bound to any engine.
	ErrUnknownExtension = errors.New("view: unrecognized extension")
)
