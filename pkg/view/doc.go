/*
Package view resolves logical view names to template files and renders them
through pluggable engines.

A view name is a dotted path such as "admin.users.index", optionally
prefixed by a namespace ("blog::posts.show"). The [FileFinder] searches an
ordered list of directories (or a namespace's hint directories) trying each
registered extension in priority order. The [Factory] maps the extension of
the file it found to an engine key, resolves that engine lazily through the
[EngineResolver] and returns a [View] bound to the path, the engine and the
caller's data. Rendering merges the factory's shared data underneath the
view's own data and runs any prepare hooks first.

Template syntax is the engines' business; see package engines for the Go
and pongo2 implementations.
*/
package view
