/*
Package store keeps view templates in a SQLite database.

A [Store] satisfies both view.Filesystem and engines.Source, so a finder
and its engines can resolve and read views from the database exactly as
they would from disk. Keys are the physical paths the finder builds from
its search paths, e.g. "/views/emails/welcome.tmpl".

The package is driver agnostic; open the *sql.DB with either
github.com/mattn/go-sqlite3 or modernc.org/sqlite and call SetupSchema once.
*/
package store
