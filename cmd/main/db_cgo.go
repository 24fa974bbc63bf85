//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

const dbDriver = "sqlite3"

func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open(dbDriver, dataSource+"?_journal_mode=WAL&_busy_timeout=5000")
}
