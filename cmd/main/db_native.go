//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

const dbDriver = "sqlite"

func initDB(dataSource string) (*sql.DB, error) {
	return sql.Open(dbDriver, dataSource+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}
