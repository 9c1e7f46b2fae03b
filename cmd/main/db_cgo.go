//go:build cgo_sqlite

package main

import (
	_ "github.com/mattn/go-sqlite3"
)

// Built with -tags cgo_sqlite the server uses the mattn driver.
const sqliteDriver = "sqlite3"
