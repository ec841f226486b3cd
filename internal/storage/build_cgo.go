//go:build sqlite_vec
// +build sqlite_vec

package storage

// CGO build against the system-compatible mattn driver. Vector scoring still
// happens in Go; the tag only switches the SQLite engine.
//
//   CGO_ENABLED=1 go build -tags sqlite_vec ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by this build
	DriverName = "sqlite3"

	// BuildMode is reported by GetStatus
	BuildMode = "cgo"
)
