//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Default build: pure Go SQLite, no C toolchain needed.
//
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by this build
	DriverName = "sqlite"

	// BuildMode is reported by GetStatus
	BuildMode = "purego"
)
