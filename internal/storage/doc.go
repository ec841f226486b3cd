// Package storage provides SQLite-based persistence for the embedding cache,
// document records and committed chunk sets.
//
// # Database Schema
//
// Tables:
//   - embedding_cache: content hash to vector, append-only (first write wins)
//   - documents: one row per document with the latest run status
//   - chunks: the committed chunk set of each document, one version at a time
//   - schema_version: applied migrations
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("contextchunk.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	// Commit a processed document; the previous version is removed in the
//	// same transaction
//	err = store.ReplaceDocumentChunks(ctx, &storage.Document{
//	    ID:      "doc-1",
//	    Version: version,
//	}, chunks)
//
// # Failed Runs
//
// SetDocumentStatus records a failed run without touching chunks, so readers
// keep seeing the last complete version.
//
// # Scans
//
// ScanChunks and ScanCacheEntries hold the only connection while the callback
// runs. Callbacks must not call back into the store.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite. Building with the sqlite_vec tag
// switches to github.com/mattn/go-sqlite3. Vectors are stored as little-endian
// float32 blobs and scored in Go in both modes.
package storage
