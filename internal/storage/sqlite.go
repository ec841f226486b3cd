package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/contextchunk-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrNestedTx is returned by BeginTx on a transaction
	ErrNestedTx = errors.New("nested transactions are not supported")
)

// maxInParams bounds the number of bound parameters in one IN (...) list
const maxInParams = 500

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens dbPath (":memory:" for an ephemeral store) and
// applies pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// inTx runs fn inside a fresh transaction, committing only when fn succeeds
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Embedding cache operations

// putCacheEntriesWithQuerier inserts entries that are not yet present. Existing
// keys are left untouched so the first write wins.
func (s *SQLiteStorage) putCacheEntriesWithQuerier(ctx context.Context, q querier, entries []CacheEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	stmt, err := q.PrepareContext(ctx, `
		INSERT OR IGNORE INTO embedding_cache (content_hash, vector, dimension, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	inserted := 0
	for _, e := range entries {
		if e.ContentHash == "" || len(e.Vector) == 0 {
			return inserted, fmt.Errorf("invalid cache entry %q", e.ContentHash)
		}
		res, err := stmt.ExecContext(ctx, e.ContentHash, serializeVector(e.Vector), len(e.Vector), now)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert cache entry: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

func (s *SQLiteStorage) PutCacheEntries(ctx context.Context, entries []CacheEntry) (int, error) {
	var inserted int
	err := s.inTx(ctx, func(q querier) error {
		var err error
		inserted, err = s.putCacheEntriesWithQuerier(ctx, q, entries)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// getCacheEntriesWithQuerier looks up hashes in slices of maxInParams
func (s *SQLiteStorage) getCacheEntriesWithQuerier(ctx context.Context, q querier, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	for start := 0; start < len(hashes); start += maxInParams {
		end := start + maxInParams
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]

		query := `SELECT content_hash, vector FROM embedding_cache WHERE content_hash IN (` +
			placeholders(len(batch)) + `)`
		rows, err := q.QueryContext(ctx, query, stringArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query cache: %w", err)
		}
		for rows.Next() {
			var hash string
			var blob []byte
			if err := rows.Scan(&hash, &blob); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[hash] = deserializeVector(blob)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

func (s *SQLiteStorage) GetCacheEntries(ctx context.Context, hashes []string) (map[string][]float32, error) {
	return s.getCacheEntriesWithQuerier(ctx, s.querier(), hashes)
}

// scanCacheEntriesWithQuerier streams every cache entry in insertion order
func (s *SQLiteStorage) scanCacheEntriesWithQuerier(ctx context.Context, q querier, fn func(CacheEntry) error) error {
	rows, err := q.QueryContext(ctx, `SELECT content_hash, vector, created_at FROM embedding_cache ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to scan cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e CacheEntry
		var blob []byte
		if err := rows.Scan(&e.ContentHash, &blob, &e.CreatedAt); err != nil {
			return err
		}
		e.Vector = deserializeVector(blob)
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) ScanCacheEntries(ctx context.Context, fn func(CacheEntry) error) error {
	return s.scanCacheEntriesWithQuerier(ctx, s.querier(), fn)
}

func (s *SQLiteStorage) countCacheEntriesWithQuerier(ctx context.Context, q querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) CountCacheEntries(ctx context.Context) (int, error) {
	return s.countCacheEntriesWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) clearCacheWithQuerier(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM embedding_cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ClearCache(ctx context.Context) error {
	return s.clearCacheWithQuerier(ctx, s.querier())
}

// Document operations

const documentColumns = `id, title, version, content_type, content_hash, chunk_count, status, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(r rowScanner) (*Document, error) {
	var doc Document
	var contentType, status string
	var errMsg sql.NullString
	if err := r.Scan(&doc.ID, &doc.Title, &doc.Version, &contentType, &doc.ContentHash,
		&doc.ChunkCount, &status, &errMsg, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.ContentType = types.ContentType(contentType)
	doc.Status = DocumentStatus(status)
	if errMsg.Valid {
		doc.Error = &errMsg.String
	}
	return &doc, nil
}

func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, documentID string) (*Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, documentID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), documentID)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*Document, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// setDocumentStatusWithQuerier records the outcome of a run without touching
// the committed chunk set. An empty title keeps the stored one.
func (s *SQLiteStorage) setDocumentStatusWithQuerier(ctx context.Context, q querier, documentID, title string, status DocumentStatus, errMsg string) error {
	if documentID == "" {
		return types.ErrMissingDocumentID
	}
	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, title, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE documents.title END,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, documentID, title, string(status), nullString(errMsg), now, now)
	if err != nil {
		return fmt.Errorf("failed to set document status: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SetDocumentStatus(ctx context.Context, documentID, title string, status DocumentStatus, errMsg string) error {
	return s.setDocumentStatusWithQuerier(ctx, s.querier(), documentID, title, status, errMsg)
}

func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, documentID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, documentID string) error {
	return s.inTx(ctx, func(q querier) error {
		return s.deleteDocumentWithQuerier(ctx, q, documentID)
	})
}

// Chunk operations

const chunkColumns = `id, document_id, version, chunk_order, content, overlap_prefix,
	start_sentence, end_sentence, start_char, end_char, token_count,
	embedding, contextual_embedding, chunk_context, chunk_summary, document_section,
	content_type, prev_chunk_id, next_chunk_id`

func scanChunk(r rowScanner) (*types.Chunk, error) {
	var c types.Chunk
	var embedding, contextual []byte
	var chunkContext, summary, section, prev, next sql.NullString
	var contentType string

	if err := r.Scan(&c.ID, &c.DocumentID, &c.Version, &c.ChunkOrder, &c.Content, &c.OverlapPrefix,
		&c.StartSentence, &c.EndSentence, &c.StartChar, &c.EndChar, &c.TokenCount,
		&embedding, &contextual, &chunkContext, &summary, &section,
		&contentType, &prev, &next); err != nil {
		return nil, err
	}

	c.Embedding = deserializeVector(embedding)
	if len(contextual) > 0 {
		c.ContextualEmbedding = deserializeVector(contextual)
	}
	c.ChunkContext = fromNullString(chunkContext)
	c.ChunkSummary = fromNullString(summary)
	c.DocumentSection = fromNullString(section)
	c.ContentType = types.ContentType(contentType)
	c.PrevChunkID = fromNullString(prev)
	c.NextChunkID = fromNullString(next)
	return &c, nil
}

// replaceDocumentChunksWithQuerier commits doc as ready and swaps its chunk
// set for chunks. Callers must run it inside one transaction.
func (s *SQLiteStorage) replaceDocumentChunksWithQuerier(ctx context.Context, q querier, doc *Document, chunks []types.Chunk) error {
	if doc == nil || doc.ID == "" {
		return types.ErrMissingDocumentID
	}
	for i := range chunks {
		if chunks[i].DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %d belongs to %s, not %s",
				types.ErrBrokenChunkLinks, i, chunks[i].DocumentID, doc.ID)
		}
	}
	if err := types.ValidateChunkSet(chunks, 0, 0); err != nil {
		return err
	}

	now := time.Now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, title, version, content_type, content_hash, chunk_count, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			version = excluded.version,
			content_type = excluded.content_type,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			status = excluded.status,
			error = NULL,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Title, doc.Version, string(doc.ContentType), doc.ContentHash,
		len(chunks), string(DocumentReady), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}

	stmt, err := q.PrepareContext(ctx, `INSERT INTO chunks (`+chunkColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range chunks {
		c := &chunks[i]
		var contextual interface{}
		if c.ContextualEmbedding != nil {
			contextual = serializeVector(c.ContextualEmbedding)
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Version, c.ChunkOrder, c.Content, c.OverlapPrefix,
			c.StartSentence, c.EndSentence, c.StartChar, c.EndChar, c.TokenCount,
			serializeVector(c.Embedding), contextual,
			toNullString(c.ChunkContext), toNullString(c.ChunkSummary), toNullString(c.DocumentSection),
			string(c.ContentType), toNullString(c.PrevChunkID), toNullString(c.NextChunkID), now)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return fmt.Errorf("%w: chunk %s", ErrAlreadyExists, c.ID)
			}
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	doc.ChunkCount = len(chunks)
	doc.Status = DocumentReady
	doc.Error = nil
	doc.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) ReplaceDocumentChunks(ctx context.Context, doc *Document, chunks []types.Chunk) error {
	return s.inTx(ctx, func(q querier) error {
		return s.replaceDocumentChunksWithQuerier(ctx, q, doc, chunks)
	})
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID string) (*types.Chunk, error) {
	row := q.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, chunkID)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return c, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// getChunksWithQuerier returns the chunks that exist among chunkIDs
func (s *SQLiteStorage) getChunksWithQuerier(ctx context.Context, q querier, chunkIDs []string) (map[string]*types.Chunk, error) {
	out := make(map[string]*types.Chunk, len(chunkIDs))
	for start := 0; start < len(chunkIDs); start += maxInParams {
		end := start + maxInParams
		if end > len(chunkIDs) {
			end = len(chunkIDs)
		}
		batch := chunkIDs[start:end]

		rows, err := q.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+
			placeholders(len(batch))+`)`, stringArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("failed to get chunks: %w", err)
		}
		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[c.ID] = c
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

func (s *SQLiteStorage) GetChunks(ctx context.Context, chunkIDs []string) (map[string]*types.Chunk, error) {
	return s.getChunksWithQuerier(ctx, s.querier(), chunkIDs)
}

func (s *SQLiteStorage) listChunksByDocumentWithQuerier(ctx context.Context, q querier, documentID string) ([]types.Chunk, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_order`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByDocument(ctx context.Context, documentID string) ([]types.Chunk, error) {
	return s.listChunksByDocumentWithQuerier(ctx, s.querier(), documentID)
}

// scanChunksWithQuerier streams the chunks matching filters in document and
// chunk order. fn may stop the scan by returning an error.
func (s *SQLiteStorage) scanChunksWithQuerier(ctx context.Context, q querier, filters *ChunkFilters, fn func(*types.Chunk) error) error {
	query := `SELECT ` + chunkColumns + ` FROM chunks c WHERE 1=1`
	query, args := applyChunkFilters(query, nil, filters)
	query += ` ORDER BY c.document_id, c.chunk_order`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to scan chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) ScanChunks(ctx context.Context, filters *ChunkFilters, fn func(*types.Chunk) error) error {
	return s.scanChunksWithQuerier(ctx, s.querier(), filters, fn)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{BuildMode: BuildMode}

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM documents
	`, string(DocumentReady), string(DocumentFailed)).Scan(&status.Documents, &status.ReadyDocuments, &status.FailedDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN contextual_embedding IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM chunks
	`).Scan(&status.Chunks, &status.ChunksWithContext)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	if status.CacheEntries, err = s.countCacheEntriesWithQuerier(ctx, q); err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction operations delegate to the storage implementation with the
// transaction as querier

func (t *sqliteTx) PutCacheEntries(ctx context.Context, entries []CacheEntry) (int, error) {
	return t.storage.putCacheEntriesWithQuerier(ctx, t.querier(), entries)
}

func (t *sqliteTx) GetCacheEntries(ctx context.Context, hashes []string) (map[string][]float32, error) {
	return t.storage.getCacheEntriesWithQuerier(ctx, t.querier(), hashes)
}

func (t *sqliteTx) ScanCacheEntries(ctx context.Context, fn func(CacheEntry) error) error {
	return t.storage.scanCacheEntriesWithQuerier(ctx, t.querier(), fn)
}

func (t *sqliteTx) CountCacheEntries(ctx context.Context) (int, error) {
	return t.storage.countCacheEntriesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) ClearCache(ctx context.Context) error {
	return t.storage.clearCacheWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) SetDocumentStatus(ctx context.Context, documentID, title string, status DocumentStatus, errMsg string) error {
	return t.storage.setDocumentStatusWithQuerier(ctx, t.querier(), documentID, title, status, errMsg)
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, documentID string) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) ReplaceDocumentChunks(ctx context.Context, doc *Document, chunks []types.Chunk) error {
	return t.storage.replaceDocumentChunksWithQuerier(ctx, t.querier(), doc, chunks)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) GetChunks(ctx context.Context, chunkIDs []string) (map[string]*types.Chunk, error) {
	return t.storage.getChunksWithQuerier(ctx, t.querier(), chunkIDs)
}

func (t *sqliteTx) ListChunksByDocument(ctx context.Context, documentID string) ([]types.Chunk, error) {
	return t.storage.listChunksByDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) ScanChunks(ctx context.Context, filters *ChunkFilters, fn func(*types.Chunk) error) error {
	return t.storage.scanChunksWithQuerier(ctx, t.querier(), filters, fn)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	return nil // Transaction doesn't close the database
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}

// Helpers

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
