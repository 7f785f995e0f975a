package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// BackendName is the name the sqlite backend registers under.
const BackendName = "sqlite"

// formatVersion is stored in the meta table; Open refuses other versions.
const formatVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id    INTEGER NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	record      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_document ON entries (document_id);
CREATE TABLE IF NOT EXISTS images (
	document_id TEXT NOT NULL,
	page        INTEGER NOT NULL,
	idx         INTEGER NOT NULL,
	record      BLOB NOT NULL,
	PRIMARY KEY (document_id, page, idx)
);
`

func init() {
	storage.Register(BackendName, func(path string) (storage.Index, error) {
		if path == "" {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, storage.ErrPathRequired)
		}
		return Open(path)
	})
}

// Index implements storage.Index on a SQLite database file.
type Index struct {
	db   *sql.DB
	path string

	// mu serialises writers and guards dim and closed
	mu     sync.RWMutex
	dim    int
	closed bool
	logger *slog.Logger
}

var _ storage.Index = (*Index)(nil)

// Open opens or creates the index database at path. The special path ":memory:"
// opens a private in-memory database.
func Open(path string) (*Index, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and writes serialised
	db.SetMaxOpenConns(1)

	idx := &Index{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "sqlite-index"),
	}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// migrate creates the schema and checks the format version.
func (idx *Index) migrate() error {
	if _, err := idx.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	version, err := idx.meta("version")
	if errors.Is(err, sql.ErrNoRows) {
		_, err = idx.db.Exec(`INSERT INTO meta (key, value) VALUES ('version', ?)`, strconv.Itoa(formatVersion))
		return err
	}
	if err != nil {
		return err
	}
	if version != formatVersion {
		return fmt.Errorf("%w: unsupported format version %d", core.ErrCorruptIndex, version)
	}

	dim, err := idx.meta("dimension")
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	idx.dim = dim
	return nil
}

func (idx *Index) meta(key string) (int, error) {
	var raw string
	if err := idx.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&raw); err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: meta %s: %w", core.ErrCorruptIndex, key, err)
	}
	return v, nil
}

// Path returns the database file path.
func (idx *Index) Path() string {
	return idx.path
}

// Add implements storage.Index. All entries are written in one transaction.
func (idx *Index) Add(ctx context.Context, entries ...core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}

	prepared, dim, err := storage.PrepareEntries(idx.dim, entries)
	if err != nil {
		return err
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if idx.dim == 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (key, value) VALUES ('dimension', ?)`, strconv.Itoa(dim))
		if err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO entries (chunk_id, document_id, record) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range prepared {
		e := &prepared[i]
		// chunk IDs are uint64; SQLite integers are signed, the bit pattern is kept
		_, err := stmt.ExecContext(ctx, int64(e.Chunk.ID), e.Chunk.DocumentID, storage.MarshalIndexEntry(e))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	idx.dim = dim
	return nil
}

// AddImages implements storage.Index.
func (idx *Index) AddImages(ctx context.Context, refs ...core.ImageRef) error {
	for i := range refs {
		if err := core.ValidateImageRef(&refs[i]); err != nil {
			return err
		}
	}
	if len(refs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range refs {
		r := &refs[i]
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO images (document_id, page, idx, record) VALUES (?, ?, ?, ?)`,
			r.DocumentID, r.Page, r.Index, storage.MarshalImageRef(r))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search implements storage.Index.
func (idx *Index) Search(ctx context.Context, vector []float32, k int) ([]core.ScoredChunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, storage.ErrStorageClosed
	}
	if err := storage.CheckQuery(idx.dim, vector, k); err != nil {
		return nil, err
	}

	query := storage.NormalizeVector(vector)
	results := []core.ScoredChunk{}
	err := idx.scanEntries(ctx, func(e *core.IndexEntry) error {
		results = append(results, storage.Score(query, e))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.TopK(results, k), nil
}

// scanEntries decodes every entry in insertion order.
// Rows are read fully before fn runs so fn may use the database.
func (idx *Index) scanEntries(ctx context.Context, fn func(*core.IndexEntry) error) error {
	rows, err := idx.db.QueryContext(ctx, `SELECT record FROM entries ORDER BY seq`)
	if err != nil {
		return err
	}
	var records [][]byte
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			rows.Close()
			return err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := storage.UnmarshalIndexEntry(record)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// ImagesFor implements storage.Index.
func (idx *Index) ImagesFor(ctx context.Context, keys []core.PageKey) ([]core.ImageRef, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, storage.ErrStorageClosed
	}

	refs := []core.ImageRef{}
	seen := make(map[core.PageKey]struct{}, len(keys))
	for _, pk := range keys {
		if _, done := seen[pk]; done {
			continue
		}
		seen[pk] = struct{}{}
		found, err := idx.queryImages(ctx,
			`SELECT record FROM images WHERE document_id = ? AND page = ?`, pk.DocumentID, pk.Page)
		if err != nil {
			return nil, err
		}
		refs = append(refs, found...)
	}
	storage.SortImages(refs)
	return refs, nil
}

func (idx *Index) queryImages(ctx context.Context, query string, args ...any) ([]core.ImageRef, error) {
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []core.ImageRef
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		ref, err := storage.UnmarshalImageRef(record)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

// Scan implements storage.Index.
func (idx *Index) Scan(ctx context.Context, fn func(core.IndexEntry) error) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}
	return idx.scanEntries(ctx, func(e *core.IndexEntry) error {
		return fn(*e)
	})
}

// HasDocument implements storage.Index.
func (idx *Index) HasDocument(ctx context.Context, documentID string) (bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return false, storage.ErrStorageClosed
	}

	var found bool
	err := idx.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM entries WHERE document_id = ?)`, documentID).Scan(&found)
	return found, err
}

// Stats implements storage.Index.
func (idx *Index) Stats(ctx context.Context) (storage.Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return storage.Stats{}, storage.ErrStorageClosed
	}

	stats := storage.Stats{Backend: BackendName, Dimension: idx.dim}
	err := idx.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entries),
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(DISTINCT document_id) FROM entries)
	`).Scan(&stats.Entries, &stats.Images, &stats.Documents)
	return stats, err
}

// Persist implements storage.Index by exporting a snapshot file.
func (idx *Index) Persist(ctx context.Context, path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}

	snap := &storage.Snapshot{Dimension: idx.dim}
	err := idx.scanEntries(ctx, func(e *core.IndexEntry) error {
		snap.Entries = append(snap.Entries, *e)
		return nil
	})
	if err != nil {
		return err
	}
	snap.Images, err = idx.queryImages(ctx,
		`SELECT record FROM images ORDER BY document_id, page, idx`)
	if err != nil {
		return err
	}
	return storage.WriteSnapshotFile(path, snap)
}

// Close implements storage.Index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.db.Close()
}
