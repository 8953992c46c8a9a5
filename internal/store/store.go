// Package store persists extracted symbols, edges, test intents and file
// snapshots in a SQLite database under the workspace's .aether directory.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"aether/internal/core"
	"aether/internal/logging"
	"aether/internal/parse"
)

// Store wraps the workspace SQLite database. All access is serialized
// through a single connection guarded by a mutex, which keeps WAL mode
// happy under the watcher's write bursts.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// SymbolRecord is a persisted symbol row.
type SymbolRecord struct {
	ID                   string
	FilePath             string
	Language             string
	Kind                 string
	Name                 string
	QualifiedName        string
	SignatureFingerprint string
	ContentHash          string
	LastSeenAt           int64
	Removed              bool
}

// IndexedFile tracks one scanned file so unchanged files can be skipped on
// the next pass.
type IndexedFile struct {
	Path        string
	Language    string
	Size        int64
	ModTimeUnix int64
	ContentHash string
	Fingerprint string
}

// Open initializes the store at <workspaceRoot>/.aether/meta.sqlite,
// creating the directory and schema on demand.
func Open(workspaceRoot string) (*Store, error) {
	return OpenAt(filepath.Join(workspaceRoot, ".aether", "meta.sqlite"))
}

// OpenAt initializes the store at an explicit database path.
func OpenAt(dbPath string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenAt")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(dbPath), err)
	}
	logging.Store("Opening store at %s", dbPath)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		logging.Get(logging.CategoryStore).Error("Schema migration failed: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Store schema ready")
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the on-disk location of the database.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS symbols (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		language TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		signature_fingerprint TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		removed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path);
	CREATE INDEX IF NOT EXISTS idx_symbols_qualified_name ON symbols(qualified_name);

	CREATE TABLE IF NOT EXISTS symbol_edges (
		source_id TEXT NOT NULL,
		target_qualified_name TEXT NOT NULL,
		edge_kind TEXT NOT NULL,
		file_path TEXT NOT NULL,
		UNIQUE(source_id, target_qualified_name, edge_kind, file_path)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_file_path ON symbol_edges(file_path);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON symbol_edges(target_qualified_name);

	CREATE TABLE IF NOT EXISTS test_intents (
		file_path TEXT NOT NULL,
		test_name TEXT NOT NULL,
		intent_text TEXT NOT NULL,
		group_label TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		symbol_id TEXT NOT NULL DEFAULT '',
		UNIQUE(file_path, test_name, intent_text, group_label)
	);
	CREATE INDEX IF NOT EXISTS idx_intents_file_path ON test_intents(file_path);

	CREATE TABLE IF NOT EXISTS indexed_files (
		path TEXT PRIMARY KEY,
		language TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		fingerprint TEXT NOT NULL
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertSymbol inserts or refreshes one symbol row and clears any removed
// flag it carried.
func (s *Store) UpsertSymbol(symbol core.Symbol, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
	INSERT INTO symbols (
		id, file_path, language, kind, name, qualified_name,
		signature_fingerprint, content_hash, last_seen_at, removed
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
		file_path = excluded.file_path,
		language = excluded.language,
		kind = excluded.kind,
		name = excluded.name,
		qualified_name = excluded.qualified_name,
		signature_fingerprint = excluded.signature_fingerprint,
		content_hash = excluded.content_hash,
		last_seen_at = excluded.last_seen_at,
		removed = 0
	`, symbol.ID, symbol.FilePath, string(symbol.Language), string(symbol.Kind),
		symbol.Name, symbol.QualifiedName, symbol.SignatureFingerprint,
		symbol.ContentHash, seenAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert symbol %s: %w", symbol.ID, err)
	}
	return nil
}

// MarkRemoved tombstones a symbol instead of deleting it, so edges that
// still reference the ID keep resolving until their files reindex.
func (s *Store) MarkRemoved(symbolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE symbols SET removed = 1 WHERE id = ?`, symbolID)
	if err != nil {
		return fmt.Errorf("failed to mark symbol %s removed: %w", symbolID, err)
	}
	return nil
}

// ListSymbolsForFile returns the live symbols of one file, sorted by ID.
func (s *Store) ListSymbolsForFile(filePath string) ([]SymbolRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
	SELECT id, file_path, language, kind, name, qualified_name,
	       signature_fingerprint, content_hash, last_seen_at, removed
	FROM symbols
	WHERE file_path = ? AND removed = 0
	ORDER BY id
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols for %s: %w", filePath, err)
	}
	defer rows.Close()
	return scanSymbolRecords(rows)
}

// SearchSymbols matches name and qualified name case-insensitively. The
// limit is clamped to [1, 100]; an empty query matches nothing.
func (s *Store) SearchSymbols(query string, limit int) ([]SymbolRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	pattern := "%" + query + "%"

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
	SELECT id, file_path, language, kind, name, qualified_name,
	       signature_fingerprint, content_hash, last_seen_at, removed
	FROM symbols
	WHERE removed = 0
	  AND (LOWER(name) LIKE LOWER(?) OR LOWER(qualified_name) LIKE LOWER(?))
	ORDER BY qualified_name ASC, id ASC
	LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbolRecords(rows)
}

// ReplaceEdgesForFile swaps a file's edges in one transaction.
func (s *Store) ReplaceEdgesForFile(filePath string, edges []core.SymbolEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM symbol_edges WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete edges for %s: %w", filePath, err)
	}
	for _, edge := range edges {
		_, err := tx.Exec(`
		INSERT OR IGNORE INTO symbol_edges (source_id, target_qualified_name, edge_kind, file_path)
		VALUES (?, ?, ?, ?)
		`, edge.SourceID, edge.TargetQualifiedName, string(edge.EdgeKind), edge.FilePath)
		if err != nil {
			return fmt.Errorf("failed to insert edge for %s: %w", filePath, err)
		}
	}
	return tx.Commit()
}

// ReplaceIntentsForFile swaps a file's test intents in one transaction.
func (s *Store) ReplaceIntentsForFile(filePath string, intents []parse.TestIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM test_intents WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete intents for %s: %w", filePath, err)
	}
	for _, intent := range intents {
		_, err := tx.Exec(`
		INSERT OR IGNORE INTO test_intents (file_path, test_name, intent_text, group_label, language, symbol_id)
		VALUES (?, ?, ?, ?, ?, ?)
		`, intent.FilePath, intent.TestName, intent.IntentText, intent.GroupLabel,
			string(intent.Language), intent.SymbolID)
		if err != nil {
			return fmt.Errorf("failed to insert intent for %s: %w", filePath, err)
		}
	}
	return tx.Commit()
}

// ListIntentsForFile returns a file's test intents in stored order.
func (s *Store) ListIntentsForFile(filePath string) ([]parse.TestIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
	SELECT file_path, test_name, intent_text, group_label, language, symbol_id
	FROM test_intents
	WHERE file_path = ?
	ORDER BY test_name, intent_text
	`, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents for %s: %w", filePath, err)
	}
	defer rows.Close()

	var intents []parse.TestIntent
	for rows.Next() {
		var intent parse.TestIntent
		var language string
		if err := rows.Scan(&intent.FilePath, &intent.TestName, &intent.IntentText,
			&intent.GroupLabel, &language, &intent.SymbolID); err != nil {
			return nil, err
		}
		intent.Language = core.Language(language)
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

// Callers returns the live symbols holding a calls edge onto the given
// qualified name.
func (s *Store) Callers(qualifiedName string) ([]SymbolRecord, error) {
	qualifiedName = strings.TrimSpace(qualifiedName)
	if qualifiedName == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
	SELECT s.id, s.file_path, s.language, s.kind, s.name, s.qualified_name,
	       s.signature_fingerprint, s.content_hash, s.last_seen_at, s.removed
	FROM symbol_edges e
	JOIN symbols s ON s.id = e.source_id
	WHERE e.edge_kind = 'calls'
	  AND e.target_qualified_name = ?
	  AND s.removed = 0
	ORDER BY s.qualified_name ASC, s.id ASC
	`, qualifiedName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve callers of %s: %w", qualifiedName, err)
	}
	defer rows.Close()
	return scanSymbolRecords(rows)
}

// Dependencies returns the live symbols a symbol's calls edges resolve to.
func (s *Store) Dependencies(symbolID string) ([]SymbolRecord, error) {
	symbolID = strings.TrimSpace(symbolID)
	if symbolID == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
	SELECT s.id, s.file_path, s.language, s.kind, s.name, s.qualified_name,
	       s.signature_fingerprint, s.content_hash, s.last_seen_at, s.removed
	FROM symbol_edges e
	JOIN symbols s ON s.qualified_name = e.target_qualified_name
	WHERE e.edge_kind = 'calls'
	  AND e.source_id = ?
	  AND s.removed = 0
	ORDER BY s.qualified_name ASC, s.id ASC
	`, symbolID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies of %s: %w", symbolID, err)
	}
	defer rows.Close()
	return scanSymbolRecords(rows)
}

// CallChain returns the symbols reachable from a symbol through calls
// edges, grouped by hop count up to depth. A symbol reachable at several
// depths is reported once at its shallowest.
func (s *Store) CallChain(symbolID string, depth int) ([][]SymbolRecord, error) {
	symbolID = strings.TrimSpace(symbolID)
	if symbolID == "" || depth <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
	WITH RECURSIVE reachable(symbol_id, depth) AS (
		SELECT target.id, 1
		FROM symbol_edges e
		JOIN symbols target ON target.qualified_name = e.target_qualified_name
		WHERE e.edge_kind = 'calls'
		  AND e.source_id = ?
		UNION ALL
		SELECT target.id, reachable.depth + 1
		FROM reachable
		JOIN symbol_edges e
		  ON e.source_id = reachable.symbol_id
		 AND e.edge_kind = 'calls'
		JOIN symbols target ON target.qualified_name = e.target_qualified_name
		WHERE reachable.depth < ?
	),
	ranked AS (
		SELECT symbol_id, MIN(depth) AS depth
		FROM reachable
		GROUP BY symbol_id
	)
	SELECT s.id, s.file_path, s.language, s.kind, s.name, s.qualified_name,
	       s.signature_fingerprint, s.content_hash, s.last_seen_at, s.removed,
	       ranked.depth
	FROM ranked
	JOIN symbols s ON s.id = ranked.symbol_id
	WHERE s.removed = 0
	ORDER BY ranked.depth ASC, s.qualified_name ASC, s.id ASC
	`, symbolID, depth)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve call chain of %s: %w", symbolID, err)
	}
	defer rows.Close()

	var levels [][]SymbolRecord
	currentDepth := 0
	for rows.Next() {
		var record SymbolRecord
		var removed int
		var rowDepth int
		if err := rows.Scan(&record.ID, &record.FilePath, &record.Language, &record.Kind,
			&record.Name, &record.QualifiedName, &record.SignatureFingerprint,
			&record.ContentHash, &record.LastSeenAt, &removed, &rowDepth); err != nil {
			return nil, err
		}
		record.Removed = removed != 0
		if rowDepth != currentDepth {
			currentDepth = rowDepth
			levels = append(levels, nil)
		}
		levels[len(levels)-1] = append(levels[len(levels)-1], record)
	}
	return levels, rows.Err()
}

// ApplyChangeEvent persists one file diff: added and updated symbols are
// upserted, removed symbols are tombstoned.
func (s *Store) ApplyChangeEvent(event core.SymbolChangeEvent, seenAt time.Time) error {
	for _, symbol := range event.Added {
		if err := s.UpsertSymbol(symbol, seenAt); err != nil {
			return err
		}
	}
	for _, symbol := range event.Updated {
		if err := s.UpsertSymbol(symbol, seenAt); err != nil {
			return err
		}
	}
	for _, symbol := range event.Removed {
		if err := s.MarkRemoved(symbol.ID); err != nil {
			return err
		}
	}
	logging.StoreDebug("Applied change event for %s: +%d ~%d -%d",
		event.FilePath, len(event.Added), len(event.Updated), len(event.Removed))
	return nil
}

// UpsertIndexedFile records one scanned file's snapshot metadata.
func (s *Store) UpsertIndexedFile(file IndexedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
	INSERT INTO indexed_files (path, language, size, mod_time, content_hash, fingerprint)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		language = excluded.language,
		size = excluded.size,
		mod_time = excluded.mod_time,
		content_hash = excluded.content_hash,
		fingerprint = excluded.fingerprint
	`, file.Path, file.Language, file.Size, file.ModTimeUnix, file.ContentHash, file.Fingerprint)
	if err != nil {
		return fmt.Errorf("failed to upsert indexed file %s: %w", file.Path, err)
	}
	return nil
}

// DeleteIndexedFile drops a file's snapshot row.
func (s *Store) DeleteIndexedFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM indexed_files WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete indexed file %s: %w", path, err)
	}
	return nil
}

// ListIndexedFiles returns all snapshot rows sorted by path.
func (s *Store) ListIndexedFiles() ([]IndexedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
	SELECT path, language, size, mod_time, content_hash, fingerprint
	FROM indexed_files
	ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}
	defer rows.Close()

	var files []IndexedFile
	for rows.Next() {
		var file IndexedFile
		if err := rows.Scan(&file.Path, &file.Language, &file.Size, &file.ModTimeUnix,
			&file.ContentHash, &file.Fingerprint); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// GetIndexedFile returns one snapshot row, or false when the path is
// unknown.
func (s *Store) GetIndexedFile(path string) (IndexedFile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var file IndexedFile
	err := s.db.QueryRow(`
	SELECT path, language, size, mod_time, content_hash, fingerprint
	FROM indexed_files
	WHERE path = ?
	`, path).Scan(&file.Path, &file.Language, &file.Size, &file.ModTimeUnix,
		&file.ContentHash, &file.Fingerprint)
	if err == sql.ErrNoRows {
		return IndexedFile{}, false, nil
	}
	if err != nil {
		return IndexedFile{}, false, fmt.Errorf("failed to read indexed file %s: %w", path, err)
	}
	return file, true, nil
}

func scanSymbolRecords(rows *sql.Rows) ([]SymbolRecord, error) {
	var records []SymbolRecord
	for rows.Next() {
		var record SymbolRecord
		var removed int
		if err := rows.Scan(&record.ID, &record.FilePath, &record.Language, &record.Kind,
			&record.Name, &record.QualifiedName, &record.SignatureFingerprint,
			&record.ContentHash, &record.LastSeenAt, &removed); err != nil {
			return nil, err
		}
		record.Removed = removed != 0
		records = append(records, record)
	}
	return records, rows.Err()
}
