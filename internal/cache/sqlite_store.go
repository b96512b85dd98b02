package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/snappy"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries in a SQLite file so the cache survives restarts.
// Bodies are snappy-compressed.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the cache database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			generation TEXT NOT NULL,
			status     INTEGER NOT NULL,
			header     TEXT NOT NULL,
			body       BLOB,
			stored_at  INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		);
		CREATE INDEX IF NOT EXISTS idx_cache_namespace ON cache_entries(namespace);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(namespace, key string) (*Entry, error) {
	var (
		entry    = &Entry{Key: key}
		header   string
		body     []byte
		storedAt int64
	)
	err := s.db.QueryRow(
		`SELECT generation, status, header, body, stored_at FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&entry.Generation, &entry.Status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return nil, fmt.Errorf("corrupt cache header for %s: %w", key, err)
	}
	if entry.Body, err = snappy.Decode(nil, body); err != nil {
		return nil, fmt.Errorf("corrupt cache body for %s: %w", key, err)
	}
	entry.StoredAt = time.UnixMilli(storedAt).UTC()
	return entry, nil
}

func (s *SQLiteStore) Put(namespace string, entry *Entry) error {
	header := entry.Header
	if header == nil {
		header = http.Header{}
	}
	rawHeader, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode cache header: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO cache_entries (namespace, key, generation, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
		   generation = excluded.generation, status = excluded.status, header = excluded.header,
		   body = excluded.body, stored_at = excluded.stored_at`,
		namespace, entry.Key, entry.Generation, entry.Status, string(rawHeader),
		snappy.Encode(nil, entry.Body), entry.StoredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Keys(namespace string) ([]string, error) {
	return s.strings(`SELECT key FROM cache_entries WHERE namespace = ? ORDER BY key`, namespace)
}

func (s *SQLiteStore) Namespaces() ([]string, error) {
	return s.strings(`SELECT DISTINCT namespace FROM cache_entries ORDER BY namespace`)
}

func (s *SQLiteStore) DeleteNamespace(namespace string) error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) strings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("cache query failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
