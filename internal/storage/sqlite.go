package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the durable StringStore backing: a single table with an
// autoincrement integer key. Pass ":memory:" for an ephemeral database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	// Best-effort pragmas; the store works without them.
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS storage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Indexes() ([]int64, error) {
	rows, err := s.db.Query("SELECT id FROM storage ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("enumerating keys: %w", err)
	}
	defer rows.Close()
	var keys []int64
	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Query(key int64) (string, error) {
	var content string
	err := s.db.QueryRow("SELECT content FROM storage WHERE id = ?", key).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading key %d: %w", key, err)
	}
	return content, nil
}

func (s *SQLiteStore) Add(content string) (int64, error) {
	res, err := s.db.Exec("INSERT INTO storage (content) VALUES (?)", content)
	if err != nil {
		return 0, fmt.Errorf("inserting row: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) Update(key int64, content string) error {
	_, err := s.db.Exec("UPDATE storage SET content = ? WHERE id = ?", content, key)
	if err != nil {
		return fmt.Errorf("updating key %d: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key int64) error {
	_, err := s.db.Exec("DELETE FROM storage WHERE id = ?", key)
	if err != nil {
		return fmt.Errorf("deleting key %d: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM storage").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
