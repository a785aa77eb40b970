package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Brownie44l1/fruit-classifier/internal/logger"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps history in a SQLite table ordered by insertion.
type SQLiteStore struct {
	conn   *sql.DB
	logger *logger.Logger
}

// NewSQLiteStore opens the history database at dbPath. A file that SQLite
// reports as corrupt or not a database is renamed aside and replaced by an
// empty database, so a damaged store reads as empty history.
func NewSQLiteStore(dbPath string, log *logger.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	conn, err := openSQLite(dbPath)
	if err != nil && isCorrupt(err) {
		aside := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().Unix())
		log.Warning("History database %s is unreadable (%v), moving it to %s", dbPath, err, aside)
		if renameErr := os.Rename(dbPath, aside); renameErr != nil {
			return nil, fmt.Errorf("failed to move corrupt history database: %w", renameErr)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			os.Remove(dbPath + suffix)
		}
		conn, err = openSQLite(dbPath)
	}
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{conn: conn, logger: log}, nil
}

func openSQLite(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return conn, nil
}

func isCorrupt(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt
}

func migrate(conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		class_label TEXT NOT NULL,
		confidence REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_class_label ON history(class_label);
	`

	_, err := conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(rec Record) error {
	_, err := s.conn.Exec(`
		INSERT INTO history (id, timestamp, class_label, confidence)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Timestamp, rec.ClassLabel, float64(rec.Confidence))
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll() []Record {
	records := []Record{}

	rows, err := s.conn.Query(`SELECT id, timestamp, class_label, confidence FROM history ORDER BY seq`)
	if err != nil {
		s.logger.Warning("Failed to query history: %v", err)
		return records
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var confidence float64
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.ClassLabel, &confidence); err != nil {
			s.logger.Warning("Failed to scan history record: %v", err)
			return []Record{}
		}
		rec.Confidence = float32(confidence)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warning("Failed to read history: %v", err)
		return []Record{}
	}

	return records
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
