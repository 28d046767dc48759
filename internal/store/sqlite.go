package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/preset"
	"github.com/starford/dagaz/internal/query"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	file_name TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	props     TEXT NOT NULL,
	PRIMARY KEY (file_name, seq)
);

CREATE TABLE IF NOT EXISTS files (
	file_name     TEXT PRIMARY KEY,
	change_marker TEXT NOT NULL DEFAULT '',
	record_count  INTEGER NOT NULL DEFAULT 0,
	synced_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_meta (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	file_count   INTEGER NOT NULL,
	record_count INTEGER NOT NULL,
	synced_at    DATETIME NOT NULL
);
`

// SQLite persists records in a single-file database. Each record's
// properties live in a props JSON column; predicates are lowered to SQL
// over json_extract so filtering happens in the database.
type SQLite struct {
	conn       *sql.DB
	presence   query.Presence
	maxResults int
}

var _ RecordStore = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database file and applies the
// schema. maxResults caps Find; zero means no cap.
func OpenSQLite(path string, presence query.Presence, maxResults int) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{conn: conn, presence: presence, maxResults: maxResults}, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Find(filters []query.Filter) ([]preset.Record, error) {
	ready, err := s.readyState()
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, apperr.ErrNotReady
	}

	where, args := lowerFilters(filters, s.presence)
	q := `SELECT props FROM records`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY file_name, seq`
	if s.maxResults > 0 {
		q += ` LIMIT ` + strconv.Itoa(s.maxResults)
	}

	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find: %w", err)
	}
	defer rows.Close()

	out := []preset.Record{}
	for rows.Next() {
		var props string
		if err := rows.Scan(&props); err != nil {
			return nil, err
		}
		var rec preset.Record
		if err := json.Unmarshal([]byte(props), &rec); err != nil {
			return nil, fmt.Errorf("store: decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PropertyNames returns the sorted union of property keys across all
// stored records.
func (s *SQLite) PropertyNames() ([]string, error) {
	rows, err := s.conn.Query(`
		SELECT DISTINCT je.key
		FROM records, json_each(records.props) AS je
		ORDER BY je.key
	`)
	if err != nil {
		return nil, fmt.Errorf("store: property names: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLite) Status() (Status, error) {
	var st Status

	var syncedAt time.Time
	err := s.conn.QueryRow(`SELECT synced_at FROM sync_meta WHERE id = 1`).Scan(&syncedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Never synced; counts below still report whatever is stored.
	case err != nil:
		return Status{}, fmt.Errorf("store: status: %w", err)
	default:
		st.Ready = true
		st.LastSync = syncedAt
	}

	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&st.Files); err != nil {
		return Status{}, fmt.Errorf("store: count files: %w", err)
	}
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&st.Records); err != nil {
		return Status{}, fmt.Errorf("store: count records: %w", err)
	}
	return st, nil
}

func (s *SQLite) FileMetas() (map[string]FileMeta, error) {
	rows, err := s.conn.Query(`SELECT file_name, change_marker, record_count, synced_at FROM files`)
	if err != nil {
		return nil, fmt.Errorf("store: file metas: %w", err)
	}
	defer rows.Close()

	out := make(map[string]FileMeta)
	for rows.Next() {
		var m FileMeta
		if err := rows.Scan(&m.FileName, &m.ChangeMarker, &m.RecordCount, &m.SyncedAt); err != nil {
			return nil, err
		}
		out[m.FileName] = m
	}
	return out, rows.Err()
}

// ReplaceFile swaps one file's records and metadata in a transaction.
func (s *SQLite) ReplaceFile(meta FileMeta, records []preset.Record) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM records WHERE file_name = ?`, meta.FileName); err != nil {
		return fmt.Errorf("store: clear records: %w", err)
	}
	if err := insertRecords(tx, meta.FileName, records); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO files (file_name, change_marker, record_count, synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			change_marker = excluded.change_marker,
			record_count  = excluded.record_count,
			synced_at     = excluded.synced_at
	`, meta.FileName, meta.ChangeMarker, meta.RecordCount, meta.SyncedAt)
	if err != nil {
		return fmt.Errorf("store: upsert file meta: %w", err)
	}

	return tx.Commit()
}

func (s *SQLite) DeleteFile(fileName string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM records WHERE file_name = ?`, fileName)
	_, _ = tx.Exec(`DELETE FROM files WHERE file_name = ?`, fileName)

	return tx.Commit()
}

// ReplaceAll rebuilds the whole store in one transaction, so readers on
// other connections see the old state until the commit.
func (s *SQLite) ReplaceAll(files []FileRecords, syncedAt time.Time) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("store: clear records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM files`); err != nil {
		return fmt.Errorf("store: clear files: %w", err)
	}

	total := 0
	for _, f := range files {
		if err := insertRecords(tx, f.Meta.FileName, f.Records); err != nil {
			return err
		}
		total += len(f.Records)
		_, err := tx.Exec(`
			INSERT INTO files (file_name, change_marker, record_count, synced_at)
			VALUES (?, ?, ?, ?)
		`, f.Meta.FileName, f.Meta.ChangeMarker, f.Meta.RecordCount, f.Meta.SyncedAt)
		if err != nil {
			return fmt.Errorf("store: insert file meta: %w", err)
		}
	}

	if err := setSyncMeta(tx, SyncMeta{FileCount: len(files), RecordCount: total, SyncedAt: syncedAt}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) SetSyncMeta(meta SyncMeta) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := setSyncMeta(tx, meta); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) readyState() (bool, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM sync_meta`).Scan(&n); err != nil {
		return false, fmt.Errorf("store: readiness: %w", err)
	}
	return n > 0, nil
}

func insertRecords(tx *sql.Tx, fileName string, records []preset.Record) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO records (file_name, seq, props) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		props, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("store: encode record %s[%d]: %w", fileName, i, err)
		}
		if _, err := stmt.Exec(fileName, i, string(props)); err != nil {
			return fmt.Errorf("store: insert record: %w", err)
		}
	}
	return nil
}

func setSyncMeta(tx *sql.Tx, meta SyncMeta) error {
	_, err := tx.Exec(`
		INSERT INTO sync_meta (id, file_count, record_count, synced_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_count   = excluded.file_count,
			record_count = excluded.record_count,
			synced_at    = excluded.synced_at
	`, meta.FileCount, meta.RecordCount, meta.SyncedAt)
	if err != nil {
		return fmt.Errorf("store: set sync meta: %w", err)
	}
	return nil
}
