package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps one row per record, keyed by commit order.
// Save replaces every row inside a single transaction.
type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	path string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("sqlite path is required")}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Op: "open", Path: path, Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	// Single writer; keep it to one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	st := &sqliteStore{db: db, log: log, path: path}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) ([]listing.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM records ORDER BY seq`)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	defer rows.Close()

	out := []listing.Record{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
		}
		var r listing.Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
		}
		out = append(out, r.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	s.log.Debug("history loaded", logx.String("path", s.path), logx.Int("records", len(out)))
	return out, nil
}

func (s *sqliteStore) Save(ctx context.Context, records []listing.Record) (err error) {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records(seq, fingerprint, payload) VALUES(?,?,?)
		ON CONFLICT(fingerprint) DO NOTHING`)
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer stmt.Close()

	for i, r := range records {
		b, mErr := json.Marshal(r)
		if mErr != nil {
			err = mErr
			return &PersistenceError{Op: "save", Path: s.path, Err: err}
		}
		if _, err = stmt.ExecContext(ctx, i, string(listing.FingerprintOf(r)), string(b)); err != nil {
			return &PersistenceError{Op: "save", Path: s.path, Err: err}
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('saved_at', ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	if err = tx.Commit(); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}
