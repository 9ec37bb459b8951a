package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"
)

// fileStore keeps the history as one human-diffable JSON array.
//
// Writes go to <dir>/.<name>.*.tmp, are fsynced, then renamed over the
// target, so readers only ever see a complete file.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "listings_data.json"
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Op: "open", Path: path, Err: err}
		}
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Load(ctx context.Context) ([]listing.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []listing.Record{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []listing.Record{}, nil
	}

	var recs []listing.Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	out := make([]listing.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Normalize())
	}
	s.log.Debug("history loaded", logx.String("path", s.path), logx.Int("records", len(out)))
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, records []listing.Record) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if records == nil {
		records = []listing.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	ok = true
	return nil
}
