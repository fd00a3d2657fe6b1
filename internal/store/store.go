// Package store owns the durable state of the engine: per-test baselines and
// the bounded per-test outcome history. Each store is constructed with its
// file path and holds its map exclusively; other components go through the
// store API, never the files. A missing file is empty state, not an error;
// load and save failures surface as *PersistenceError so the run can continue
// with in-memory state.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SchemaVersion is written into every persisted document header. Bump when
// the record layout changes incompatibly.
const SchemaVersion = 1

// PersistenceError wraps a baseline or history file failure. Callers log it
// and continue; durable state simply lags for that run.
type PersistenceError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// writeFileAtomic writes data via a temp file + rename so a crash mid-save
// never truncates the previous good state.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
