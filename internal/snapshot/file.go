package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/clitic/music/internal/aggregator"
)

const lockFileName = ".music.lock"

// DefaultLockTimeout bounds how long Lock waits for another run.
const DefaultLockTimeout = 5 * time.Second

// FileStore keeps each snapshot as <dir>/<name>.json.
type FileStore struct {
	dir         string
	lockTimeout time.Duration
	lock        *os.File
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir, lockTimeout: DefaultLockTimeout}
}

// Path returns the file backing the named snapshot.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name)+".json")
}

func (s *FileStore) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &Error{Op: "stat", Name: name, Err: err}
}

func (s *FileStore) Read(_ context.Context, name string) ([]aggregator.VideoRecord, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Op: "read", Name: name, Err: ErrNotFound}
		}
		return nil, &Error{Op: "read", Name: name, Err: err}
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, corrupt(name, err)
	}
	return records, nil
}

func (s *FileStore) Write(_ context.Context, name string, records []aggregator.VideoRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return &Error{Op: "write", Name: name, Err: err}
	}

	w, err := newAtomicWriter(s.Path(name))
	if err != nil {
		return &Error{Op: "write", Name: name, Err: err}
	}
	if _, err := w.Write(data); err != nil {
		_ = w.abort()
		return &Error{Op: "write", Name: name, Err: err}
	}
	if err := w.commit(); err != nil {
		return &Error{Op: "write", Name: name, Err: err}
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "delete", Name: name, Err: err}
	}
	return nil
}

// Lock takes an advisory lock on the snapshot directory. It retries until
// the lock timeout passes or ctx is done.
func (s *FileStore) Lock(ctx context.Context) error {
	if s.lock != nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &Error{Op: "lock", Name: s.dir, Err: err}
	}
	f, err := os.OpenFile(filepath.Join(s.dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &Error{Op: "lock", Name: s.dir, Err: err}
	}

	deadline := time.Now().Add(s.lockTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := tryLock(f); err == nil {
			s.lock = f
			return nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return &Error{Op: "lock", Name: s.dir, Err: fmt.Errorf("%w (waited %s)", ErrLocked, s.lockTimeout)}
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return &Error{Op: "lock", Name: s.dir, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock taken by Lock.
func (s *FileStore) Unlock() error {
	if s.lock == nil {
		return nil
	}
	f := s.lock
	s.lock = nil
	_ = unlockFile(f)
	return f.Close()
}

func (s *FileStore) Close() error {
	return s.Unlock()
}
