package transcode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mediasrv/internal/catalog"
)

// LockTable hands out cross-process advisory locks keyed by artifact.
// A lock is a file created with O_EXCL in the storage directory, so the same
// acquisition attempt rejects both in-process and cross-instance holders:
// any server instance sharing the directory sees the same file.
type LockTable struct {
	dir string
}

// NewLockTable returns a lock table backed by the given storage directory.
func NewLockTable(dir string) *LockTable {
	return &LockTable{dir: dir}
}

// Lock is a held transcode lock. Release removes the backing file; it is
// safe to call more than once.
type Lock struct {
	path string
	file *os.File
}

// path of the lock file for an artifact. The leading dot keeps the indexer
// from ever parsing it as an artifact.
func (t *LockTable) lockPath(a catalog.Artifact) string {
	return filepath.Join(t.dir, "."+a.Filename()+".lock")
}

// TryAcquire attempts a non-blocking acquisition of the lock for the given
// artifact. held is false when another holder exists; that is expected
// contention, not an error. err is non-nil only for real filesystem faults.
func (t *LockTable) TryAcquire(a catalog.Artifact) (lock *Lock, held bool, err error) {
	path := t.lockPath(a)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("create lock %s: %w", path, err)
	}
	return &Lock{path: path, file: f}, true, nil
}

// Release closes and removes the lock's backing file.
func (l *Lock) Release() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
		os.Remove(l.path)
	}
}
