package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/stevedore-sh/stevedore/pkg/logger"
)

var (
	// ErrCorrupt means the manifest file exists but cannot be parsed. It is
	// never auto-repaired; the operator restores from a backup.
	ErrCorrupt = errors.New("manifest file is corrupt")

	// ErrLockContention means another mutation held the manifest lock for
	// longer than the bounded wait.
	ErrLockContention = errors.New("manifest is locked by another operation")
)

const (
	lockRetryInterval  = 250 * time.Millisecond
	defaultLockTimeout = 10 * time.Second
	backupTimeFormat   = "20060102150405"
)

// Store owns the manifest file: exclusive-locked read-modify-write with a
// pre-mutation backup and an atomic temp-file-then-rename replace.
type Store struct {
	path         string
	backupDir    string
	historyLimit int
	lockTimeout  time.Duration
}

// NewStore creates a store for the manifest at path. Backups go to
// backupDir; historyLimit bounds per-service history (0 means the default).
func NewStore(path, backupDir string, historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		path:         path,
		backupDir:    backupDir,
		historyLimit: historyLimit,
		lockTimeout:  defaultLockTimeout,
	}
}

// Path returns the manifest file location.
func (s *Store) Path() string { return s.path }

// HistoryLimit returns the per-service history cap.
func (s *Store) HistoryLimit() int { return s.historyLimit }

// SetLockTimeout overrides the bounded lock wait, mainly for tests.
func (s *Store) SetLockTimeout(d time.Duration) { s.lockTimeout = d }

// Load reads the manifest from disk. A missing file is a valid state
// ("versioning not enabled") and returns (nil, nil); a present but
// unparseable file returns ErrCorrupt.
func (s *Store) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", s.path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v (restore a backup from %s)", ErrCorrupt, s.path, err, s.backupDir)
	}
	if m.Services == nil {
		m.Services = make(map[string]*Service)
	}
	if m.History == nil {
		m.History = make(map[string][]HistoryEntry)
	}
	return &m, nil
}

// Mutate runs fn against the current manifest under an exclusive file lock
// and atomically replaces the file with the result. A timestamped backup of
// the prior manifest is taken before fn runs; on any failure the on-disk
// manifest is left untouched and the backup is kept. fn receives an empty
// manifest when the file does not exist yet.
func (s *Store) Mutate(ctx context.Context, fn func(*Manifest) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.path + ".lock")
	locked, err := fl.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to acquire manifest lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLockContention, s.path)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			logger.Warn("Failed to release manifest lock", "path", s.path, "error", err)
		}
	}()

	if _, err := s.Backup(); err != nil {
		return err
	}

	m, err := s.Load()
	if err != nil {
		return err
	}
	if m == nil {
		m = New("")
	}

	if err := fn(m); err != nil {
		return err
	}

	for name := range m.History {
		m.TrimHistory(name, s.historyLimit)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid manifest: %w", err)
	}

	return s.replace(m)
}

// Backup copies the current manifest into the backup directory with a
// timestamped, never-overwritten name. It is a no-op when the manifest does
// not exist yet. Returns the backup path, empty when nothing was backed up.
func (s *Store) Backup() (string, error) {
	src, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open manifest for backup: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory %s: %w", s.backupDir, err)
	}

	base := filepath.Join(s.backupDir, filepath.Base(s.path)+"."+time.Now().Format(backupTimeFormat))
	path := base
	for n := 1; ; n++ {
		dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			// Backups are append-only: never overwrite an existing snapshot.
			path = fmt.Sprintf("%s-%d", base, n)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create backup %s: %w", path, err)
		}
		_, cpErr := io.Copy(dst, src)
		closeErr := dst.Close()
		if cpErr != nil {
			return "", fmt.Errorf("failed to write backup %s: %w", path, cpErr)
		}
		if closeErr != nil {
			return "", fmt.Errorf("failed to write backup %s: %w", path, closeErr)
		}
		logger.Debug("Manifest backup created", "path", path)
		return path, nil
	}
}

// replace marshals the manifest to a temporary file in the same directory and
// renames it over the manifest path, so readers never observe a partial
// write.
func (s *Store) replace(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary manifest: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
