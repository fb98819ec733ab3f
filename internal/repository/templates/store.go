package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/oshokin/onec-updater/internal/logger"
)

const (
	// DirPermissions is used for every directory the updater creates.
	DirPermissions os.FileMode = 0o755
	// FilePermissions is used for saved archives.
	FilePermissions os.FileMode = 0o644
)

// ErrInsufficientSpace is returned when the target volume cannot hold an archive.
var ErrInsufficientSpace = errors.New("insufficient free disk space")

// Store writes downloaded archives to disk.
type Store struct {
	// checkFreeSpace enables the free space check before writing.
	checkFreeSpace bool
	// apply replaces the target file; swapped in tests.
	apply func(update io.Reader, opts goupdate.Options) error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithFreeSpaceCheck refuses to write archives that do not fit on the volume.
func WithFreeSpaceCheck(enabled bool) StoreOption {
	return func(s *Store) {
		s.checkFreeSpace = enabled
	}
}

// NewStore creates a Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{apply: goupdate.Apply}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EnsureDir creates dir and its parents when missing.
func (s *Store) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	return nil
}

// Save writes data to dir/name and returns the full path.
// An existing archive is replaced atomically. A new archive starts as an
// empty placeholder that is removed again when the write fails.
func (s *Store) Save(ctx context.Context, dir, name string, data []byte) (string, error) {
	if err := s.EnsureDir(dir); err != nil {
		return "", err
	}

	if s.checkFreeSpace {
		if err := ensureFreeSpace(dir, uint64(len(data))); err != nil {
			return "", err
		}
	}

	fullPath := filepath.Join(dir, name)

	// go-update renames the current target away first, so it has to exist.
	var createdPlaceholder bool

	if _, err := os.Stat(fullPath); errors.Is(err, os.ErrNotExist) {
		placeholder, createErr := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY, FilePermissions)
		if createErr != nil {
			return "", fmt.Errorf("create %s: %w", fullPath, createErr)
		}

		_ = placeholder.Close()
		createdPlaceholder = true
	}

	options := goupdate.Options{
		TargetPath: fullPath,
		TargetMode: FilePermissions,
	}

	if err := s.apply(bytes.NewReader(data), options); err != nil {
		if createdPlaceholder {
			if removeErr := os.Remove(fullPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				logger.WarnKV(ctx, "Unable to remove placeholder", "path", fullPath, "error", removeErr)
			}
		}

		return "", fmt.Errorf("write %s: %w", fullPath, err)
	}

	logger.DebugKV(ctx, "Archive saved", "path", fullPath, "bytes", len(data))

	return fullPath, nil
}

// ensureFreeSpace fails when the volume holding dir has less than size bytes free.
func ensureFreeSpace(dir string, size uint64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("disk usage of %s: %w", dir, err)
	}

	if usage.Free < size {
		return fmt.Errorf("%s: need %d bytes, %d available: %w", dir, size, usage.Free, ErrInsufficientSpace)
	}

	return nil
}
