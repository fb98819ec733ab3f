package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/onec-updater/internal/logger"
)

const (
	// MarkerFilename marks that the updater is running right now to avoid parallel execution.
	// It is created next to the settings file and holds the PID of the owner.
	MarkerFilename = "onec-updater.marker"

	// ConfigurationArchiveFilename is the fixed name of every configuration chain archive.
	ConfigurationArchiveFilename = "1cv8.zip"

	// platformArchiveExtension is appended to the platform version to name its archive.
	platformArchiveExtension = ".zip"

	// platformProduct names the platform in the download journal.
	platformProduct = "platform"

	// markerPermissions is used for the marker file.
	markerPermissions os.FileMode = 0o600

	// baseUpdaterExecutable is the updater binary name without extension.
	baseUpdaterExecutable = "onec-updater"

	// bytesInMegabyte converts sizes for log lines.
	bytesInMegabyte = 1024 * 1024
)

var errUpdaterAlreadyRunning = errors.New("the updater is already running")

// acquireMarker creates the run marker at path and returns a function removing it.
// An existing marker is honoured only while its owner process is still alive.
func acquireMarker(ctx context.Context, path string) (func(), error) {
	logger.Debug(ctx, "Checking for the presence of a run marker")

	if IsUpdaterRunningNow(ctx, path) {
		return nil, errUpdaterAlreadyRunning
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid), markerPermissions); err != nil {
		return nil, fmt.Errorf("create run marker: %w", err)
	}

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove run marker", "path", path, "error", err)
		}
	}, nil
}

// IsUpdaterRunningNow reports whether the marker at path belongs to a live
// updater process. A stale marker is removed.
func IsUpdaterRunningNow(ctx context.Context, path string) bool {
	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	if err != nil {
		logger.WarnKV(ctx, "Unable to read run marker", "path", path, "error", err)
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err == nil && pid != os.Getpid() && isUpdaterProcess(pid) {
		return true
	}

	logger.InfoKV(ctx, "The run marker is stale, removing it", "path", path)

	if err = os.Remove(path); err != nil {
		logger.WarnKV(ctx, "Unable to remove stale run marker", "path", path, "error", err)
		return true
	}

	return false
}

// isUpdaterProcess reports whether pid is a live updater process.
func isUpdaterProcess(pid int) bool {
	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return false
	}

	return strings.EqualFold(process.Executable(), updaterExecutable())
}

// updaterExecutable returns the updater binary name for the current platform.
func updaterExecutable() string {
	if runtime.GOOS == "windows" {
		return baseUpdaterExecutable + ".exe"
	}

	return baseUpdaterExecutable
}

// megabytes renders a size in bytes as megabytes with two decimals.
func megabytes(size int64) string {
	return strconv.FormatFloat(float64(size)/bytesInMegabyte, 'f', 2, 64)
}
