package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/charmap"

	"github.com/oshokin/onec-updater/internal/logger"
)

const (
	// dirPermissions is used for directories created during extraction.
	dirPermissions os.FileMode = 0o755
	// filePermissions is used for extracted files.
	filePermissions os.FileMode = 0o644
)

var errUnsafeEntry = errors.New("entry escapes the target directory")

// Result summarizes an extraction.
type Result struct {
	// Extracted is the number of files written.
	Extracted int
	// Failed is the number of entries that could not be written.
	Failed int
}

// Unpack extracts zipPath into directory. An empty directory means the
// directory containing the archive. When remove is true the archive is
// deleted after extraction.
//
// Only a failure to open the archive (or to remove it) is returned; per-entry
// failures are logged and counted in the result.
func Unpack(ctx context.Context, zipPath, directory string, remove bool) (*Result, error) {
	if directory == "" {
		directory = filepath.Dir(zipPath)
	}

	reader, err := zip.OpenReader(filepath.Clean(zipPath))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", zipPath, err)
	}

	result := new(Result)

	for _, file := range reader.File {
		if err = extractEntry(file, directory); err != nil {
			result.Failed++

			logger.ErrorKV(ctx, "Ошибка распаковки файла.",
				"entry", entryName(file), "error", err)

			continue
		}

		if !file.FileInfo().IsDir() {
			result.Extracted++
		}
	}

	if err = reader.Close(); err != nil {
		logger.WarnKV(ctx, "Не удалось закрыть архив", "path", zipPath, "error", err)
	}

	if remove {
		if err = os.Remove(zipPath); err != nil {
			return result, fmt.Errorf("remove archive %s: %w", zipPath, err)
		}
	}

	return result, nil
}

// extractEntry writes a single archive entry under directory.
func extractEntry(file *zip.File, directory string) error {
	target, err := entryPath(directory, entryName(file))
	if err != nil {
		return err
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, dirPermissions)
	}

	if err = os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return err
	}

	source, err := file.Open()
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	output, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(output, source); err != nil {
		_ = output.Close()

		return err
	}

	return output.Close()
}

// entryPath converts a stored name to a local path under directory.
func entryPath(directory, name string) (string, error) {
	local := strings.ReplaceAll(name, "/", string(filepath.Separator))
	target := filepath.Join(directory, local)

	rel, err := filepath.Rel(directory, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, errUnsafeEntry)
	}

	return target, nil
}

// entryName returns the entry name as UTF-8.
// Archives produced on Russian Windows store names in CP866 without the
// UTF-8 flag; names that are already valid UTF-8 are kept as is.
func entryName(file *zip.File) string {
	name := file.Name
	if !file.NonUTF8 || utf8.ValidString(name) {
		return name
	}

	decoded, err := charmap.CodePage866.NewDecoder().String(name)
	if err != nil {
		return name
	}

	return decoded
}
