package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

type entry struct {
	name string
	body string
}

// writeArchive creates a zip at path with the given entries in order.
func writeArchive(t *testing.T, path string, entries ...entry) {
	t.Helper()

	out, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(out)

	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)

		_, err = f.Write([]byte(e.body))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
}

// TestUnpack_NestedEntries checks that slash-separated names land in local subdirectories.
func TestUnpack_NestedEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "1cv8.zip")

	writeArchive(t, zipPath,
		entry{name: "1cv8.cf", body: "configuration"},
		entry{name: "docs/ru/ReadMe.txt", body: "readme"},
		entry{name: "Шаблоны/описание.htm", body: "описание"},
	)

	result, err := Unpack(context.Background(), zipPath, "", false)
	require.NoError(t, err)
	require.Equal(t, 3, result.Extracted)
	require.Zero(t, result.Failed)

	body, err := os.ReadFile(filepath.Join(dir, "docs", "ru", "ReadMe.txt"))
	require.NoError(t, err)
	require.Equal(t, "readme", string(body))

	body, err = os.ReadFile(filepath.Join(dir, "Шаблоны", "описание.htm"))
	require.NoError(t, err)
	require.Equal(t, "описание", string(body))

	// The archive is kept unless removal is requested.
	_, err = os.Stat(zipPath)
	require.NoError(t, err)
}

// TestUnpack_ExplicitDirectoryAndRemove extracts elsewhere and deletes the archive.
func TestUnpack_ExplicitDirectoryAndRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "out")
	zipPath := filepath.Join(dir, "8.3.20.1.zip")

	writeArchive(t, zipPath, entry{name: "bin/1cv8.exe", body: "binary"})

	result, err := Unpack(context.Background(), zipPath, target, true)
	require.NoError(t, err)
	require.Equal(t, 1, result.Extracted)

	_, err = os.Stat(filepath.Join(target, "bin", "1cv8.exe"))
	require.NoError(t, err)

	_, err = os.Stat(zipPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestUnpack_ContinuesAfterEntryFailure ensures one bad entry does not stop extraction.
func TestUnpack_ContinuesAfterEntryFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "broken.zip")

	writeArchive(t, zipPath,
		entry{name: "a", body: "file, not a directory"},
		entry{name: "a/b.txt", body: "cannot be created"},
		entry{name: "../escape.txt", body: "outside"},
		entry{name: "c.txt", body: "fine"},
	)

	result, err := Unpack(context.Background(), zipPath, "", false)
	require.NoError(t, err)
	require.Equal(t, 2, result.Extracted)
	require.Equal(t, 2, result.Failed)

	body, err := os.ReadFile(filepath.Join(dir, "c.txt"))
	require.NoError(t, err)
	require.Equal(t, "fine", string(body))

	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestUnpack_LegacyEncodedNames decodes CP866 names stored without the UTF-8 flag.
func TestUnpack_LegacyEncodedNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "legacy.zip")

	legacyName, err := charmap.CodePage866.NewEncoder().String("Отчет/Итоги.txt")
	require.NoError(t, err)

	writeArchive(t, zipPath, entry{name: legacyName, body: "итоги"})

	_, err = Unpack(context.Background(), zipPath, "", false)
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(dir, "Отчет", "Итоги.txt"))
	require.NoError(t, err)
	require.Equal(t, "итоги", string(body))
}

// TestUnpack_MissingArchive reports an open failure.
func TestUnpack_MissingArchive(t *testing.T) {
	t.Parallel()

	_, err := Unpack(context.Background(), filepath.Join(t.TempDir(), "absent.zip"), "", false)
	require.Error(t, err)
}
