package templates

import (
	"fmt"
	"os"

	"github.com/oshokin/onec-updater/internal/domain/release"
)

// LatestVersionDirectory returns the name of the newest immediate
// subdirectory of dir whose name is a 4-part version such as "8.3.20.1".
// Other entries are ignored. found is false when no subdirectory qualifies.
//
// dir must exist: a listing failure is returned as an error.
func LatestVersionDirectory(dir string) (name string, found bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, fmt.Errorf("list version directories: %w", err)
	}

	var latest release.Version

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		v, ok := release.Parse(entry.Name())
		if !ok {
			continue
		}

		if !found || v.Compare(latest) > 0 {
			name, latest, found = entry.Name(), v, true
		}
	}

	return name, found, nil
}
