package updater

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/onec-updater/internal/connector"
)

var errNetwork = errors.New("connection reset by peer")

// fakeConnector is an in-memory update service that records every call.
type fakeConnector struct {
	platform       *connector.PlatformUpdate
	platformURLs   map[string]string
	configurations map[string]*connector.ConfigurationUpdate
	steps          map[string]*connector.DownloadData
	files          map[string][]byte

	// failDownloads makes DownloadFile fail for the listed URLs.
	failDownloads map[string]bool

	calls           []string
	platformQueries []string
	confQueries     []confQuery
	downloads       []string
}

type confQuery struct {
	program, version, platform string
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		platformURLs:   make(map[string]string),
		configurations: make(map[string]*connector.ConfigurationUpdate),
		steps:          make(map[string]*connector.DownloadData),
		files:          make(map[string][]byte),
		failDownloads:  make(map[string]bool),
	}
}

func (f *fakeConnector) CheckPlatformUpdate(_ context.Context, currentVersion string) (*connector.PlatformUpdate, error) {
	f.calls = append(f.calls, "CheckPlatformUpdate")
	f.platformQueries = append(f.platformQueries, currentVersion)

	return f.platform, nil
}

func (f *fakeConnector) PlatformDownloadURL(_ context.Context, distributionUIN string) (string, error) {
	f.calls = append(f.calls, "PlatformDownloadURL")

	return f.platformURLs[distributionUIN], nil
}

func (f *fakeConnector) CheckConfigurationUpdate(
	_ context.Context,
	programName, currentVersion, platformVersion string,
) (*connector.ConfigurationUpdate, error) {
	f.calls = append(f.calls, "CheckConfigurationUpdate")
	f.confQueries = append(f.confQueries, confQuery{programName, currentVersion, platformVersion})

	return f.configurations[programName], nil
}

func (f *fakeConnector) ConfigurationDownloadData(
	_ context.Context,
	upgradeUIN, _ string,
) (*connector.DownloadData, error) {
	f.calls = append(f.calls, "ConfigurationDownloadData")

	return f.steps[upgradeUIN], nil
}

func (f *fakeConnector) DownloadFile(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, "DownloadFile")
	f.downloads = append(f.downloads, url)

	if f.failDownloads[url] {
		return nil, errNetwork
	}

	return f.files[url], nil
}

// zipBytes builds an in-memory archive from name/body pairs.
func zipBytes(t *testing.T, pairs ...string) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := zip.NewWriter(&buf)

	for i := 0; i+1 < len(pairs); i += 2 {
		f, err := w.Create(pairs[i])
		require.NoError(t, err)

		_, err = f.Write([]byte(pairs[i+1]))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	return buf.Bytes()
}
