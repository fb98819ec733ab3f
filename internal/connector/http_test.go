package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newGateway starts an httptest server answering the gateway endpoints under /api.
func newGateway(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/platform/update", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("version") == "8.3.20.1" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		_ = json.NewEncoder(w).Encode(PlatformUpdate{
			PlatformVersion: "8.3.20.1",
			Size:            1024,
			DistributionUIN: "dist-1",
		})
	})

	mux.HandleFunc("/api/platform/distributions/dist-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url": "/files/platform.zip"}`))
	})

	mux.HandleFunc("/api/configurations/Accounting/update", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("platformVersion") != "8.3.20.1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(ConfigurationUpdate{
			ConfigurationVersion: "3.0.151.1",
			ProgramVersionUIN:    "pv-1",
			UpgradeSequence:      []string{"step-1", "step-2"},
		})
	})

	mux.HandleFunc("/api/configurations/upgrades/step-1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("programVersionUin") != "pv-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(DownloadData{
			TemplatePath:  `1c\Accounting\3_0_151_1`,
			Size:          2048,
			UpdateFileURL: "/files/conf.zip",
		})
	})

	mux.HandleFunc("/files/platform.zip", func(w http.ResponseWriter, r *http.Request) {
		login, password, ok := r.BasicAuth()
		if !ok || login != "user" || password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad credentials"))

			return
		}

		_, _ = w.Write([]byte("platform-bytes"))
	})

	mux.HandleFunc("/api/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// TestHTTPConnector_Platform covers the platform endpoints and the "no result" status.
func TestHTTPConnector_Platform(t *testing.T) {
	t.Parallel()

	server := newGateway(t)

	c, err := NewHTTPConnector(server.URL+"/api", WithBasicAuth("user", "secret"), WithCallTimeout(time.Second))
	require.NoError(t, err)

	ctx := context.Background()

	update, err := c.CheckPlatformUpdate(ctx, "8.3.19.1")
	require.NoError(t, err)
	require.Equal(t, &PlatformUpdate{PlatformVersion: "8.3.20.1", Size: 1024, DistributionUIN: "dist-1"}, update)

	update, err = c.CheckPlatformUpdate(ctx, "8.3.20.1")
	require.NoError(t, err)
	require.Nil(t, update)

	downloadURL, err := c.PlatformDownloadURL(ctx, "dist-1")
	require.NoError(t, err)
	require.Equal(t, "/files/platform.zip", downloadURL)

	data, err := c.DownloadFile(ctx, downloadURL)
	require.NoError(t, err)
	require.Equal(t, "platform-bytes", string(data))

	_, err = c.PlatformDownloadURL(ctx, "unknown")
	require.ErrorIs(t, err, errEmptyURL)
}

// TestHTTPConnector_Configuration covers chain lookups, including a missing step.
func TestHTTPConnector_Configuration(t *testing.T) {
	t.Parallel()

	server := newGateway(t)

	c, err := NewHTTPConnector(server.URL + "/api/")
	require.NoError(t, err)

	ctx := context.Background()

	update, err := c.CheckConfigurationUpdate(ctx, "Accounting", "3.0.150.25", "8.3.20.1")
	require.NoError(t, err)
	require.Equal(t, []string{"step-1", "step-2"}, update.UpgradeSequence)
	require.Equal(t, "pv-1", update.ProgramVersionUIN)

	data, err := c.ConfigurationDownloadData(ctx, "step-1", "pv-1")
	require.NoError(t, err)
	require.Equal(t, `1c\Accounting\3_0_151_1`, data.TemplatePath)
	require.EqualValues(t, 2048, data.Size)

	data, err = c.ConfigurationDownloadData(ctx, "step-2", "pv-1")
	require.NoError(t, err)
	require.Nil(t, data)
}

// TestHTTPConnector_Errors checks status and credential failures.
func TestHTTPConnector_Errors(t *testing.T) {
	t.Parallel()

	server := newGateway(t)

	_, err := NewHTTPConnector("")
	require.ErrorIs(t, err, errBaseURLRequired)

	c, err := NewHTTPConnector(server.URL + "/api")
	require.NoError(t, err)

	_, err = c.DownloadFile(context.Background(), "/files/platform.zip")
	require.ErrorIs(t, err, errBadHTTPStatus)
	require.Contains(t, err.Error(), "bad credentials")

	found, err := c.getJSON(context.Background(), server.URL+"/api/broken", new(struct{}))
	require.ErrorIs(t, err, errBadHTTPStatus)
	require.False(t, found)
}

// TestHTTPConnector_endpoint escapes segments and keeps the base path.
func TestHTTPConnector_endpoint(t *testing.T) {
	t.Parallel()

	c, err := NewHTTPConnector("https://updates.local/api/v1/")
	require.NoError(t, err)

	endpoint, err := c.endpoint(map[string][]string{"version": {"1.2.3.4"}}, "configurations", "a/b", "update")
	require.NoError(t, err)
	require.Equal(t, "https://updates.local/api/v1/configurations/a%2Fb/update?version=1.2.3.4", endpoint)

	endpoint, err = c.endpoint(nil, "platform", "distributions", "x")
	require.NoError(t, err)
	require.Equal(t, "https://updates.local/api/v1/platform/distributions/x", endpoint)

	for _, segment := range []string{"", ".", ".."} {
		_, err = c.endpoint(nil, "configurations", segment, "update")
		require.ErrorIs(t, err, errUnsafeSegment, segment)
	}
}

// TestHTTPConnector_DotSegments never sends a request whose path a dot segment would rewrite.
func TestHTTPConnector_DotSegments(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	c, err := NewHTTPConnector(server.URL + "/api")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = c.CheckConfigurationUpdate(ctx, "..", "3.0.150.25", "8.3.20.1")
	require.ErrorIs(t, err, errUnsafeSegment)

	_, err = c.ConfigurationDownloadData(ctx, ".", "pv-1")
	require.ErrorIs(t, err, errUnsafeSegment)

	_, err = c.PlatformDownloadURL(ctx, "..")
	require.ErrorIs(t, err, errUnsafeSegment)

	require.Zero(t, requests.Load())
}

// TestHTTPConnector_callContext checks timeout vs cancel-only behaviour.
func TestHTTPConnector_callContext(t *testing.T) {
	t.Parallel()

	c := &HTTPConnector{}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	_, ok := ctx.Deadline()
	require.False(t, ok)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}
