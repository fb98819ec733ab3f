package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/oshokin/onec-updater/internal/version"
)

// maxErrorBody limits how much of an error response ends up in the error text.
const maxErrorBody = 512

var (
	errBaseURLRequired = errors.New("base url must be provided")
	errBadHTTPStatus   = errors.New("unexpected http status")
	errEmptyURL        = errors.New("distribution url is empty")
	errUnsafeSegment   = errors.New("path segment must not be empty or a dot segment")
)

// HTTPConnector implements Connector on top of the JSON update gateway.
type HTTPConnector struct {
	// baseURL is the gateway root every endpoint is resolved against.
	baseURL *url.URL
	// client performs the requests.
	client *http.Client

	login    string
	password string

	// callTimeout bounds metadata requests; downloads use the caller's context only.
	callTimeout time.Duration
}

// Option configures HTTPConnector behaviour.
type Option func(*HTTPConnector)

// WithCallTimeout sets the timeout for metadata requests.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *HTTPConnector) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithBasicAuth makes every request carry basic credentials.
func WithBasicAuth(login, password string) Option {
	return func(c *HTTPConnector) {
		c.login = login
		c.password = password
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPConnector) {
		if client != nil {
			c.client = client
		}
	}
}

// NewHTTPConnector creates a connector for the gateway rooted at baseURL.
func NewHTTPConnector(baseURL string, opts ...Option) (*HTTPConnector, error) {
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &HTTPConnector{
		baseURL: parsed,
		client:  http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// CheckPlatformUpdate asks for a platform newer than currentVersion.
func (c *HTTPConnector) CheckPlatformUpdate(ctx context.Context, currentVersion string) (*PlatformUpdate, error) {
	query := url.Values{"version": {currentVersion}}

	endpoint, err := c.endpoint(query, "platform", "update")
	if err != nil {
		return nil, err
	}

	var update PlatformUpdate

	found, err := c.getJSON(ctx, endpoint, &update)
	if err != nil || !found {
		return nil, err
	}

	return &update, nil
}

// PlatformDownloadURL resolves a distribution identifier.
func (c *HTTPConnector) PlatformDownloadURL(ctx context.Context, distributionUIN string) (string, error) {
	var response struct {
		URL string `json:"url"`
	}

	endpoint, err := c.endpoint(nil, "platform", "distributions", distributionUIN)
	if err != nil {
		return "", err
	}

	found, err := c.getJSON(ctx, endpoint, &response)
	if err != nil {
		return "", err
	}

	if !found || response.URL == "" {
		return "", fmt.Errorf("distribution %s: %w", distributionUIN, errEmptyURL)
	}

	return response.URL, nil
}

// CheckConfigurationUpdate asks for the update chain of a product.
func (c *HTTPConnector) CheckConfigurationUpdate(
	ctx context.Context,
	programName, currentVersion, platformVersion string,
) (*ConfigurationUpdate, error) {
	query := url.Values{
		"version":         {currentVersion},
		"platformVersion": {platformVersion},
	}

	endpoint, err := c.endpoint(query, "configurations", programName, "update")
	if err != nil {
		return nil, err
	}

	var update ConfigurationUpdate

	found, err := c.getJSON(ctx, endpoint, &update)
	if err != nil || !found {
		return nil, err
	}

	return &update, nil
}

// ConfigurationDownloadData resolves a chain step.
func (c *HTTPConnector) ConfigurationDownloadData(
	ctx context.Context,
	upgradeUIN, programVersionUIN string,
) (*DownloadData, error) {
	query := url.Values{"programVersionUin": {programVersionUIN}}

	endpoint, err := c.endpoint(query, "configurations", "upgrades", upgradeUIN)
	if err != nil {
		return nil, err
	}

	var data DownloadData

	found, err := c.getJSON(ctx, endpoint, &data)
	if err != nil || !found {
		return nil, err
	}

	return &data, nil
}

// DownloadFile fetches the whole archive into memory.
// Relative URLs are resolved against the gateway root.
func (c *HTTPConnector) DownloadFile(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := c.baseURL.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse download url: %w", err)
	}

	response, err := c.do(ctx, target.String())
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, statusError(target.String(), response)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	return data, nil
}

// endpoint composes a gateway URL from escaped path segments.
// Empty and dot segments are rejected, path.Join would fold them away.
func (c *HTTPConnector) endpoint(query url.Values, segments ...string) (string, error) {
	escaped := make([]string, 0, len(segments)+2)
	escaped = append(escaped, "/", c.baseURL.EscapedPath())

	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%q: %w", segment, errUnsafeSegment)
		}

		escaped = append(escaped, url.PathEscape(segment))
	}

	endpoint := *c.baseURL
	// Use path.Join to normalize duplicate slashes when composing the URL path.
	endpoint.RawPath = path.Join(escaped...)
	endpoint.Path, _ = url.PathUnescape(endpoint.RawPath)
	endpoint.RawQuery = query.Encode()

	return endpoint.String(), nil
}

// getJSON performs a metadata request. It reports found == false for
// 204 No Content and 404 Not Found, which the gateway uses for "no result".
func (c *HTTPConnector) getJSON(ctx context.Context, endpoint string, target any) (bool, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.do(callCtx, endpoint)
	if err != nil {
		return false, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	switch response.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return false, nil
	default:
		return false, statusError(endpoint, response)
	}

	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}

		return false, fmt.Errorf("decode %s: %w", endpoint, err)
	}

	return true, nil
}

func (c *HTTPConnector) do(ctx context.Context, endpoint string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())

	if c.login != "" {
		request.SetBasicAuth(c.login, c.password)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}

	return response, nil
}

// callContext returns a context with the metadata timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *HTTPConnector) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func statusError(endpoint string, response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))

	message := strings.TrimSpace(string(body))
	if message == "" {
		return fmt.Errorf("%s, %s: %w", endpoint, response.Status, errBadHTTPStatus)
	}

	return fmt.Errorf("%s, %s: %s: %w", endpoint, response.Status, message, errBadHTTPStatus)
}
