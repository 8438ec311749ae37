package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"usd/internal/models"
	"usd/internal/structures"

	json "github.com/goccy/go-json"
)

const maxResponseBody = 64 << 10

type IngestClientInterface interface {
	// Ingest posts one batch. Any non-2xx status is returned as *HTTPStatusError.
	Ingest(ctx context.Context, endpoint string, apiKey string, req *models.IngestRequest) (*models.IngestResponse, error)
	// Probe sends a HEAD request to the endpoint root and returns the status code.
	Probe(ctx context.Context, endpoint string) (int, error)
}

type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

type IngestClient struct {
	HTTPClient *http.Client
	ingestPath string
	authHeader string
	userAgent  string
}

type IngestClientOption func(*IngestClient)

func WithHTTPClient(httpClient *http.Client) IngestClientOption {
	return func(c *IngestClient) {
		if httpClient != nil {
			c.HTTPClient = httpClient
		}
	}
}

func NewIngestClient(conf *structures.Config, opts ...IngestClientOption) IngestClientInterface {
	c := &IngestClient{
		HTTPClient: http.DefaultClient,
		ingestPath: conf.Uploader.IngestPath,
		authHeader: conf.Uploader.AuthHeader,
		userAgent:  "usd/" + conf.Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeEndpoint trims the configured URL, assumes http:// when no scheme
// is given and drops trailing slashes.
func NormalizeEndpoint(raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", models.ErrMissingEndpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	endpoint = strings.TrimRight(endpoint, "/")

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint url %q: missing host", raw)
	}
	return endpoint, nil
}

func (c *IngestClient) Ingest(ctx context.Context, endpoint string, apiKey string, req *models.IngestRequest) (*models.IngestResponse, error) {
	base, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+c.ingestPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(c.authHeader, apiKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	out := &models.IngestResponse{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(respBody)) > 0 {
		// The body is optional; an unreadable one does not undo a 2xx.
		_ = json.Unmarshal(respBody, out)
		out.StatusCode = resp.StatusCode
	}
	return out, nil
}

func (c *IngestClient) Probe(ctx context.Context, endpoint string) (int, error) {
	base, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
