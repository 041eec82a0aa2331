package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zailonsoft/carbot/internal/models"
)

// DefaultTimeout bounds every call to the catalog service.
const DefaultTimeout = 5 * time.Second

// maxImageBytes caps vehicle image downloads.
const maxImageBytes = 16 << 20

// Opts configures an HTTPClient.
type Opts struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures an HTTPClient.
type Option func(*Opts)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// HTTPClient implements Source, ImageFetcher and Clients against the catalog service.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

var (
	_ Source       = (*HTTPClient)(nil)
	_ ImageFetcher = (*HTTPClient)(nil)
	_ Clients      = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid catalog URL %q", baseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(u.String(), "/"),
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ListVehicles implements Source.
func (c *HTTPClient) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	if err := c.do(ctx, http.MethodGet, "/api/cars", nil, &vehicles); err != nil {
		slog.Error("Catalog ListVehicles failed", "error", err)
		return nil, err
	}
	slog.Debug("Catalog ListVehicles succeeded", "count", len(vehicles))
	return vehicles, nil
}

type createResponse struct {
	ID models.FlexString `json:"id"`
}

// CreateClient implements Clients.
func (c *HTTPClient) CreateClient(ctx context.Context, rec models.ClientRecord) (string, error) {
	rec.ID = ""
	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/api/clients", rec, &out); err != nil {
		slog.Error("Catalog CreateClient failed", "error", err, "phone", rec.Phone)
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create client: response has no id")
	}
	slog.Debug("Catalog CreateClient succeeded", "id", out.ID, "phone", rec.Phone)
	return string(out.ID), nil
}

// UpdateClient implements Clients.
func (c *HTTPClient) UpdateClient(ctx context.Context, id string, rec models.ClientRecord) error {
	if id == "" {
		return fmt.Errorf("update client: empty id")
	}
	rec.ID = id
	if err := c.do(ctx, http.MethodPut, "/api/clients/"+url.PathEscape(id), rec, nil); err != nil {
		slog.Error("Catalog UpdateClient failed", "error", err, "id", id)
		return err
	}
	slog.Debug("Catalog UpdateClient succeeded", "id", id)
	return nil
}

// FetchImage implements ImageFetcher. Relative references are served by the
// catalog service under /cars/.
func (c *HTTPClient) FetchImage(ctx context.Context, ref string) (models.Media, error) {
	target := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		target = c.baseURL + "/cars/" + strings.TrimLeft(ref, "/")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.Media{}, fmt.Errorf("build image request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return models.Media{}, fmt.Errorf("fetch image %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return models.Media{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return models.Media{}, fmt.Errorf("fetch image %s: unexpected status %d", ref, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return models.Media{}, fmt.Errorf("read image %s: %w", ref, err)
	}
	return models.Media{Data: data, Mimetype: mimetype.Detect(data).String(), Filename: baseName(ref)}, nil
}

func baseName(ref string) string {
	if i := strings.LastIndexAny(ref, "/\\"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
