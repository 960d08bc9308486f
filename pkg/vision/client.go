// Package vision provides a client for the egg-detection sidecar. The
// sidecar owns the model; this service only ever sees an integer count and,
// on request, an annotated snapshot.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the detection operations.
type Client interface {
	// Count returns the number of eggs detected in the image at path.
	Count(ctx context.Context, path string) (int, error)
	// Process runs detection on src and writes the annotated snapshot
	// (bounding boxes plus count overlay) to dst, returning the count.
	Process(ctx context.Context, src, dst string) (int, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.client = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.client.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// New creates a detection client for the sidecar at baseURL.
func New(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type countResponse struct {
	Count int `json:"count"`
}

func (c *httpClient) Count(ctx context.Context, path string) (int, error) {
	body, err := c.post(ctx, "/detect", path)
	if err != nil {
		return 0, err
	}
	var out countResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, eris.Wrap(err, "vision: decode count response")
	}
	return out.Count, nil
}

func (c *httpClient) Process(ctx context.Context, src, dst string) (int, error) {
	img, err := os.ReadFile(src)
	if err != nil {
		return 0, eris.Wrapf(err, "vision: read image %s", src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/annotate", bytes.NewReader(img))
	if err != nil {
		return 0, eris.Wrap(err, "vision: build annotate request")
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "vision: annotate request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, eris.New(fmt.Sprintf("vision: annotate returned %d", resp.StatusCode))
	}

	count, err := strconv.Atoi(resp.Header.Get("X-Egg-Count"))
	if err != nil {
		return 0, eris.Wrap(err, "vision: parse count header")
	}

	annotated, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "vision: read annotated image")
	}
	if err := os.WriteFile(dst, annotated, 0o644); err != nil {
		return 0, eris.Wrapf(err, "vision: write snapshot %s", dst)
	}
	return count, nil
}

func (c *httpClient) post(ctx context.Context, endpoint, imagePath string) ([]byte, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, eris.Wrapf(err, "vision: read image %s", imagePath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(img))
	if err != nil {
		return nil, eris.Wrap(err, "vision: build request")
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "vision: POST %s", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "vision: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.New(fmt.Sprintf("vision: %s returned %d: %s", endpoint, resp.StatusCode, string(body)))
	}
	return body, nil
}
