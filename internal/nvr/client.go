// Package nvr relays the NVR's HTTP API and HLS output through the
// gateway so the mobile app reaches everything over one public address.
package nvr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/linkstation/modemgw/internal/logging"
)

const (
	// defaultFileTimeout covers recorded MP4 delivery where the first
	// byte can take well over the metadata timeout on a loaded disk.
	defaultFileTimeout = 30 * time.Second

	apiPrefix = "/v1"
)

// UpstreamError wraps a failed exchange with the NVR. Status is zero
// when the request never produced a response.
type UpstreamError struct {
	URL    string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("nvr upstream %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("nvr upstream %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying failure was a deadline.
func (e *UpstreamError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(e.Err, &ne) && ne.Timeout() {
		return true
	}
	// net/http wraps client timeouts in an url.Error with Timeout set.
	var ue *url.Error
	if errors.As(e.Err, &ue) && ue.Timeout() {
		return true
	}
	return false
}

// IsTimeout reports whether err is an upstream deadline failure.
func IsTimeout(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Timeout()
}

// ClientConfig describes how to reach the NVR.
type ClientConfig struct {
	// BaseURL is the NVR origin, e.g. http://192.168.99.11:8787.
	BaseURL string

	// Timeout bounds metadata and playlist requests.
	Timeout time.Duration

	// FileTimeout bounds recorded-file requests. Defaults to 30s.
	FileTimeout time.Duration

	Logger logging.Logger
}

// Client is a thin HTTP client for the NVR's JSON API and media paths.
type Client struct {
	baseURL string
	http    *http.Client
	file    *http.Client
	logger  logging.Logger
}

// NewClient builds a Client from config. The metadata and file paths
// get separate http.Clients because their timeouts differ by an order
// of magnitude.
func NewClient(cfg ClientConfig) *Client {
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = defaultFileTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger("nvr")
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		file:    &http.Client{Timeout: cfg.FileTimeout},
		logger:  logger,
	}
}

// getJSON fetches path relative to the NVR origin and decodes the
// response body. Non-2xx statuses are upstream errors, matching the
// relay contract where anything but success maps to a 502.
func (c *Client) getJSON(ctx context.Context, path string) (map[string]any, error) {
	u := c.baseURL + path
	c.logger.Debug("nvr get", "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &UpstreamError{URL: u, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &UpstreamError{URL: u, Status: resp.StatusCode}
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &UpstreamError{URL: u, Err: fmt.Errorf("decode body: %w", err)}
	}
	return data, nil
}

// Health proxies GET /v1/health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, apiPrefix+"/health")
}

// Cameras proxies GET /v1/cameras. The payload is forwarded verbatim
// so new NVR fields and either list- or map-shaped camera sets survive.
func (c *Client) Cameras(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, apiPrefix+"/cameras")
}

// Stream proxies GET /v1/cameras/{ip}/stream.
func (c *Client) Stream(ctx context.Context, ip string) (map[string]any, error) {
	return c.getJSON(ctx, apiPrefix+"/cameras/"+url.PathEscape(ip)+"/stream")
}

// LiveHLS proxies GET /v1/cameras/{ip}/live-hls?profile=sub|main.
func (c *Client) LiveHLS(ctx context.Context, ip, profile string) (map[string]any, error) {
	return c.getJSON(ctx, apiPrefix+"/cameras/"+url.PathEscape(ip)+"/live-hls?profile="+url.QueryEscape(profile))
}

// Recordings proxies GET /v1/recordings.
func (c *Client) Recordings(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, apiPrefix+"/recordings")
}

// RecordingDays proxies GET /v1/recordings/{ip}/days.
func (c *Client) RecordingDays(ctx context.Context, ip string) (map[string]any, error) {
	return c.getJSON(ctx, apiPrefix+"/recordings/"+url.PathEscape(ip)+"/days")
}

// RecordingSegments proxies GET /v1/recordings/{ip}/days/{date}/segments.
func (c *Client) RecordingSegments(ctx context.Context, ip, date string) (map[string]any, error) {
	return c.getJSON(ctx, apiPrefix+"/recordings/"+url.PathEscape(ip)+"/days/"+url.PathEscape(date)+"/segments")
}

// RecordingFile fetches a recorded file, forwarding Range and If-Range
// so the NVR can answer partial-content requests. The caller owns the
// response body. Upstream 4xx/5xx is returned as an error.
func (c *Client) RecordingFile(ctx context.Context, ip, date, filename, rangeHeader, ifRange string) (*http.Response, error) {
	u := c.baseURL + apiPrefix + "/recordings/" + url.PathEscape(ip) + "/files/" + url.PathEscape(date) + "/" + url.PathEscape(filename)
	c.logger.Debug("nvr get file", "url", u, "range", rangeHeader)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &UpstreamError{URL: u, Err: err}
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	if ifRange != "" {
		req.Header.Set("If-Range", ifRange)
	}

	resp, err := c.file.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: u, Err: err}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &UpstreamError{URL: u, Status: resp.StatusCode}
	}
	return resp, nil
}

// Live fetches an HLS artifact from the NVR's /live tree, either the
// playlist or a media segment. The caller owns the response body.
func (c *Client) Live(ctx context.Context, ip, profile, filename string) (*http.Response, error) {
	u := c.baseURL + "/live/" + url.PathEscape(ip) + "/" + url.PathEscape(profile) + "/" + filename
	c.logger.Debug("nvr get hls", "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &UpstreamError{URL: u, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: u, Err: err}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &UpstreamError{URL: u, Status: resp.StatusCode}
	}
	return resp, nil
}
