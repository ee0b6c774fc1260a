package streetview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dpup/strava-gpx/internal/lib/geo"
)

// Street View Static API defaults
const (
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/streetview"
	DefaultSize    = "640x640"
	DefaultFOV     = 120
)

// ErrMissingAPIKey is returned when a client is used without credentials
var ErrMissingAPIKey = errors.New("street view API key is not set")

// HTTPDoer executes HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Frame is one Street View sample: where to stand and which way to look
type Frame struct {
	Location geo.Point `json:"location"`
	Heading  float64   `json:"heading"` // degrees clockwise from north
}

// Client provides access to the Street View Static API
type Client struct {
	apiKey     string
	baseURL    string
	size       string
	fov        int
	httpClient HTTPDoer
}

// NewClient creates a new Street View Static API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, DefaultBaseURL, &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client with a custom base URL and HTTP client
func NewClientWithHTTPDoer(apiKey, baseURL string, httpClient HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		size:       DefaultSize,
		fov:        DefaultFOV,
		httpClient: httpClient,
	}
}

// SetImageOptions overrides the image size ("WxH") and horizontal field of view in degrees
func (c *Client) SetImageOptions(size string, fov int) {
	c.size = size
	c.fov = fov
}

// ImageURL returns the Street View Static API request URL for frame.
// The heading is truncated to whole degrees.
func (c *Client) ImageURL(frame Frame) string {
	params := url.Values{}
	params.Set("location", strconv.FormatFloat(frame.Location.Latitude, 'f', -1, 64)+","+
		strconv.FormatFloat(frame.Location.Longitude, 'f', -1, 64))
	params.Set("heading", strconv.Itoa(int(frame.Heading)))
	params.Set("size", c.size)
	params.Set("fov", strconv.Itoa(c.fov))
	params.Set("key", c.apiKey)
	return c.baseURL + "?" + params.Encode()
}

// FetchImage downloads the image for frame and copies it to w
func (c *Client) FetchImage(ctx context.Context, frame Frame, w io.Writer) (int64, error) {
	if c.apiKey == "" {
		return 0, ErrMissingAPIKey
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.ImageURL(frame), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read image: %w", err)
	}
	return n, nil
}
