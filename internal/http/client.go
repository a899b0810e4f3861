package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 2
	MaxIdleConnsPerHost int

	// Timeout for individual requests, including reading the body.
	// Zero means no timeout.
	Timeout time.Duration

	// UserAgent is sent with every request when set.
	UserAgent string

	// Transport overrides the default transport.
	Transport http.RoundTripper
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 2,
	}
}

// Response is a successful response. The caller must close Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser

	contentLength int64
}

// ContentLength returns the declared length of the body.
func (r *Response) ContentLength() (uint64, error) {
	if r.contentLength < 0 {
		return 0, &MissingHeaderError{Name: "Content-Length"}
	}
	return uint64(r.contentLength), nil
}

// AcceptsRanges reports whether the server advertises byte-range support.
func (r *Response) AcceptsRanges() bool {
	return r.Header.Get("Accept-Ranges") == "bytes"
}

// ContentRange returns the parsed Content-Range header. ok is false when
// the header is absent or malformed.
func (r *Response) ContentRange() (start, end, total int64, ok bool) {
	header := r.Header.Get("Content-Range")
	if header == "" {
		return 0, 0, 0, false
	}
	start, end, total, err := ParseContentRange(header)
	return start, end, total, err == nil
}

// Client is an HTTP client for archive downloads.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
			MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true, // We want the raw gzip bytes
		}
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Get performs a GET request for the whole resource.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, url, "")
}

// GetRange performs a range request for a portion of the resource.
// startByte and endByte are inclusive (like HTTP Range header).
func (c *Client) GetRange(ctx context.Context, url string, startByte, endByte uint64) (*Response, error) {
	return c.do(ctx, url, fmt.Sprintf("bytes=%d-%d", startByte, endByte))
}

func (c *Client) do(ctx context.Context, url, byteRange string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{Method: http.MethodGet, URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: http.MethodGet, URL: url, Err: err}
	}

	if err := checkStatusCode(resp.StatusCode, resp.Status); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          &body{ReadCloser: resp.Body, url: url},
		contentLength: resp.ContentLength,
	}, nil
}

// body reports failures while reading a response body, such as a dropped
// connection, as network errors.
type body struct {
	io.ReadCloser
	url string
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = &NetworkError{Method: http.MethodGet, URL: b.url, Err: err}
	}
	return n, err
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
