// Package transport carries requests to the matching service and opens the
// chat provider's streaming connection. It knows nothing about sessions:
// callers pass every header explicitly.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"
)

// Request is a single JSON call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is encoded as JSON when non-nil.
	Body any
}

// Response is a successful (2xx) reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Requester performs request/response calls.
type Requester interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPClient implements Requester over net/http.
type HTTPClient struct {
	baseURL *url.URL
	hc      *http.Client
	limiter *rate.Limiter

	cache      http.RoundTripper
	cachePaths map[string]bool
}

type Option func(*HTTPClient)

// WithTimeout bounds every call, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.hc.Timeout = d }
}

// WithRateLimit paces outgoing calls. Calls wait for a token; nothing is
// retried.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *HTTPClient) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithResponseCache serves repeated GETs for the listed paths from an
// in-memory HTTP cache, honouring the server's cache headers. Cache keys
// are the URL alone, so list only paths whose responses do not depend on
// the caller's credentials.
func WithResponseCache(paths ...string) Option {
	return func(c *HTTPClient) {
		t := httpcache.NewMemoryCacheTransport()
		t.Transport = c.hc.Transport
		c.cache = t
		c.cachePaths = make(map[string]bool, len(paths))
		for _, p := range paths {
			c.cachePaths[p] = true
		}
	}
}

// client picks the cached transport for cacheable GETs.
func (c *HTTPClient) client(req *Request) *http.Client {
	if c.cache != nil && req.Method == http.MethodGet && c.cachePaths[req.Path] {
		return &http.Client{Transport: c.cache, Timeout: c.hc.Timeout}
	}
	return c.hc
}

// WithHTTPClient replaces the underlying client. Apply it before options
// that wrap the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.hc = hc }
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing base URL: %q is not absolute", baseURL)
	}

	c := &HTTPClient{baseURL: u, hc: &http.Client{Transport: http.DefaultTransport}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client(req).Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: req.Method,
			Path:   req.Path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
