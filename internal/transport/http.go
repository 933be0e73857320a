package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single bridge request.
const DefaultTimeout = 10 * time.Second

// HTTP is a Transport over net/http bound to a base URL such as
// http://192.168.1.10/api/<username>.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTP) {
		t.httpClient = c
	}
}

// WithInsecureTLS skips certificate verification (the bridge serves a self-signed cert).
func WithInsecureTLS() HTTPOption {
	return func(t *HTTP) {
		t.httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
}

// NewHTTP creates a transport for baseURL. A zero timeout uses DefaultTimeout.
func NewHTTP(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTP {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	t := &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BaseURL returns the URL requests are resolved against.
func (t *HTTP) BaseURL() string {
	return t.baseURL
}

// URL returns the absolute URL for path.
func (t *HTTP) URL(path string) string {
	if path == "" || path == "/" {
		return t.baseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.baseURL + path
}

// Do performs the request and reads the full response body.
func (t *HTTP) Do(ctx context.Context, r *Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, t.URL(r.Path), body)
	if err != nil {
		return nil, Wrap(r, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, Wrap(r, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(r, err)
	}

	log.Debug().
		Str("method", r.Method).
		Str("path", r.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Bridge request")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Close releases idle connections.
func (t *HTTP) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
