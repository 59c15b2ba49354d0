// Package apiclient is the single HTTP client used to reach the authentication
// backend. Cross-cutting policies (bearer credentials, the 401 session reset,
// tracing) are applied as http.RoundTripper middleware so call sites stay plain.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/msomdec/agun-web/internal/domain"
)

// APIPrefix is appended to the configured backend URL.
const APIPrefix = "/api/v1"

const maxErrorBody = 64 << 10

// TokenSource yields the bearer token for a request, or "" when there is none.
type TokenSource func(ctx context.Context) string

// UnauthorizedHandler is invoked for every 401 response to a request that
// was not a credential exchange.
type UnauthorizedHandler func(ctx context.Context)

// Middleware decorates a transport.
type Middleware func(http.RoundTripper) http.RoundTripper

// Client sends JSON requests to the backend.
type Client struct {
	base *url.URL
	http *http.Client
}

type options struct {
	transport      http.RoundTripper
	timeout        time.Duration
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	tracer         trace.TracerProvider
	extra          []Middleware
}

// Option configures a Client.
type Option func(*options)

// WithTransport sets the innermost transport. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithTimeout bounds each request, including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(src TokenSource) Option {
	return func(o *options) { o.tokens = src }
}

// WithUnauthorizedHandler sets the hook run on 401 responses.
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(o *options) { o.onUnauthorized = h }
}

// WithTracerProvider enables client spans. Without it no spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithMiddleware appends transports that run inside the built-in chain.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *options) { o.extra = append(o.extra, mw...) }
}

// New builds a client for the backend at baseURL (scheme and host, optionally
// a path prefix); APIPrefix is appended.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url %q: must be an absolute http(s) URL", baseURL)
	}
	base = base.JoinPath(APIPrefix)

	o := options{transport: http.DefaultTransport, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	rt := o.transport
	for i := len(o.extra) - 1; i >= 0; i-- {
		rt = o.extra[i](rt)
	}
	rt = Unauthorized(o.onUnauthorized)(rt)
	rt = Bearer(o.tokens)(rt)
	if o.tracer != nil {
		rt = Tracing(o.tracer)(rt)
	}

	return &Client{
		base: base,
		http: &http.Client{Transport: rt, Timeout: o.timeout},
	}, nil
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Do sends in as JSON (when non-nil) to path and decodes a 2xx body into out
// (when non-nil). Non-2xx responses return *StatusError; transport failures
// wrap domain.ErrNetwork.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(resp.StatusCode, raw)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
