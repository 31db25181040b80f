// Package upstream is the shared HTTP client for collaborator services
// (introspection, client directory, FIDO server).
package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfinance-sandbox/fapigw/internal/obs"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Error is returned for every failed collaborator call.
type Error struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client calls one collaborator service.
type Client struct {
	service string
	http    *http.Client
	tracer  trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. A zero Timeout on hc
// inherits the bound given to New.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		cp := *hc
		if cp.Timeout == 0 {
			cp.Timeout = c.http.Timeout
		}
		c.http = &cp
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New builds a client bounded by timeout (DefaultTimeout when <= 0).
func New(service string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		service: service,
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("github.com/openfinance-sandbox/fapigw/internal/upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET and decodes a JSON answer into out.
func (c *Client) GetJSON(ctx context.Context, op, rawURL string, out any) error {
	return c.do(ctx, op, http.MethodGet, rawURL, nil, nil, out)
}

// PostJSON sends in as JSON and decodes the answer into out (nil discards it).
func (c *Client) PostJSON(ctx context.Context, op, rawURL string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &Error{Service: c.service, Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	return c.do(ctx, op, http.MethodPost, rawURL, bytes.NewReader(body), header, out)
}

// PostForm sends a form-encoded body with optional Basic credentials.
func (c *Client) PostForm(ctx context.Context, op, rawURL string, form url.Values, user, password string, out any) error {
	header := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}
	if user != "" || password != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+password)))
	}
	return c.do(ctx, op, http.MethodPost, rawURL, strings.NewReader(form.Encode()), header, out)
}

func (c *Client) do(ctx context.Context, op, method, rawURL string, body io.Reader, header http.Header, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, c.service+"."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", c.service),
			attribute.String("http.request.method", method),
		))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		obs.ObserveUpstream(c.service, op, outcome, time.Since(start))
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return &Error{Service: c.service, Op: op, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Service: c.service, Op: op, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Service: c.service, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Service: c.service, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(data)))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Service: c.service, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
