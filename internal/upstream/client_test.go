package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"challenge":"abc"}`))
	}))
	defer srv.Close()

	c := New("fido", time.Second)
	var out struct {
		Challenge string `json:"challenge"`
	}
	require.NoError(t, c.PostJSON(context.Background(), "sign-options", srv.URL, map[string]string{"rpId": "x"}, &out))
	assert.Equal(t, "abc", out.Challenge)
}

func TestPostFormSendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "gw", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok", r.PostForm.Get("token"))
		_, _ = w.Write([]byte(`{"active":true}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := New("introspection", time.Second).PostForm(context.Background(), "introspect", srv.URL, url.Values{"token": {"tok"}}, "gw", "secret", &out)
	require.NoError(t, err)
	assert.Equal(t, true, out["active"])
}

func TestNon2xxBecomesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New("directory", time.Second).GetJSON(context.Background(), "client-details", srv.URL, &struct{}{})
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "directory", uerr.Service)
	assert.Equal(t, "client-details", uerr.Op)
	assert.Equal(t, http.StatusServiceUnavailable, uerr.StatusCode)
}

func TestTimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := New("fido", 50*time.Millisecond).PostJSON(context.Background(), "sign", srv.URL, struct{}{}, nil)
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Zero(t, uerr.StatusCode)
}

func TestWithHTTPClientKeepsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	defer close(release)

	c := New("directory", 50*time.Millisecond, WithHTTPClient(srv.Client()))

	var out map[string]any
	require.NoError(t, c.GetJSON(context.Background(), "client-details", srv.URL+"/fast", &out))
	assert.Equal(t, true, out["ok"])

	err := c.GetJSON(context.Background(), "client-details", srv.URL+"/slow", &out)
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Zero(t, uerr.StatusCode)
}

type recordingTracer struct {
	trace.Tracer

	mu    sync.Mutex
	names []string
	kinds []trace.SpanKind
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	cfg := trace.NewSpanStartConfig(opts...)
	r.kinds = append(r.kinds, cfg.SpanKind())
	r.mu.Unlock()
	return r.Tracer.Start(ctx, name, opts...)
}

func TestWithTracerNamesSpanAfterOperation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tr := &recordingTracer{Tracer: noop.NewTracerProvider().Tracer("test")}
	c := New("fido", time.Second, WithTracer(tr))
	require.NoError(t, c.PostJSON(context.Background(), "sign-options", srv.URL, struct{}{}, nil))
	require.NoError(t, c.GetJSON(context.Background(), "health", srv.URL, &struct{}{}))

	assert.Equal(t, []string{"fido.sign-options", "fido.health"}, tr.names)
	assert.Equal(t, []trace.SpanKind{trace.SpanKindClient, trace.SpanKindClient}, tr.kinds)
}
