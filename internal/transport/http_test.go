package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridgeServer(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/api/{user}/lights/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Kitchen","user":"` + chi.URLParam(r, "user") + `"}`))
	})
	r.Put("/api/{user}/lights/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Content-Type", r.Header.Get("Content-Type"))
		_, _ = w.Write(body)
	})
	r.Get("/api/{user}/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_DoGet(t *testing.T) {
	srv := newBridgeServer(t)
	tr := NewHTTP(srv.URL+"/api/alice/", time.Second)

	resp, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/lights/1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Kitchen","user":"alice"}`, string(resp.Body))
}

func TestHTTP_DoPutSetsJSONContentType(t *testing.T) {
	srv := newBridgeServer(t)
	tr := NewHTTP(srv.URL+"/api/alice", time.Second)

	resp, err := tr.Do(context.Background(), &Request{
		Method: http.MethodPut,
		Path:   "lights/1/state",
		Body:   []byte(`{"bri":127}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("X-Content-Type"))
	assert.Equal(t, `{"bri":127}`, string(resp.Body))
}

func TestHTTP_NotFoundIsAResponse(t *testing.T) {
	srv := newBridgeServer(t)
	tr := NewHTTP(srv.URL+"/api/alice", time.Second)

	resp, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/nothing"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_TimeoutIsTransportError(t *testing.T) {
	srv := newBridgeServer(t)
	tr := NewHTTP(srv.URL+"/api/alice", 20*time.Millisecond)

	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsTimeout(err))

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "/slow", terr.Path)
}

func TestHTTP_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTP(url, time.Second)
	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestHTTP_URL(t *testing.T) {
	tr := NewHTTP("http://bridge/api/u/", 0)
	assert.Equal(t, "http://bridge/api/u", tr.URL(""))
	assert.Equal(t, "http://bridge/api/u", tr.URL("/"))
	assert.Equal(t, "http://bridge/api/u/lights", tr.URL("lights"))
	assert.Equal(t, "http://bridge/api/u/lights/1", tr.URL("/lights/1"))
}

func TestLimited_ForwardsAndHonoursContext(t *testing.T) {
	calls := 0
	inner := Func(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusOK}, nil
	})

	l := NewLimited(inner, 1)
	_, err := l.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/a"})
	require.NoError(t, err)

	// The single token is spent; a cancelled context must fail without reaching inner.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Do(ctx, &Request{Method: http.MethodGet, Path: "/b"})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, calls)
}

func TestLimited_Disabled(t *testing.T) {
	calls := 0
	inner := Func(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusOK}, nil
	})

	l := NewLimited(inner, -1)
	for i := 0; i < 50; i++ {
		_, err := l.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
		require.NoError(t, err)
	}
	assert.Equal(t, 50, calls)
}
