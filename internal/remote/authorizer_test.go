package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/huebridge/internal/transport"
)

type staticTokens struct {
	rec Record
	err error
	n   int
}

func (s *staticTokens) EnsureValid(ctx context.Context) (Record, error) {
	s.n++
	return s.rec, s.err
}

func TestAuthorizer_AttachesBearer(t *testing.T) {
	var seen *transport.Request
	next := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		seen = req
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`[]`)}, nil
	})
	tokens := &staticTokens{rec: Record{AccessToken: "tok"}}

	orig := &transport.Request{Method: http.MethodGet, Path: "/lights", Header: http.Header{"X-Trace": []string{"1"}}}
	resp, err := NewAuthorizer(next, tokens).Do(context.Background(), orig)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, seen)
	assert.Equal(t, "Bearer tok", seen.Header.Get("Authorization"))
	assert.Equal(t, "1", seen.Header.Get("X-Trace"))
	assert.Empty(t, orig.Header.Get("Authorization"), "caller's request is not mutated")
	assert.Equal(t, 1, tokens.n)
}

func TestAuthorizer_ExpiredTokenNeverForwards(t *testing.T) {
	calls := 0
	next := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		return &transport.Response{StatusCode: http.StatusOK}, nil
	})
	tokens := &staticTokens{err: ErrTokenExpired}

	_, err := NewAuthorizer(next, tokens).Do(context.Background(), &transport.Request{Method: http.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, 0, calls)
}

func TestAuthorizer_StoreFailureStillForwards(t *testing.T) {
	calls := 0
	next := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		return &transport.Response{StatusCode: http.StatusOK}, nil
	})
	tokens := &staticTokens{rec: Record{AccessToken: "new"}, err: errors.Join(ErrStoreFailure, errors.New("disk full"))}

	_, err := NewAuthorizer(next, tokens).Do(context.Background(), &transport.Request{Method: http.MethodGet, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestAuthorizer_UnauthorizedResponse(t *testing.T) {
	next := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: http.StatusUnauthorized, Body: []byte(`{"fault":{}}`)}, nil
	})
	tokens := &staticTokens{rec: Record{AccessToken: "revoked"}}

	_, err := NewAuthorizer(next, tokens).Do(context.Background(), &transport.Request{Method: http.MethodPut, Path: "/lights/1/state"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsCredentialError(err))
}
