// Package transport is the HTTP boundary between the bridge client and the wire.
// Callers shape method, path and body; implementations bind a base URL and move bytes.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTransport marks network, timeout and connection failures.
var ErrTransport = errors.New("transport: request failed")

// Request is a single call against the bridge API, relative to the base URL.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response carries the raw status and body of a completed call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs a request. A non-nil error means the request never produced
// a response; HTTP error statuses are returned as responses.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Do calls f.
func (f Func) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Error wraps a failed request. It matches ErrTransport with errors.Is.
type Error struct {
	Method string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *Error) Is(target error) bool {
	return target == ErrTransport
}

// StatusError reports an HTTP status the caller could not interpret.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}

// Wrap turns err into an *Error for req unless it already matches ErrTransport.
func Wrap(req *Request, err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	return &Error{Method: req.Method, Path: req.Path, Err: err}
}

// IsTimeout returns true if err was caused by a timeout or deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
