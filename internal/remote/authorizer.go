package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huebridge/internal/transport"
)

// DefaultRelayBaseURL is the cloud relay's v1 route; the whitelisted username follows it.
const DefaultRelayBaseURL = "https://api.meethue.com/route/api"

// TokenSource yields a usable token record.
type TokenSource interface {
	EnsureValid(ctx context.Context) (Record, error)
}

// Authorizer is transport middleware that validates the token before every request
// and attaches it as a bearer credential.
type Authorizer struct {
	next   transport.Transport
	tokens TokenSource
}

// NewAuthorizer wraps next.
func NewAuthorizer(next transport.Transport, tokens TokenSource) *Authorizer {
	return &Authorizer{next: next, tokens: tokens}
}

// Do ensures a valid token, then forwards the request. An HTTP 401 from the relay
// becomes ErrUnauthorized.
func (a *Authorizer) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	rec, err := a.tokens.EnsureValid(ctx)
	if err != nil {
		// A rotated token that could not be persisted is still good for this call.
		if !errors.Is(err, ErrStoreFailure) || rec.AccessToken == "" {
			return nil, err
		}
		log.Warn().Err(err).Msg("Using refreshed token that is not yet persisted")
	}

	out := *req
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Header.Set("Authorization", "Bearer "+rec.AccessToken)

	resp, err := a.next.Do(ctx, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, req.Method, req.Path)
	}
	return resp, nil
}
