package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dokzlo13/huebridge/internal/transport"
)

const (
	// DefaultTokenPath is the relay's OAuth2 token endpoint, relative to DefaultAuthBaseURL.
	DefaultTokenPath = "/v2/oauth2/token"

	// DefaultAuthBaseURL hosts the token endpoint.
	DefaultAuthBaseURL = "https://api.meethue.com"

	// DefaultAccessTokenLifetime applies when the token endpoint omits expires_in.
	DefaultAccessTokenLifetime = 7 * 24 * time.Hour
)

// Grant is the outcome of a successful refresh exchange.
type Grant struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresIn  time.Duration
	RefreshTokenExpiresIn time.Duration
}

// Exchanger trades a refresh token for a new token pair.
type Exchanger interface {
	Exchange(ctx context.Context, rec Record) (*Grant, error)
}

// HTTPExchanger performs the refresh_token grant over a Transport.
type HTTPExchanger struct {
	transport transport.Transport
	path      string
}

// NewExchanger creates an exchanger posting to DefaultTokenPath through t.
func NewExchanger(t transport.Transport) *HTTPExchanger {
	return &HTTPExchanger{transport: t, path: DefaultTokenPath}
}

// WithPath overrides the token endpoint path.
func (e *HTTPExchanger) WithPath(path string) *HTTPExchanger {
	e.path = path
	return e
}

// seconds accepts lifetimes encoded either as JSON numbers or numeric strings.
type seconds int64

func (s *seconds) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "" || str == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lifetime %q: %w", str, err)
	}
	*s = seconds(n)
	return nil
}

func (s seconds) duration() time.Duration {
	return time.Duration(s) * time.Second
}

type tokenResponse struct {
	AccessToken           string  `json:"access_token"`
	RefreshToken          string  `json:"refresh_token"`
	TokenType             string  `json:"token_type"`
	ExpiresIn             seconds `json:"expires_in"`
	AccessTokenExpiresIn  seconds `json:"access_token_expires_in"`
	RefreshTokenExpiresIn seconds `json:"refresh_token_expires_in"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Fault            *struct {
		FaultString string `json:"faultstring"`
	} `json:"fault"`
}

// Exchange posts grant_type=refresh_token with HTTP Basic client credentials.
func (e *HTTPExchanger) Exchange(ctx context.Context, rec Record) (*Grant, error) {
	if rec.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", rec.RefreshToken)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "application/json")
	header.Set("Authorization", "Basic "+basicAuth(rec.ClientID, rec.ClientSecret))

	resp, err := e.transport.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   e.path,
		Header: header,
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(resp.Body, &errResp); err == nil {
			if errResp.Error != "" {
				return nil, fmt.Errorf("OAuth error: %s - %s", errResp.Error, errResp.ErrorDescription)
			}
			if errResp.Fault != nil && errResp.Fault.FaultString != "" {
				return nil, fmt.Errorf("OAuth fault: %s", errResp.Fault.FaultString)
			}
		}
		return nil, &transport.StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var tokens tokenResponse
	if err := json.Unmarshal(resp.Body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("token response carries no access token")
	}

	grant := &Grant{
		AccessToken:           tokens.AccessToken,
		RefreshToken:          tokens.RefreshToken,
		AccessTokenExpiresIn:  tokens.ExpiresIn.duration(),
		RefreshTokenExpiresIn: tokens.RefreshTokenExpiresIn.duration(),
	}
	if grant.AccessTokenExpiresIn <= 0 {
		grant.AccessTokenExpiresIn = tokens.AccessTokenExpiresIn.duration()
	}
	if grant.AccessTokenExpiresIn <= 0 {
		grant.AccessTokenExpiresIn = DefaultAccessTokenLifetime
	}

	return grant, nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
