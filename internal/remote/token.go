// Package remote manages the access/refresh token pair used to reach a bridge
// through the vendor's cloud relay.
package remote

import (
	"context"
	"fmt"
	"time"
)

// DefaultRefreshMargin is how long before access token expiry a refresh is due.
const DefaultRefreshMargin = 5 * time.Minute

// DefaultRefreshTokenLifetime applies when the token endpoint omits the refresh lifetime.
const DefaultRefreshTokenLifetime = 112 * 24 * time.Hour

// State is the lifecycle state of a token record.
type State int

const (
	// StateFresh means the access token can be used as is.
	StateFresh State = iota
	// StateNeedsRefresh means the access token expired but the refresh token is alive.
	StateNeedsRefresh
	// StateDead means the refresh token expired.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateNeedsRefresh:
		return "needs_refresh"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Record is the persisted credential set for remote access.
type Record struct {
	AccessToken        string    `json:"access_token"`
	RefreshToken       string    `json:"refresh_token"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
	ClientID           string    `json:"client_id"`
	ClientSecret       string    `json:"client_secret"`
	AppID              string    `json:"app_id,omitempty"`
}

// Validate checks that the record carries everything a refresh needs.
func (r *Record) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case r.AccessToken == "" || r.RefreshToken == "":
		return fmt.Errorf("%w: missing access or refresh token", ErrInvalidRecord)
	case r.ClientID == "" || r.ClientSecret == "":
		return fmt.Errorf("%w: missing client credentials", ErrInvalidRecord)
	case r.RefreshTokenExpiry.IsZero():
		return fmt.Errorf("%w: missing refresh token expiry", ErrInvalidRecord)
	}
	return nil
}

// StateAt computes the lifecycle state at now, treating the access token as expired
// margin before its expiry.
func (r *Record) StateAt(now time.Time, margin time.Duration) State {
	if !now.Before(r.RefreshTokenExpiry) {
		return StateDead
	}
	if now.Add(margin).Before(r.AccessTokenExpiry) {
		return StateFresh
	}
	return StateNeedsRefresh
}

// Store persists a single token record. Save must be all-or-nothing.
type Store interface {
	// Load returns ErrTokenNotFound when no record exists.
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}
