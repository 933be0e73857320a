package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Manager owns a token record and keeps it usable: it refreshes an expired access
// token through the Exchanger, persists every rotation to the Store and reports a
// dead refresh token without touching the network.
type Manager struct {
	store     Store
	exchanger Exchanger

	now             func() time.Time
	margin          time.Duration
	refreshLifetime time.Duration

	mu      sync.RWMutex
	record  *Record
	unsaved bool

	flight singleflight.Group
	// rotating serializes exchanges across the plain and forced flights.
	rotating sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithRefreshMargin sets how early before expiry the access token is refreshed.
func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) {
		m.margin = d
	}
}

// WithRefreshTokenLifetime sets the lifetime assumed when the exchange omits it.
func WithRefreshTokenLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshLifetime = d
		}
	}
}

// NewManager creates a manager. Call Load or Set before use.
func NewManager(store Store, exchanger Exchanger, opts ...Option) *Manager {
	m := &Manager{
		store:           store,
		exchanger:       exchanger,
		now:             time.Now,
		margin:          DefaultRefreshMargin,
		refreshLifetime: DefaultRefreshTokenLifetime,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the record from the store.
func (m *Manager) Load(ctx context.Context) error {
	rec, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.record = rec
	m.unsaved = false
	m.mu.Unlock()

	log.Debug().
		Str("state", rec.StateAt(m.now(), m.margin).String()).
		Time("access_expiry", rec.AccessTokenExpiry).
		Time("refresh_expiry", rec.RefreshTokenExpiry).
		Msg("Token record loaded")
	return nil
}

// Set installs a record produced by an external authorization flow and persists it.
// The in-memory record only changes once the store accepted it.
func (m *Manager) Set(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := m.store.Save(ctx, &rec); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	m.mu.Lock()
	m.record = &rec
	m.unsaved = false
	m.mu.Unlock()
	return nil
}

// Token returns a copy of the current record.
func (m *Manager) Token() (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil {
		return Record{}, false
	}
	return *m.record, true
}

// State returns the lifecycle state of the current record. No record counts as dead.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil {
		return StateDead
	}
	return m.record.StateAt(m.now(), m.margin)
}

// EnsureValid returns a record whose access token can be used right now, refreshing
// it first when needed. A dead record fails with ErrTokenExpired without any I/O.
//
// If persisting a rotated record fails, the new record is still returned together
// with an ErrStoreFailure error; persistence is retried on the next call.
func (m *Manager) EnsureValid(ctx context.Context) (Record, error) {
	m.mu.RLock()
	rec := m.record
	unsaved := m.unsaved
	m.mu.RUnlock()

	if rec == nil {
		return Record{}, ErrTokenNotFound
	}

	switch rec.StateAt(m.now(), m.margin) {
	case StateFresh:
		if unsaved {
			return *rec, m.persist(ctx, *rec)
		}
		return *rec, nil
	case StateDead:
		return Record{}, fmt.Errorf("%w (refresh token expired at %s)", ErrTokenExpired, rec.RefreshTokenExpiry.Format(time.RFC3339))
	}

	return m.refresh(ctx, false)
}

// ForceRefresh rotates the token pair even if the access token is still fresh.
func (m *Manager) ForceRefresh(ctx context.Context) (Record, error) {
	return m.refresh(ctx, true)
}

// refresh runs at most one exchange at a time. Callers arriving while an exchange
// is in flight share its result instead of spending the refresh token twice.
// Forced calls only join other forced calls, so a plain flight that finds the
// token fresh never swallows a forced rotation.
func (m *Manager) refresh(ctx context.Context, force bool) (Record, error) {
	key := "refresh"
	if force {
		key = "force"
	}
	v, err, shared := m.flight.Do(key, func() (any, error) {
		m.rotating.Lock()
		defer m.rotating.Unlock()

		m.mu.RLock()
		cur := m.record
		m.mu.RUnlock()

		if cur == nil {
			return Record{}, ErrTokenNotFound
		}

		now := m.now()
		switch cur.StateAt(now, m.margin) {
		case StateDead:
			return Record{}, fmt.Errorf("%w (refresh token expired at %s)", ErrTokenExpired, cur.RefreshTokenExpiry.Format(time.RFC3339))
		case StateFresh:
			if !force {
				return *cur, nil
			}
		}

		grant, err := m.exchanger.Exchange(ctx, *cur)
		if err != nil {
			log.Warn().Err(err).Msg("Token refresh failed")
			return Record{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}

		next := m.rotate(*cur, grant, now)

		m.mu.Lock()
		m.record = &next
		m.unsaved = true
		m.mu.Unlock()

		log.Info().
			Time("access_expiry", next.AccessTokenExpiry).
			Time("refresh_expiry", next.RefreshTokenExpiry).
			Bool("forced", force).
			Msg("Token refreshed")

		return next, m.persist(ctx, next)
	})

	rec, _ := v.(Record)
	if shared {
		log.Debug().Msg("Joined in-flight token refresh")
	}
	return rec, err
}

func (m *Manager) rotate(cur Record, grant *Grant, now time.Time) Record {
	next := cur
	next.AccessToken = grant.AccessToken
	next.AccessTokenExpiry = now.Add(grant.AccessTokenExpiresIn)

	// Some relays keep the refresh token across rotations and omit it.
	if grant.RefreshToken != "" {
		lifetime := grant.RefreshTokenExpiresIn
		if lifetime <= 0 {
			lifetime = m.refreshLifetime
		}
		next.RefreshToken = grant.RefreshToken
		next.RefreshTokenExpiry = now.Add(lifetime)
	}
	return next
}

func (m *Manager) persist(ctx context.Context, rec Record) error {
	if err := m.store.Save(ctx, &rec); err != nil {
		log.Warn().Err(err).Msg("Failed to persist token record, keeping it in memory")
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	m.mu.Lock()
	if m.record != nil && m.record.AccessToken == rec.AccessToken {
		m.unsaved = false
	}
	m.mu.Unlock()
	return nil
}
