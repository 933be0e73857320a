package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huebridge/internal/config"
	"github.com/dokzlo13/huebridge/internal/db"
	"github.com/dokzlo13/huebridge/internal/hue"
	"github.com/dokzlo13/huebridge/internal/remote"
	"github.com/dokzlo13/huebridge/internal/tokenstore"
	"github.com/dokzlo13/huebridge/internal/transport"
)

// environment holds what a command opened, closed in reverse order.
type environment struct {
	bridge  *hue.Bridge
	closers []func()
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func connect(ctx context.Context, cfg *config.Config) (*environment, error) {
	policy, err := hue.ParseNamePolicy(cfg.Bridge.NamePolicy)
	if err != nil {
		return nil, err
	}
	opts := []hue.Option{
		hue.WithNamePolicy(policy),
		hue.WithTimeout(cfg.Bridge.Timeout.Duration()),
		hue.WithRateLimit(cfg.Bridge.RateLimitRPS),
		hue.WithMaxConcurrent(cfg.Bridge.MaxConcurrent),
	}

	env := &environment{}
	if cfg.Bridge.Mode == "local" {
		b, err := hue.NewLocal(cfg.Bridge.Address, cfg.Bridge.Username, opts...)
		if err != nil {
			return nil, err
		}
		env.bridge = b
		env.closers = append(env.closers, func() { _ = b.Close() })
		return env, nil
	}

	mgr, closeStore, err := openManager(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeStore)
	if err := mgr.Load(ctx); err != nil {
		env.Close()
		if errors.Is(err, remote.ErrTokenNotFound) {
			return nil, fmt.Errorf("no remote token stored, run `huectl token import` first: %w", err)
		}
		return nil, err
	}

	opts = append(opts, hue.WithRelayBaseURL(cfg.Remote.BaseURL))
	b, err := hue.NewRemote(cfg.Bridge.Username, mgr, opts...)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.bridge = b
	env.closers = append(env.closers, func() { _ = b.Close() })
	return env, nil
}

// openStore selects the token store named by token_store.driver.
func openStore(ctx context.Context, cfg config.TokenStoreConfig) (remote.Store, func(), error) {
	switch cfg.Driver {
	case "file":
		return tokenstore.NewFileStore(cfg.Path), func() {}, nil
	case "sqlite":
		database, err := db.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return tokenstore.NewSQLiteStore(database.DB, cfg.Slot), func() { _ = database.Close() }, nil
	case "postgres":
		store, err := tokenstore.NewPostgresStore(ctx, cfg.DSN, cfg.Slot)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store driver %q", cfg.Driver)
	}
}

func openManager(ctx context.Context, cfg *config.Config) (*remote.Manager, func(), error) {
	store, closeStore, err := openStore(ctx, cfg.TokenStore)
	if err != nil {
		return nil, nil, err
	}

	auth := transport.NewHTTP(cfg.Remote.AuthBaseURL, cfg.Bridge.Timeout.Duration())
	exchanger := remote.NewExchanger(auth).WithPath(cfg.Remote.TokenPath)

	mgr := remote.NewManager(store, exchanger,
		remote.WithRefreshMargin(cfg.Remote.RefreshMargin.Duration()),
		remote.WithRefreshTokenLifetime(cfg.Remote.RefreshTokenLifetime.Duration()),
	)
	return mgr, func() {
		_ = auth.Close()
		closeStore()
	}, nil
}

func runToken(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return usageError("token needs import, refresh or status")
	}

	mgr, closeAll, err := openManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	switch args[0] {
	case "import":
		if len(args) != 2 {
			return usageError("token import needs a record file")
		}
		rec, err := readRecord(args[1], cfg.Remote, time.Now())
		if err != nil {
			return err
		}
		if err := mgr.Set(ctx, rec); err != nil {
			return err
		}
		log.Info().Time("refresh_expiry", rec.RefreshTokenExpiry).Msg("Token record imported")
		return printStatus(mgr)

	case "refresh":
		if err := mgr.Load(ctx); err != nil {
			return err
		}
		if _, err := mgr.ForceRefresh(ctx); err != nil {
			return err
		}
		return printStatus(mgr)

	case "status":
		if err := mgr.Load(ctx); err != nil {
			return err
		}
		return printStatus(mgr)

	default:
		return usageError(fmt.Sprintf("unknown token command %q", args[0]))
	}
}

// readRecord reads a token record produced by an external authorization flow.
// Client credentials missing from the file come from the config, and missing
// expiries are counted from now.
func readRecord(path string, cfg config.RemoteConfig, now time.Time) (remote.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return remote.Record{}, err
	}
	var rec remote.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return remote.Record{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if rec.ClientID == "" {
		rec.ClientID = cfg.ClientID
	}
	if rec.ClientSecret == "" {
		rec.ClientSecret = cfg.ClientSecret
	}
	if rec.AppID == "" {
		rec.AppID = cfg.AppID
	}
	if rec.AccessTokenExpiry.IsZero() {
		rec.AccessTokenExpiry = now.Add(remote.DefaultAccessTokenLifetime)
	}
	if rec.RefreshTokenExpiry.IsZero() {
		rec.RefreshTokenExpiry = now.Add(cfg.RefreshTokenLifetime.Duration())
	}
	return rec, rec.Validate()
}

func printStatus(mgr *remote.Manager) error {
	rec, ok := mgr.Token()
	if !ok {
		return remote.ErrTokenNotFound
	}
	return printJSON(map[string]any{
		"state":                mgr.State().String(),
		"access_token_expiry":  rec.AccessTokenExpiry.Format(time.RFC3339),
		"refresh_token_expiry": rec.RefreshTokenExpiry.Format(time.RFC3339),
	})
}
