package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"ocellus/internal/companion"
	"ocellus/internal/config"
	"ocellus/internal/logging"
	"ocellus/internal/mangle"
	"ocellus/internal/store"
	"ocellus/internal/systems"
	"ocellus/internal/transport"
)

// app is the wired set of collaborators one command works with.
type app struct {
	cfg    *config.Config
	store  *store.Store
	engine *mangle.Engine
	index  *systems.Index
	client *companion.Client
}

// openApp opens the store, warms the fact base from it, loads the system
// index and builds the companion client. fixture swaps the network for the
// configured fixture file.
func openApp(ctx context.Context, c *config.Config, fixture bool) (*app, error) {
	st, err := store.Open(c.ResolvePath(c.Paths.Database), store.WithProfileDump(c.ResolvePath(c.Paths.ProfileDump)))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	engine, err := mangle.NewProfileEngine(mangle.Config{
		FactLimit:    c.Kernel.FactLimit,
		QueryTimeout: c.GetQueryTimeout(),
	}, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to start fact base: %w", err)
	}
	if err := engine.WarmFromPersistence(ctx); err != nil {
		logging.BootWarn("could not restore facts: %v", err)
	}

	index := systems.NewIndex(c.ResolvePath(c.Paths.SystemIndex))
	if err := index.Load(); err != nil {
		logger.Debug("System index unavailable", zap.String("path", index.Path()), zap.Error(err))
	}

	ccfg := companion.ClientConfig{
		Endpoints: companion.Endpoints{
			Login:   c.LoginURL(),
			Confirm: c.ConfirmURL(),
			Profile: c.ProfileURL(),
		},
		Credentials: companion.Credentials{Email: c.Companion.Email, Password: c.Companion.Password},
		Cooldown:    c.GetCooldown(),
	}
	if fixture {
		data, err := os.ReadFile(c.ResolvePath(c.Paths.Fixture))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to read fixture: %w", err)
		}
		body := string(data)
		ccfg.Override = &body
	}

	client, err := companion.NewClient(ctx, ccfg, companion.Deps{
		Transport: transport.NewHTTPTransport(c.GetTimeout(), transport.WithUserAgent(c.Companion.UserAgent)),
		Sessions:  st,
		Archive:   st,
		Visits:    st,
		History:   st,
		Facts:     engine,
		Systems:   index,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &app{cfg: c, store: st, engine: engine, index: index, client: client}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}
}
