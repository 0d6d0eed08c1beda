package main

import (
	"fmt"
	"os"

	"engineerhub/internal/api"
	"engineerhub/internal/config"
	"engineerhub/internal/prefs"
	"engineerhub/internal/query"
)

// app bundles the clients a command needs.
type app struct {
	api     *api.Client
	queries *query.Client
}

func newApp(cfg *config.Config) (*app, error) {
	client, err := api.New(api.Options{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.GetAPITimeout(),
	})
	if err != nil {
		return nil, err
	}
	cache := query.NewCache(query.CacheOptions{SweepInterval: cfg.GetSweepInterval()})
	return &app{
		api:     client,
		queries: query.NewClient(cache, queryConfig(cfg)),
	}, nil
}

// queryConfig maps the query section onto engine defaults.
func queryConfig(cfg *config.Config) query.Config {
	return query.Config{
		Enabled:            true,
		CacheTime:          cfg.GetCacheTime(),
		StaleTime:          cfg.GetStaleTime(),
		RetryCount:         cfg.Query.RetryCount,
		RetryDelay:         cfg.GetRetryDelay(),
		DebounceDelay:      cfg.GetDebounceDelay(),
		RefetchOnFocus:     cfg.Query.RefetchOnFocus,
		RefetchOnReconnect: cfg.Query.RefetchOnReconnect,
	}
}

// openPrefs opens the preference database, creating the data directory.
func openPrefs(cfg *config.Config) (*prefs.Store, error) {
	if cfg.Storage.DataDir != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return prefs.Open(cfg.PrefsPath())
}
