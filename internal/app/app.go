// Package app wires the stores, cache and game manager shared by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jason-s-yu/ohhell/internal/cache"
	"github.com/jason-s-yu/ohhell/internal/config"
	"github.com/jason-s-yu/ohhell/internal/database"
	"github.com/jason-s-yu/ohhell/internal/game"
	"github.com/jason-s-yu/ohhell/internal/localstore"
	"github.com/sirupsen/logrus"
)

// App holds the opened dependencies. Remote and Cache are nil when not
// configured or unreachable at startup.
type App struct {
	Games  *game.Manager
	Remote *database.Store
	Local  *localstore.Store
	Cache  *cache.Cache
	// Source names the store the registry was loaded from.
	Source string

	log *logrus.Entry
}

// Open connects every configured store and loads the registry. Only the local
// store is mandatory; the remote database and Redis degrade to warnings.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{log: log.WithField("component", "app")}

	local, err := localstore.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := local.Migrate(ctx); err != nil {
		local.Close()
		return nil, fmt.Errorf("local store: %w", err)
	}
	a.Local = local

	if cfg.DatabaseURL != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		remote, err := database.Connect(dbCtx, cfg.DatabaseURL, log)
		if err == nil {
			if err = remote.Migrate(dbCtx); err != nil {
				remote.Close()
			}
		}
		cancel()
		if err != nil {
			a.log.WithError(err).Warn("Remote database unavailable; continuing on the local store.")
		} else {
			a.Remote = remote
		}
	}

	if cfg.RedisAddr != "" {
		c := cache.New(cfg.RedisAddr, cfg.RedisPassword, log)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Ping(pingCtx)
		cancel()
		if err != nil {
			a.log.WithError(err).Warn("Redis unavailable; action log and leaderboard disabled.")
			c.Close()
		} else {
			a.Cache = c
		}
	}

	opts := game.Options{Rules: cfg.Rules, Local: local, Logger: log}
	if a.Remote != nil {
		opts.Remote = a.Remote
	}
	if a.Cache != nil {
		opts.Actions = a.Cache
		opts.Sinks = append(opts.Sinks, game.LeaderboardSink(a.Cache))
	}
	a.Games = game.New(opts)

	if a.Source, err = a.Games.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return a, nil
}

// Close flushes pending writes and releases every connection.
func (a *App) Close() {
	if a.Games != nil {
		a.Games.Flush(context.Background())
		a.Games.Wait()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.log.WithError(err).Warn("Closing Redis failed.")
		}
	}
	if a.Remote != nil {
		a.Remote.Close()
	}
	if a.Local != nil {
		if err := a.Local.Close(); err != nil {
			a.log.WithError(err).Warn("Closing local store failed.")
		}
	}
}
