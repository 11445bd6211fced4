// Package source runs one inventory pass: config to SMD queries (or the
// cache) to a populated inventory target.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bmcdonald3/smd-inventory/pkg/cache"
	"github.com/bmcdonald3/smd-inventory/pkg/config"
	"github.com/bmcdonald3/smd-inventory/pkg/inventory"
	"github.com/bmcdonald3/smd-inventory/pkg/smd"
)

// Options tune a single run.
type Options struct {
	// RefreshCache skips the cache read but still writes the fresh result.
	RefreshCache bool
	// ClientOptions are applied before those derived from the config, so a
	// replacement HTTP client still gets the configured timeout and TLS mode.
	ClientOptions []smd.Option
	Logger        *slog.Logger
}

// Populate fills target from the SMD server named in cfg.
func Populate(ctx context.Context, cfg *config.Config, target inventory.Target, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	inv, err := Collect(ctx, cfg, opts)
	if err != nil {
		return err
	}

	if err := inventory.Emit(target, inv, cfg.NIDLength); err != nil {
		return err
	}
	log.Info("inventory populated", "server", cfg.Server, "components", len(inv.Components),
		"partitions", len(inv.Partitions), "groups", len(inv.Groups))
	return nil
}

// Collect returns the merged inventory, from the cache when enabled and fresh.
func Collect(ctx context.Context, cfg *config.Config, opts Options) (*inventory.Inventory, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		store *cache.Cache
		key   string
	)
	if cfg.Cache {
		store = cache.New(cfg.CacheDir, cfg.CacheTimeout)
		key = cache.Key(cfg.Path)
		if !opts.RefreshCache {
			if inv, ok := store.Load(key); ok {
				log.Debug("using cached inventory", "key", key)
				return inv, nil
			}
		}
	}

	inv, err := inventory.Build(ctx, newClient(cfg, opts, log), cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build inventory from %s: %w", cfg.Server, err)
	}

	if store != nil {
		if err := store.Store(key, inv); err != nil {
			log.Warn("failed to write inventory cache", "key", key, "error", err)
		}
	}
	return inv, nil
}

func newClient(cfg *config.Config, opts Options, log *slog.Logger) *smd.Client {
	clientOpts := append([]smd.Option{}, opts.ClientOptions...)
	clientOpts = append(clientOpts, cfg.ClientOptions()...)
	clientOpts = append(clientOpts, smd.WithLogger(log))
	return smd.NewClient(cfg.Server, cfg.Token(log), clientOpts...)
}
