package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/phiscrub/internal/cache"
	"github.com/dshills/phiscrub/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the classification cache",
}

func openCache(ctx context.Context, cfg config.Config, enabled bool) (cache.Store, error) {
	store, err := cache.Open(ctx, cache.Options{
		Enabled:    enabled,
		Backend:    cfg.Cache.Backend,
		Dir:        cfg.Cache.Dir,
		RedisURL:   cfg.Cache.RedisURL,
		TTLSeconds: cfg.Cache.TTLSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return store, nil
}

// commandContext is the context cobra passed down, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeCache(store cache.Store) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached classifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		store, err := openCache(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer closeCache(store)
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Cache cleared.")
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		store, err := openCache(ctx, cfg, cfg.Cache.Enabled)
		if err != nil {
			return err
		}
		defer closeCache(store)
		if !store.Enabled() {
			fmt.Fprintln(os.Stdout, "Cache is disabled.")
			return nil
		}
		stats, err := store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}
