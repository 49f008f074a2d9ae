package cli

import (
	"encoding/json"
	"fmt"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/cache"
	"github.com/spf13/cobra"
)

func newCacheCmd(g *globalOptions) *cobra.Command {
	var redisURL string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the Redis page cache",
	}
	cmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (defaults to cache.redis_url)")

	open := func() (*cache.PageCache, func(), error) {
		cfg, log, err := g.setup()
		if err != nil {
			return nil, nil, err
		}
		if redisURL != "" {
			cfg.Cache.RedisURL = redisURL
		}
		pages, err := acquire.OpenPageCache(cfg.Cache, log)
		if err != nil {
			_ = log.Sync()
			return nil, nil, err
		}
		return pages, func() {
			_ = pages.Close()
			_ = log.Sync()
		}, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, release, err := open()
			if err != nil {
				return err
			}
			defer release()
			if err := pages.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Page cache cleared")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print hit rate, key count and memory usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, release, err := open()
			if err != nil {
				return err
			}
			defer release()
			st, err := pages.Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	})
	return cmd
}
