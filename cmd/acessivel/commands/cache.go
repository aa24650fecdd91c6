package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acessivel/mobility/internal/cache"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

func newCacheCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the persisted caches",
		Long: `The location, geocoding and general caches are persisted to the
configured storage backend. These commands load them, then report on or
clean them.`,
	}

	cmd.AddCommand(newCacheStatsCommand(g))
	cmd.AddCommand(newCacheCleanCommand(g))
	cmd.AddCommand(newCacheClearCommand(g))
	return cmd
}

func newCacheStatsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show size, age and memory use per cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			return g.print(cmd.OutOrStdout(), c.CacheStats())
		},
	}
}

func newCacheCleanCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove expired entries, in memory and in storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			removed := c.CleanCaches()
			for _, domain := range cache.AllDomains {
				removed[domain.String()] += c.Caches.Get(domain).CleanupStorage(cmd.Context())
			}

			if !g.tableOutput() {
				return g.print(cmd.OutOrStdout(), removed)
			}
			total := 0
			for _, n := range removed {
				total += n
			}
			mobilityerrors.DisplaySuccess(cmd.OutOrStdout(), fmt.Sprintf("removed %d expired entries", total))
			return nil
		},
	}
}

func newCacheClearCommand(g *globals) *cobra.Command {
	var domainName string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry from one or all caches",
		Example: `  acessivel cache clear
  acessivel cache clear --domain geocoding`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if domainName == "" {
				c.Caches.Clear()
				mobilityerrors.DisplaySuccess(cmd.OutOrStdout(), "all caches cleared")
				return nil
			}

			domain, ok := cache.ParseDomain(domainName)
			if !ok {
				return mobilityerrors.InvalidInput(mobilityerrors.ServiceCache, "unknown cache domain: "+domainName).
					WithSolutions("Use location, geocoding or general")
			}
			c.Caches.Get(domain).Clear()
			mobilityerrors.DisplaySuccess(cmd.OutOrStdout(), domainName+" cache cleared")
			return nil
		},
	}

	cmd.Flags().StringVar(&domainName, "domain", "", "cache to clear (location, geocoding, general)")
	return cmd
}
