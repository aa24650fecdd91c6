package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acessivel/mobility/internal/server"
)

func newServeCommand(g *globals) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lookup and ride data API over HTTP",
		Long: `Start the HTTP API. Lookup caches are swept periodically and the server
shuts down gracefully on SIGINT or SIGTERM.`,
		Example: `  acessivel serve
  acessivel serve --address :9090 -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				g.cfg.Server.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, done, err := g.container(ctx)
			if err != nil {
				return err
			}
			defer done()

			return server.New(c).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (default from server.address)")
	return cmd
}
