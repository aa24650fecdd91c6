package commands

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	mobilityerrors "github.com/acessivel/mobility/internal/errors"
	"github.com/acessivel/mobility/internal/lookup"
	"github.com/acessivel/mobility/internal/quota"
)

func newQuotaCommand(g *globals) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show backend operation usage against the daily limits",
		Long: `Usage is counted by the running server, so this asks it over HTTP.
Near the limit a warning is printed; the command still succeeds.`,
		Example: `  acessivel quota
  acessivel quota --server http://ride-api.internal:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				serverURL = localURL(g.cfg.Server.Address)
			}

			body, err := lookup.GetJSON(cmd.Context(), lookup.NewHTTPClient(g.cfg.Lookup.Timeout),
				strings.TrimRight(serverURL, "/")+"/quota", nil, mobilityerrors.ServiceBackend)
			if err != nil {
				return err
			}

			var usage quota.Usage
			if err := json.Unmarshal(body, &usage); err != nil {
				return lookup.DecodeError(mobilityerrors.ServiceBackend, err)
			}

			if err := g.print(cmd.OutOrStdout(), usage); err != nil {
				return err
			}
			if usage.IsNearLimit && !g.tableOutput() {
				mobilityerrors.DisplayWarning(cmd.ErrOrStderr(), "backend usage is near the daily limit")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "base URL of a running server (default from server.address)")
	return cmd
}

// localURL turns a listen address such as ":8080" into a URL on localhost.
func localURL(address string) string {
	if strings.HasPrefix(address, ":") {
		return "http://localhost" + address
	}
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}
