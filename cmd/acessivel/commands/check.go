package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/acessivel/mobility/internal/docstore"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
	"github.com/acessivel/mobility/pkg/config"
)

type checkReport struct {
	ConfigFile string                       `json:"configFile,omitempty" yaml:"config_file,omitempty"`
	Valid      bool                         `json:"valid" yaml:"valid"`
	Problem    string                       `json:"problem,omitempty" yaml:"problem,omitempty"`
	Summary    []string                     `json:"summary" yaml:"summary"`
	Auth       map[string]config.AuthResult `json:"auth,omitempty" yaml:"auth,omitempty"`
	Identity   *docstore.Identity           `json:"identity,omitempty" yaml:"identity,omitempty"`
}

func newCheckCommand(g *globals) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and cloud credentials",
		Long: `Check validates the effective configuration, summarizes where cache
entries and documents are kept, and looks for credentials of every cloud
provider the configuration needs. With --remote the DynamoDB credentials are
confirmed against AWS STS.`,
		Example: `  acessivel check
  acessivel check --remote -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := checkReport{
				ConfigFile: g.v.ConfigFileUsed(),
				Valid:      true,
				Summary:    config.NewDefaultsManager().GetUserFriendlyFeedback(g.cfg),
				Auth:       config.NewAuthChecker().CheckFor(g.cfg),
			}
			if err := g.cfg.Validate(); err != nil {
				report.Valid = false
				report.Problem = err.Error()
			}

			var remoteErr error
			if remote && g.cfg.Backend.Type == "dynamodb" {
				report.Identity, remoteErr = docstore.CheckCredentials(cmd.Context(), g.cfg.Backend.Region, g.cfg.Backend.Profile)
				if remoteErr != nil {
					remoteErr = mobilityerrors.BackendCredentialsError(remoteErr)
				}
			}

			if g.tableOutput() {
				printCheckReport(cmd.OutOrStdout(), report)
			} else if err := g.print(cmd.OutOrStdout(), report); err != nil {
				return err
			}

			if remoteErr != nil {
				return remoteErr
			}
			if !report.Valid {
				return mobilityerrors.New(mobilityerrors.ErrorTypeConfiguration, mobilityerrors.ServiceUnknown,
					"invalid configuration").WithCause(report.Problem)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "confirm backend credentials with the cloud provider")
	return cmd
}

func printCheckReport(w io.Writer, r checkReport) {
	bold := color.New(color.Bold).SprintFunc()

	if r.ConfigFile != "" {
		fmt.Fprintf(w, "%s %s\n", bold("Config file:"), r.ConfigFile)
	} else {
		fmt.Fprintf(w, "%s defaults (no config file found)\n", bold("Config file:"))
	}

	for _, line := range r.Summary {
		fmt.Fprintf(w, "  - %s\n", line)
	}

	if len(r.Auth) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Credentials:"))
		providers := make([]string, 0, len(r.Auth))
		for p := range r.Auth {
			providers = append(providers, p)
		}
		sort.Strings(providers)
		for _, p := range providers {
			res := r.Auth[p]
			mark := color.GreenString("ok")
			if !res.Authenticated {
				mark = color.RedString("missing")
			}
			fmt.Fprintf(w, "  %-6s %-8s %s\n", p, mark, res.Message)
		}
	}

	if r.Identity != nil {
		fmt.Fprintf(w, "\n%s %s (account %s)\n", bold("AWS identity:"), r.Identity.ARN, r.Identity.Account)
	}

	fmt.Fprintln(w)
	if r.Valid {
		mobilityerrors.DisplaySuccess(w, "configuration is valid")
	}
}
