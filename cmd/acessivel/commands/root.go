package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/acessivel/mobility/internal/app"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/internal/output"
	"github.com/acessivel/mobility/pkg/config"
)

// globals is the state shared by every command of one invocation.
type globals struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config

	// appOptions lets tests swap the document store or clock.
	appOptions []app.Option
}

// Execute runs the CLI and exits with a code matching the error kind.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		mobilityerrors.DisplayError(os.Stderr, err)
		os.Exit(mobilityerrors.GetExitCode(err))
	}
}

// NewRootCommand builds the command tree on viper's global instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&globals{v: viper.GetViper()})
}

func newRootCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acessivel",
		Short: "Address lookup and ride data tools for accessible mobility",
		Long: `acessivel looks up Brazilian postal codes and places, caches what it
finds, and serves ride-sharing data from the document backend while keeping
an eye on the daily operation quota.

QUICK START:
  acessivel cep 01310-100              # Address for a CEP
  acessivel geocode search "Av Paulista"
  acessivel cache stats                # What is cached
  acessivel serve                      # HTTP API on :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				printVersion(cmd.OutOrStdout(), false)
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.initConfig()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.cfgFile, "config", "", "config file (default is $HOME/.acessivel/config.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.Bool("debug", false, "enable debug mode")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringP("output", "o", "table", "output format (table, json, yaml)")
	flags.Bool("no-color", false, "disable colored output")
	cmd.Flags().Bool("version", false, "show version information")

	g.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	g.v.BindPFlag("output.format", flags.Lookup("output"))
	g.v.BindPFlag("output.no_color", flags.Lookup("no-color"))
	g.v.BindPFlag("verbose", flags.Lookup("verbose"))
	g.v.BindPFlag("debug", flags.Lookup("debug"))

	cmd.AddCommand(newCepCommand(g))
	cmd.AddCommand(newGeocodeCommand(g))
	cmd.AddCommand(newCacheCommand(g))
	cmd.AddCommand(newQuotaCommand(g))
	cmd.AddCommand(newServeCommand(g))
	cmd.AddCommand(newCheckCommand(g))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// initConfig reads in config file and ENV variables if set.
func (g *globals) initConfig() error {
	if g.cfgFile != "" {
		g.v.SetConfigFile(g.cfgFile)
	}

	cfg, err := config.LoadWith(g.v)
	if err != nil {
		return mobilityerrors.Wrap(mobilityerrors.ErrorTypeConfiguration, mobilityerrors.ServiceUnknown,
			"failed to load configuration", err).
			WithSolutions("Check the YAML syntax of your config file")
	}

	if err := cfg.ExpandPaths(); err != nil {
		return mobilityerrors.Wrap(mobilityerrors.ErrorTypeConfiguration, mobilityerrors.ServiceUnknown,
			"failed to expand config paths", err)
	}

	g.cfg = cfg
	return nil
}

// container builds and starts the services. The caller closes the returned
// func when done.
func (g *globals) container(ctx context.Context) (*app.Container, func(), error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, nil, mobilityerrors.Wrap(mobilityerrors.ErrorTypeConfiguration, mobilityerrors.ServiceUnknown,
			"invalid configuration", err).
			WithSolutions("Run 'acessivel check' to inspect the effective configuration")
	}

	log := logger.NewLogrus()
	logFile, err := app.SetupLogging(log, g.cfg.Logging, g.v.GetBool("debug"), g.v.GetBool("verbose"))
	if err != nil {
		return nil, nil, err
	}

	c, err := app.New(ctx, g.cfg, log, g.appOptions...)
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		logFile.Close()
		return nil, nil, err
	}

	return c, func() {
		if err := c.Close(); err != nil {
			log.Error("Failed to shut down cleanly", err)
		}
		logFile.Close()
	}, nil
}

// print writes v in the configured output format.
func (g *globals) print(w io.Writer, v any) error {
	noColor := g.cfg.Output.NoColor
	if f, ok := w.(*os.File); ok {
		noColor = !output.ColorEnabled(f, noColor)
	} else {
		noColor = true
	}

	formatter, err := output.NewFormatter(output.Config{
		Format:  g.cfg.Output.Format,
		Pretty:  g.cfg.Output.Pretty,
		NoColor: noColor,
	})
	if err != nil {
		return mobilityerrors.InvalidInput(mobilityerrors.ServiceUnknown, err.Error()).
			WithSolutions("Use --output table, json or yaml")
	}
	return formatter.Format(w, v)
}

func (g *globals) tableOutput() bool {
	return g.cfg.Output.Format == "" || g.cfg.Output.Format == "table"
}

func notFound(w io.Writer, what string) {
	fmt.Fprintf(w, "%s not found\n", what)
}
