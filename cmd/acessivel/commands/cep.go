package commands

import (
	"github.com/spf13/cobra"
)

func newCepCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cep <code>",
		Short: "Look up the address of a CEP",
		Long: `Look up a Brazilian postal code (CEP) on ViaCEP. Punctuation is ignored,
so 01310-100 and 01310100 are the same code. Answers are cached for 24 hours.`,
		Example: `  acessivel cep 01310-100
  acessivel cep 01310100 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			addr, err := c.Postal.GetAddressByCep(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if addr == nil {
				notFound(cmd.OutOrStdout(), "CEP "+args[0])
				return nil
			}
			return g.print(cmd.OutOrStdout(), addr)
		},
	}

	cmd.AddCommand(newCepSearchCommand(g))
	return cmd
}

func newCepSearchCommand(g *globals) *cobra.Command {
	var uf, city, street string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the CEPs of a street",
		Example: `  acessivel cep search --uf SP --city "São Paulo" --street Paulista`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			addrs, err := c.Postal.SearchCepsByAddress(cmd.Context(), uf, city, street)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), addrs)
		},
	}

	cmd.Flags().StringVar(&uf, "uf", "", "two-letter state code")
	cmd.Flags().StringVar(&city, "city", "", "city name")
	cmd.Flags().StringVar(&street, "street", "", "street name (at least three letters)")
	return cmd
}
