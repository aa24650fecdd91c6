package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/acessivel/mobility/internal/geocoding"
)

func newGeocodeCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Search places and addresses on OpenStreetMap",
		Long: `Search places through Nominatim. Requests are spaced at least one second
apart and answers are cached for an hour.`,
	}

	cmd.AddCommand(newGeocodeSearchCommand(g))
	cmd.AddCommand(newGeocodeReverseCommand(g))
	cmd.AddCommand(newGeocodeAddressCommand(g))
	cmd.AddCommand(newGeocodePOICommand(g))
	return cmd
}

func newGeocodeSearchCommand(g *globals) *cobra.Command {
	var opts geocoding.SearchOptions

	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Free-text place search",
		Example: `  acessivel geocode search "Avenida Paulista" --limit 3`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			opts.Query = strings.Join(args, " ")
			locs, err := c.Geocoding.SearchLocations(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), locs)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", geocoding.DefaultLimit, "maximum results")
	cmd.Flags().StringVar(&opts.CountryCode, "country", geocoding.DefaultCountry, "country code filter")
	cmd.Flags().StringVar(&opts.Language, "lang", geocoding.DefaultLanguage, "result language")
	return cmd
}

func newGeocodeReverseCommand(g *globals) *cobra.Command {
	var opts geocoding.ReverseOptions

	cmd := &cobra.Command{
		Use:     "reverse",
		Short:   "Address at a coordinate",
		Example: `  acessivel geocode reverse --lat -23.5613 --lon -46.6565`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			loc, err := c.Geocoding.ReverseGeocode(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if loc == nil {
				notFound(cmd.OutOrStdout(), "Address")
				return nil
			}
			return g.print(cmd.OutOrStdout(), loc)
		},
	}

	cmd.Flags().Float64Var(&opts.Latitude, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&opts.Longitude, "lon", 0, "longitude")
	cmd.Flags().IntVar(&opts.Zoom, "zoom", geocoding.DefaultZoom, "detail level (3 country .. 18 building)")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}

func newGeocodeAddressCommand(g *globals) *cobra.Command {
	var city, state string

	cmd := &cobra.Command{
		Use:     "address <street and number>",
		Short:   "Search a Brazilian address",
		Example: `  acessivel geocode address "Avenida Paulista, 1578" --city "São Paulo" --state SP`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			locs, err := c.Geocoding.SearchBrazilianAddress(cmd.Context(), strings.Join(args, " "), city, state)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), locs)
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "city name")
	cmd.Flags().StringVar(&state, "state", "", "state name or code")
	return cmd
}

func newGeocodePOICommand(g *globals) *cobra.Command {
	var (
		lat, lon, radius float64
	)

	cmd := &cobra.Command{
		Use:     "poi <type>",
		Short:   "Points of interest near a coordinate",
		Example: `  acessivel geocode poi hospital --lat -23.5613 --lon -46.6565 --radius 1000`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			locs, err := c.Geocoding.SearchNearbyPOI(cmd.Context(), lat, lon, args[0], radius)
			if err != nil {
				return err
			}
			return g.print(cmd.OutOrStdout(), locs)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().Float64Var(&radius, "radius", 1000, "search radius in meters")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	return cmd
}
