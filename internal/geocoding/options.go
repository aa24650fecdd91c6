package geocoding

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

// Defaults applied to searches.
const (
	DefaultLimit    = 10
	MaxLimit        = 50
	DefaultCountry  = "br"
	DefaultLanguage = "pt-BR"
	DefaultZoom     = 18
)

// SearchOptions is a free-text search. Zero fields take the defaults.
// Field order and JSON names make up the cache key.
type SearchOptions struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit,omitempty" validate:"gte=0"`
	CountryCode string   `json:"countryCode,omitempty"`
	Viewbox     *Viewbox `json:"viewbox,omitempty" validate:"omitempty"`
	Bounded     bool     `json:"bounded,omitempty"`
	Language    string   `json:"language,omitempty"`
}

// Viewbox restricts or biases a search to a rectangle.
type Viewbox struct {
	MinLat float64 `json:"minLat" validate:"gte=-90,lte=90"`
	MaxLat float64 `json:"maxLat" validate:"gte=-90,lte=90"`
	MinLon float64 `json:"minLon" validate:"gte=-180,lte=180"`
	MaxLon float64 `json:"maxLon" validate:"gte=-180,lte=180"`
}

// ReverseOptions locates the address at a coordinate.
type ReverseOptions struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Zoom      int     `json:"zoom,omitempty"`
	Language  string  `json:"language,omitempty"`
}

var structValidator = validator.New()

func (o SearchOptions) validate() error {
	if len(strings.TrimSpace(o.Query)) < 2 {
		return mobilityerrors.InvalidInput(mobilityerrors.ServiceNominatim, "query must have at least 2 characters")
	}
	if err := structValidator.Struct(o); err != nil {
		return invalidFields(err)
	}
	return nil
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.CountryCode == "" {
		o.CountryCode = DefaultCountry
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	o.Query = strings.TrimSpace(o.Query)
	return o
}

func (o ReverseOptions) validate() error {
	if o.Latitude == 0 || o.Longitude == 0 {
		return mobilityerrors.InvalidInput(mobilityerrors.ServiceNominatim, "latitude and longitude are required")
	}
	if err := structValidator.Struct(o); err != nil {
		return mobilityerrors.InvalidInput(mobilityerrors.ServiceNominatim, "invalid coordinates").
			WithCause(fieldList(err))
	}
	return nil
}

func (o ReverseOptions) withDefaults() ReverseOptions {
	if o.Zoom == 0 {
		o.Zoom = DefaultZoom
	}
	if o.Zoom < 1 {
		o.Zoom = 1
	}
	if o.Zoom > 18 {
		o.Zoom = 18
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	return o
}

func invalidFields(err error) error {
	return mobilityerrors.InvalidInput(mobilityerrors.ServiceNominatim, "invalid search options").
		WithCause(fieldList(err))
}

func fieldList(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return strings.Join(parts, "; ")
}
