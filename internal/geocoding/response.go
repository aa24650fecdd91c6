package geocoding

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/acessivel/mobility/pkg/types"
)

// flexString accepts a JSON string or a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) float() float64 {
	v, _ := strconv.ParseFloat(string(f), 64)
	return v
}

type nominatimAddress struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	County      string `json:"county"`
	State       string `json:"state"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

type nominatimPlace struct {
	PlaceID     flexString       `json:"place_id"`
	Licence     string           `json:"licence"`
	OSMType     string           `json:"osm_type"`
	OSMID       flexString       `json:"osm_id"`
	BoundingBox []flexString     `json:"boundingbox"`
	Lat         flexString       `json:"lat"`
	Lon         flexString       `json:"lon"`
	DisplayName string           `json:"display_name"`
	Class       string           `json:"class"`
	Category    string           `json:"category"`
	Type        string           `json:"type"`
	Importance  float64          `json:"importance"`
	Address     nominatimAddress `json:"address"`
}

func (p nominatimPlace) hasCoordinates() bool {
	return p.Lat != "" && p.Lon != ""
}

func (p nominatimPlace) toLocation() types.LocationData {
	var bbox [4]float64
	for i := 0; i < len(p.BoundingBox) && i < 4; i++ {
		bbox[i] = p.BoundingBox[i].float()
	}

	category := p.Class
	if category == "" {
		category = p.Category
	}
	city := p.Address.City
	if city == "" {
		city = p.Address.Town
	}

	return types.LocationData{
		ID:          string(p.PlaceID),
		DisplayName: p.DisplayName,
		Latitude:    p.Lat.float(),
		Longitude:   p.Lon.float(),
		Address: types.LocationAddress{
			HouseNumber:  p.Address.HouseNumber,
			Street:       p.Address.Road,
			Neighborhood: p.Address.Suburb,
			City:         city,
			State:        p.Address.State,
			ZipCode:      p.Address.Postcode,
			Country:      p.Address.Country,
			CountryCode:  p.Address.CountryCode,
		},
		Type:       p.Type,
		Category:   category,
		Importance: p.Importance,
		BoundingBox: types.BoundingBox{
			MinLat: bbox[0],
			MaxLat: bbox[1],
			MinLon: bbox[2],
			MaxLon: bbox[3],
		},
	}
}
