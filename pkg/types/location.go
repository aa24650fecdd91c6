package types

// LocationData is a geocoded place.
type LocationData struct {
	ID          string          `json:"id" yaml:"id"`
	DisplayName string          `json:"displayName" yaml:"display_name"`
	Latitude    float64         `json:"latitude" yaml:"latitude"`
	Longitude   float64         `json:"longitude" yaml:"longitude"`
	Address     LocationAddress `json:"address" yaml:"address"`
	Type        string          `json:"type" yaml:"type"`
	Category    string          `json:"category" yaml:"category"`
	Importance  float64         `json:"importance" yaml:"importance"`
	BoundingBox BoundingBox     `json:"boundingBox" yaml:"bounding_box"`
}

// LocationAddress holds the structured address parts of a place. Any of
// them may be empty.
type LocationAddress struct {
	HouseNumber  string `json:"houseNumber,omitempty" yaml:"house_number,omitempty"`
	Street       string `json:"street,omitempty" yaml:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty" yaml:"neighborhood,omitempty"`
	City         string `json:"city,omitempty" yaml:"city,omitempty"`
	State        string `json:"state,omitempty" yaml:"state,omitempty"`
	ZipCode      string `json:"zipCode,omitempty" yaml:"zip_code,omitempty"`
	Country      string `json:"country,omitempty" yaml:"country,omitempty"`
	CountryCode  string `json:"countryCode,omitempty" yaml:"country_code,omitempty"`
}

// BoundingBox is a latitude/longitude rectangle.
type BoundingBox struct {
	MinLat float64 `json:"minLat" yaml:"min_lat"`
	MaxLat float64 `json:"maxLat" yaml:"max_lat"`
	MinLon float64 `json:"minLon" yaml:"min_lon"`
	MaxLon float64 `json:"maxLon" yaml:"max_lon"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
