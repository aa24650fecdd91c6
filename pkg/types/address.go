package types

// AddressData is a Brazilian postal address resolved from a CEP.
type AddressData struct {
	ZipCode      string `json:"zipCode" yaml:"zip_code"`
	Street       string `json:"street" yaml:"street"`
	Neighborhood string `json:"neighborhood" yaml:"neighborhood"`
	City         string `json:"city" yaml:"city"`
	State        string `json:"state" yaml:"state"`
	Complement   string `json:"complement,omitempty" yaml:"complement,omitempty"`
	IBGECode     string `json:"ibgeCode,omitempty" yaml:"ibge_code,omitempty"`
	AreaCode     string `json:"areaCode,omitempty" yaml:"area_code,omitempty"`
}
