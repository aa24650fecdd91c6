package dataaccess

// IndexField is one field of a composite index.
type IndexField struct {
	Name       string `json:"name" yaml:"name"`
	Descending bool   `json:"descending,omitempty" yaml:"descending,omitempty"`
}

// Index is a composite index the queries in this package rely on.
type Index struct {
	Collection string       `json:"collection" yaml:"collection"`
	Fields     []IndexField `json:"fields" yaml:"fields"`
}

// OrderField is the field an index sorts by, its last field.
func (i Index) OrderField() string {
	if len(i.Fields) == 0 {
		return ""
	}
	return i.Fields[len(i.Fields)-1].Name
}

func asc(name string) IndexField  { return IndexField{Name: name} }
func desc(name string) IndexField { return IndexField{Name: name, Descending: true} }

// RecommendedIndexes lists the indexes to create in the backend.
var RecommendedIndexes = []Index{
	{Collection: CollectionUsers, Fields: []IndexField{asc("ativo"), desc("criadoEm")}},
	{Collection: CollectionUsers, Fields: []IndexField{asc("tipoDeficiencia"), asc("ativo")}},
	{Collection: CollectionDrivers, Fields: []IndexField{asc("disponivel"), asc("verificado"), desc("avaliacaoMedia")}},
	{Collection: CollectionDrivers, Fields: []IndexField{asc("localizacaoAtual.lat"), asc("localizacaoAtual.lng")}},
	{Collection: CollectionRides, Fields: []IndexField{asc("usuarioId"), desc("criadaEm")}},
	{Collection: CollectionRides, Fields: []IndexField{asc("motoristaId"), asc("status")}},
	{Collection: CollectionRides, Fields: []IndexField{asc("status"), desc("criadaEm")}},
	{Collection: CollectionEmergencyContacts, Fields: []IndexField{asc("usuarioId"), desc("principal")}},
}

// DynamoIndexes maps every order-by field used by the helpers to a GSI
// name, the shape docstore.DynamoConfig.Indexes expects.
func DynamoIndexes() map[string]string {
	out := make(map[string]string)
	for _, idx := range RecommendedIndexes {
		field := idx.OrderField()
		if field == "" {
			continue
		}
		if _, ok := out[field]; !ok {
			out[field] = "by_" + field
		}
	}
	return out
}
