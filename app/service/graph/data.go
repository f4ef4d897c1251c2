package graph

// Entity is a named node with a free-form type label and its observations.
type Entity struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

// Relation is a directed, typed edge between two entity names. Its identity
// is the (From, To, RelationType) triple.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// KnowledgeGraph is a transient materialization of the durable store with
// the lifetime of a single operation.
type KnowledgeGraph struct {
	Entities  map[string]Entity `json:"entities"`
	Relations []Relation        `json:"relations"`
}

type Stats struct {
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

type ObservationAdd struct {
	EntityName string   `json:"entityName"`
	Contents   []string `json:"contents"`
}

type ObservationDelete struct {
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}

func (r Relation) triple() [3]string {
	return [3]string{r.From, r.To, r.RelationType}
}

func newGraph() *KnowledgeGraph {
	return &KnowledgeGraph{
		Entities:  make(map[string]Entity),
		Relations: make([]Relation, 0),
	}
}
