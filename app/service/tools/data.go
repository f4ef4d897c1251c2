package tools

import "graphmem/app/service/graph"

type CreateEntitiesRequest struct {
	Entities []graph.Entity `json:"entities"`
}

type CreateRelationsRequest struct {
	Relations []graph.Relation `json:"relations"`
}

type AddObservationsRequest struct {
	Observations []graph.ObservationAdd `json:"observations"`
}

type DeleteEntitiesRequest struct {
	EntityNames []string `json:"entityNames"`
	// Some clients send the snake_case spelling of the field.
	EntityNamesAlias []string `json:"entity_names"`
}

// Names folds both accepted spellings, preferring the documented one.
func (r DeleteEntitiesRequest) Names() []string {
	if len(r.EntityNames) > 0 {
		return r.EntityNames
	}

	return r.EntityNamesAlias
}

type DeleteObservationsRequest struct {
	Deletions []graph.ObservationDelete `json:"deletions"`
}

type DeleteRelationsRequest struct {
	Relations []graph.Relation `json:"relations"`
}

type OpenNodesRequest struct {
	Names []string `json:"names"`
}

type SearchNodesRequest struct {
	Query string `json:"query"`
	// A pointer keeps an absent limit apart from an explicit zero.
	Limit *int `json:"limit"`
}
