package search

import (
	"graphmem/app/config"
	"graphmem/app/service/graph"
	"math"
	"strings"
)

// Ranker holds the scoring weights of the search engine.
type Ranker struct {
	// NameWeight scores a name substring match, doubled on an exact match.
	NameWeight float64
	// TypeWeight scores an entity type substring match.
	TypeWeight float64
	// ObservationWeight scores each matching observation.
	ObservationWeight float64
	// ObservationCountWeight scales the bonus for how many observations an
	// entity has, matching or not.
	ObservationCountWeight float64
	// ConnectivityWeight scales the bonus for how many relations reference
	// the entity.
	ConnectivityWeight float64
}

func DefaultRanker() Ranker {
	return Ranker{
		NameWeight:             2.0,
		TypeWeight:             1.5,
		ObservationWeight:      1.0,
		ObservationCountWeight: 0.5,
		ConnectivityWeight:     0.3,
	}
}

// rankerFromConfig starts from the defaults and applies every weight the
// config sets to a positive value.
func rankerFromConfig(cfg config.Search) Ranker {
	r := DefaultRanker()

	if cfg.NameWeight > 0 {
		r.NameWeight = cfg.NameWeight
	}
	if cfg.TypeWeight > 0 {
		r.TypeWeight = cfg.TypeWeight
	}
	if cfg.ObservationWeight > 0 {
		r.ObservationWeight = cfg.ObservationWeight
	}
	if cfg.ObservationCountWeight > 0 {
		r.ObservationCountWeight = cfg.ObservationCountWeight
	}
	if cfg.ConnectivityWeight > 0 {
		r.ConnectivityWeight = cfg.ConnectivityWeight
	}

	return r
}

// TextRelevance scores an entity against a query. Matching is
// case-insensitive substring containment. The count bonuses apply even
// without a textual match, so any entity with observations or relations
// scores above zero. connections maps entity names to the number of
// relations referencing them.
func (r Ranker) TextRelevance(entity graph.Entity, query string, connections map[string]int) float64 {
	queryLower := strings.ToLower(query)

	var score float64

	nameLower := strings.ToLower(entity.Name)
	if nameLower == queryLower {
		score += r.NameWeight * 2
	} else if strings.Contains(nameLower, queryLower) {
		score += r.NameWeight
	}

	if strings.Contains(strings.ToLower(entity.EntityType), queryLower) {
		score += r.TypeWeight
	}

	matches := 0
	for _, obs := range entity.Observations {
		if strings.Contains(strings.ToLower(obs), queryLower) {
			matches++
		}
	}
	score += r.ObservationWeight * float64(matches)

	score += r.ObservationCountWeight * math.Log1p(float64(len(entity.Observations)))
	score += r.ConnectivityWeight * math.Log1p(float64(connections[entity.Name]))

	return score
}
