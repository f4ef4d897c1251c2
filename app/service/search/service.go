package search

import (
	"context"
	"graphmem/app/config"
	"graphmem/app/service/graph"
	"log/slog"
	"runtime"
	"sort"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const defaultLimit = 10

// FilterMode selects which relations accompany a set of found entities.
type FilterMode int

const (
	// FilterStrict keeps relations whose both endpoints were found.
	FilterStrict FilterMode = iota
	// FilterRelated additionally folds in neighbors referenced by at least
	// two found entities.
	FilterRelated
	// FilterAll keeps every relation touching a found entity.
	FilterAll
)

type Service struct {
	graphService *graph.Service
	ranker       Ranker
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Service{
		graphService: do.MustInvoke[*graph.Service](di),
		ranker:       rankerFromConfig(cfg.Search),
	}, nil
}

type scoredEntity struct {
	entity graph.Entity
	score  float64
}

// Search loads the graph, ranks its entities against the query and returns
// the top matches as a subgraph together with the relations between them.
func (s *Service) Search(ctx context.Context, query string, limit int) (*graph.KnowledgeGraph, error) {
	kg, err := s.graphService.ReadGraph()
	if err != nil {
		return nil, err
	}

	entities, err := s.SearchEntities(ctx, kg, query, limit)
	if err != nil {
		return nil, err
	}

	result := &graph.KnowledgeGraph{
		Entities: make(map[string]graph.Entity, len(entities)),
	}

	names := make(map[string]bool, len(entities))
	for _, e := range entities {
		result.Entities[e.Name] = e
		names[e.Name] = true
	}

	result.Relations = s.FilterRelations(kg.Relations, names, FilterStrict)

	slog.Info("Search completed",
		"query", query,
		"entities", len(result.Entities),
		"relations", len(result.Relations),
	)

	return result, nil
}

// SearchEntities ranks the graph's entities against the query and returns
// up to limit of them, most relevant first. Entities scoring zero are
// dropped. Ties order by name. A negative limit falls back to the default
// of 10; a zero limit yields no entities.
func (s *Service) SearchEntities(ctx context.Context, kg *graph.KnowledgeGraph, query string, limit int) ([]graph.Entity, error) {
	if limit < 0 {
		limit = defaultLimit
	}

	entities := make([]graph.Entity, 0, len(kg.Entities))
	for _, e := range kg.Entities {
		entities = append(entities, e)
	}

	// A self-relation references its entity once, not twice.
	connections := make(map[string]int, len(kg.Entities))
	for _, r := range kg.Relations {
		connections[r.From]++
		if r.To != r.From {
			connections[r.To]++
		}
	}

	scores := make([]float64, len(entities))

	g, ctx := errgroup.WithContext(ctx)

	chunkSize := (len(entities) + runtime.NumCPU() - 1) / runtime.NumCPU()
	for start := 0; start < len(entities); start += chunkSize {
		end := min(start+chunkSize, len(entities))

		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				scores[i] = s.ranker.TextRelevance(entities[i], query, connections)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := make([]scoredEntity, 0, len(entities))
	for i, score := range scores {
		if score > 0 {
			scored = append(scored, scoredEntity{
				entity: entities[i],
				score:  score,
			})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}

		return scored[i].entity.Name < scored[j].entity.Name
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	return pie.Map(scored, func(se scoredEntity) graph.Entity {
		return se.entity
	}), nil
}

// FilterRelations narrows relations to the ones relevant for the found
// entity names, according to mode. The result is never nil.
func (s *Service) FilterRelations(relations []graph.Relation, names map[string]bool, mode FilterMode) []graph.Relation {
	var kept []graph.Relation

	switch mode {
	case FilterAll:
		kept = pie.Filter(relations, func(r graph.Relation) bool {
			return names[r.From] || names[r.To]
		})
	case FilterRelated:
		related := make(map[string]bool, len(names))
		for name := range names {
			related[name] = true
		}

		connections := make(map[string]int)
		for _, r := range relations {
			if names[r.From] {
				connections[r.To]++
			}
			if names[r.To] {
				connections[r.From]++
			}
		}

		for name, count := range connections {
			if count >= 2 {
				related[name] = true
			}
		}

		kept = pie.Filter(relations, func(r graph.Relation) bool {
			return related[r.From] && related[r.To]
		})
	default:
		kept = pie.Filter(relations, func(r graph.Relation) bool {
			return names[r.From] && names[r.To]
		})
	}

	if kept == nil {
		kept = make([]graph.Relation, 0)
	}

	return kept
}
