package search

import (
	"context"
	"fmt"
	"graphmem/app/config"
	"graphmem/app/service/graph"
	"math"
	"path/filepath"
	"testing"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(entities []graph.Entity, relations []graph.Relation) *graph.KnowledgeGraph {
	kg := &graph.KnowledgeGraph{
		Entities:  make(map[string]graph.Entity, len(entities)),
		Relations: relations,
	}
	for _, e := range entities {
		kg.Entities[e.Name] = e
	}

	return kg
}

func TestTextRelevance(t *testing.T) {
	ranker := DefaultRanker()

	tests := []struct {
		name        string
		entity      graph.Entity
		query       string
		connections map[string]int
		want        float64
	}{
		{
			name:   "exact name match doubles the name weight",
			entity: graph.Entity{Name: "Coffee", EntityType: "drink"},
			query:  "coffee",
			want:   2.0 * 2,
		},
		{
			name:   "name substring match",
			entity: graph.Entity{Name: "CoffeeMachine", EntityType: "appliance"},
			query:  "coffee",
			want:   2.0,
		},
		{
			name:   "type match",
			entity: graph.Entity{Name: "Espresso", EntityType: "beverage"},
			query:  "beverage",
			want:   1.5,
		},
		{
			name: "each matching observation counts",
			entity: graph.Entity{
				Name:         "Alice",
				EntityType:   "person",
				Observations: []string{"drinks coffee", "grinds coffee beans", "hates tea"},
			},
			query: "coffee",
			want:  1.0*2 + 0.5*math.Log1p(3),
		},
		{
			name:        "connectivity bonus without any text match",
			entity:      graph.Entity{Name: "Hub", EntityType: "node"},
			query:       "unrelated",
			connections: map[string]int{"Hub": 3},
			want:        0.3 * math.Log1p(3),
		},
		{
			name: "observation count bonus without any text match",
			entity: graph.Entity{
				Name:         "Bob",
				EntityType:   "person",
				Observations: []string{"likes tea"},
			},
			query: "coffee",
			want:  0.5 * math.Log1p(1),
		},
		{
			name:   "no match and no bonuses scores zero",
			entity: graph.Entity{Name: "Ruby", EntityType: "language"},
			query:  "coffee",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ranker.TextRelevance(tt.entity, tt.query, tt.connections)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSearchEntitiesRanking(t *testing.T) {
	svc := &Service{ranker: DefaultRanker()}

	kg := testGraph([]graph.Entity{
		{Name: "Java", EntityType: "language", Observations: []string{"verbose"}},
		{Name: "JavaScript", EntityType: "language", Observations: []string{"dynamic"}},
		{Name: "Python", EntityType: "language", Observations: []string{"no java interop"}},
		{Name: "Ruby", EntityType: "language"},
	}, nil)

	results, err := svc.SearchEntities(context.Background(), kg, "java", -1)
	require.NoError(t, err)

	names := make([]string, 0, len(results))
	for _, e := range results {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Java", "JavaScript", "Python"}, names)
}

func TestSearchEntitiesDropsZeroScores(t *testing.T) {
	svc := &Service{ranker: DefaultRanker()}

	kg := testGraph([]graph.Entity{
		{Name: "Ruby", EntityType: "language"},
	}, nil)

	results, err := svc.SearchEntities(context.Background(), kg, "coffee", -1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchEntitiesTieBreaksByName(t *testing.T) {
	svc := &Service{ranker: DefaultRanker()}

	entities := make([]graph.Entity, 0, 4)
	for _, name := range []string{"delta", "alpha", "charlie", "bravo"} {
		entities = append(entities, graph.Entity{
			Name:         name,
			EntityType:   "thing",
			Observations: []string{"plain"},
		})
	}

	results, err := svc.SearchEntities(context.Background(), testGraph(entities, nil), "thing", -1)
	require.NoError(t, err)

	names := make([]string, 0, len(results))
	for _, e := range results {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, names)
}

func TestSearchEntitiesLimit(t *testing.T) {
	svc := &Service{ranker: DefaultRanker()}

	entities := make([]graph.Entity, 0, 12)
	for i := 0; i < 12; i++ {
		entities = append(entities, graph.Entity{
			Name:       fmt.Sprintf("match-%02d", i),
			EntityType: "node",
		})
	}
	kg := testGraph(entities, nil)

	results, err := svc.SearchEntities(context.Background(), kg, "match", -1)
	require.NoError(t, err)
	assert.Len(t, results, 10, "negative limit falls back to 10")

	results, err = svc.SearchEntities(context.Background(), kg, "match", 0)
	require.NoError(t, err)
	assert.Empty(t, results, "zero limit keeps nothing")

	results, err = svc.SearchEntities(context.Background(), kg, "match", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = svc.SearchEntities(context.Background(), kg, "match", 100)
	require.NoError(t, err)
	assert.Len(t, results, 12)
}

func TestSearchEntitiesSelfRelationCountsOnce(t *testing.T) {
	svc := &Service{ranker: DefaultRanker()}

	kg := testGraph(
		[]graph.Entity{
			{Name: "node-aa", EntityType: "node"},
			{Name: "node-zz", EntityType: "node"},
		},
		[]graph.Relation{
			{From: "node-zz", To: "node-zz", RelationType: "recurses"},
			{From: "node-aa", To: "elsewhere", RelationType: "points"},
		},
	)

	results, err := svc.SearchEntities(context.Background(), kg, "node", -1)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// One relation touches each entity, so the scores tie and name order
	// decides. Counting the self-relation twice would put node-zz first.
	assert.Equal(t, "node-aa", results[0].Name)
	assert.Equal(t, "node-zz", results[1].Name)
}

func TestFilterRelations(t *testing.T) {
	svc := &Service{ranker: DefaultRanker()}

	relations := []graph.Relation{
		{From: "A", To: "B", RelationType: "knows"},
		{From: "A", To: "C", RelationType: "knows"},
		{From: "B", To: "C", RelationType: "knows"},
		{From: "A", To: "D", RelationType: "knows"},
	}
	found := map[string]bool{"A": true, "B": true}

	tests := []struct {
		name string
		mode FilterMode
		want []graph.Relation
	}{
		{
			name: "strict keeps only relations between found entities",
			mode: FilterStrict,
			want: []graph.Relation{
				{From: "A", To: "B", RelationType: "knows"},
			},
		},
		{
			name: "all keeps any relation touching a found entity",
			mode: FilterAll,
			want: relations,
		},
		{
			name: "related folds in neighbors with two or more connections",
			mode: FilterRelated,
			want: []graph.Relation{
				{From: "A", To: "B", RelationType: "knows"},
				{From: "A", To: "C", RelationType: "knows"},
				{From: "B", To: "C", RelationType: "knows"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.FilterRelations(relations, found, tt.mode)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestFilterRelationsNeverNil(t *testing.T) {
	svc := &Service{ranker: DefaultRanker()}

	got := svc.FilterRelations(nil, map[string]bool{"A": true}, FilterStrict)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func newSearchService(t *testing.T) *Service {
	t.Helper()

	di := do.New()
	t.Cleanup(func() {
		_ = di.Shutdown()
	})

	do.ProvideValue(di, &config.Config{
		Store: config.Store{
			FilePath: filepath.Join(t.TempDir(), "memory.jsonl"),
		},
	})
	do.Provide(di, graph.New)
	do.Provide(di, New)

	return do.MustInvoke[*Service](di)
}

func TestNewAppliesWeightOverrides(t *testing.T) {
	di := do.New()
	t.Cleanup(func() {
		_ = di.Shutdown()
	})

	do.ProvideValue(di, &config.Config{
		Store: config.Store{
			FilePath: filepath.Join(t.TempDir(), "memory.jsonl"),
		},
		Search: config.Search{NameWeight: 5},
	})
	do.Provide(di, graph.New)
	do.Provide(di, New)

	svc := do.MustInvoke[*Service](di)
	assert.Equal(t, 5.0, svc.ranker.NameWeight)
	assert.Equal(t, 1.5, svc.ranker.TypeWeight, "weights left at zero keep their defaults")
}

func TestSearch(t *testing.T) {
	svc := newSearchService(t)

	_, err := svc.graphService.CreateEntities([]graph.Entity{
		{Name: "Alice", EntityType: "person", Observations: []string{"Likes coffee"}},
		{Name: "Bob", EntityType: "person", Observations: []string{"Likes tea"}},
	})
	require.NoError(t, err)

	_, err = svc.graphService.CreateRelations([]graph.Relation{
		{From: "Alice", To: "Bob", RelationType: "knows"},
	})
	require.NoError(t, err)

	kg, err := svc.Search(context.Background(), "coffee", -1)
	require.NoError(t, err)

	// Bob still scores above zero through the count bonuses, so both
	// entities come back and the relation between them survives the strict
	// filter. Alice has the only textual match.
	require.Contains(t, kg.Entities, "Alice")
	require.Contains(t, kg.Entities, "Bob")
	assert.Len(t, kg.Relations, 1)

	kg, err = svc.Search(context.Background(), "coffee", 1)
	require.NoError(t, err)
	assert.Len(t, kg.Entities, 1)
	assert.Contains(t, kg.Entities, "Alice")
	assert.Empty(t, kg.Relations)
	assert.NotNil(t, kg.Relations)
}
