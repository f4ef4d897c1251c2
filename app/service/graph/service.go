package graph

import (
	"bufio"
	"errors"
	"fmt"
	"graphmem/app/config"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

// ErrEntityNotFound is returned when an operation names an entity that is
// not present in the graph.
var ErrEntityNotFound = errors.New("entity not found")

type Service struct {
	filePath string
	lockless bool
	mu       sync.RWMutex
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	if err := os.MkdirAll(filepath.Dir(cfg.Store.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create memory file directory: %w", err)
	}

	return &Service{
		filePath: cfg.Store.FilePath,
		lockless: cfg.Store.DisableLocking,
	}, nil
}

// lock serializes a whole load-mutate-save cycle. It returns the matching
// unlock, which is a no-op when locking is disabled.
func (s *Service) lock() func() {
	if s.lockless {
		return func() {}
	}

	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Service) rlock() func() {
	if s.lockless {
		return func() {}
	}

	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Service) loadGraph() (*KnowledgeGraph, error) {
	file, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return newGraph(), nil
		}

		return nil, fmt.Errorf("failed to open memory file: %w", err)
	}
	defer file.Close()

	graph := newGraph()

	// Observations are unbounded, so lines are read without a length cap.
	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("error reading memory file: %w", readErr)
		}

		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if err = graph.applyLine([]byte(trimmed)); err != nil {
				return nil, fmt.Errorf("failed to parse line %q: %w", trimmed, err)
			}
		}

		if readErr != nil {
			return graph, nil
		}
	}
}

func (s *Service) saveGraph(graph *KnowledgeGraph) error {
	file, err := os.CreateTemp(filepath.Dir(s.filePath), ".memory-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(file.Name())

	writer := bufio.NewWriter(file)

	for _, e := range graph.Entities {
		data, err := marshalEntityLine(e)
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to marshal entity: %w", err)
		}
		if _, err = writer.WriteString(string(data) + "\n"); err != nil {
			file.Close()
			return fmt.Errorf("failed to write entity: %w", err)
		}
	}

	for _, r := range graph.Relations {
		data, err := marshalRelationLine(r)
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to marshal relation: %w", err)
		}
		if _, err = writer.WriteString(string(data) + "\n"); err != nil {
			file.Close()
			return fmt.Errorf("failed to write relation: %w", err)
		}
	}

	if err = writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Rename(file.Name(), s.filePath); err != nil {
		return fmt.Errorf("failed to replace memory file: %w", err)
	}

	return nil
}

// CreateEntities adds the entities whose names are not taken yet and returns
// the ones actually created. Existing names are skipped, not updated.
func (s *Service) CreateEntities(entities []Entity) ([]Entity, error) {
	defer s.lock()()

	graph, err := s.loadGraph()
	if err != nil {
		return nil, err
	}

	created := make([]Entity, 0, len(entities))
	for _, entity := range entities {
		if _, exists := graph.Entities[entity.Name]; exists {
			continue
		}

		if entity.Observations == nil {
			entity.Observations = []string{}
		}

		graph.Entities[entity.Name] = entity
		created = append(created, entity)
	}

	if err = s.saveGraph(graph); err != nil {
		return nil, err
	}

	slog.Info("Created entities",
		"requested", len(entities),
		"created", len(created),
	)

	return created, nil
}

// CreateRelations adds the relations that are not present yet, comparing by
// the full (from, to, relationType) triple. Endpoints are not required to
// exist as entities.
func (s *Service) CreateRelations(relations []Relation) ([]Relation, error) {
	defer s.lock()()

	graph, err := s.loadGraph()
	if err != nil {
		return nil, err
	}

	existing := make(map[[3]string]bool, len(graph.Relations))
	for _, r := range graph.Relations {
		existing[r.triple()] = true
	}

	created := make([]Relation, 0, len(relations))
	for _, relation := range relations {
		if existing[relation.triple()] {
			continue
		}

		existing[relation.triple()] = true
		graph.Relations = append(graph.Relations, relation)
		created = append(created, relation)
	}

	if err = s.saveGraph(graph); err != nil {
		return nil, err
	}

	slog.Info("Created relations",
		"requested", len(relations),
		"created", len(created),
	)

	return created, nil
}

// AddObservations appends new observations to existing entities and returns
// what was actually added per entity. If any referenced entity is missing,
// the whole batch fails and nothing is persisted.
func (s *Service) AddObservations(additions []ObservationAdd) ([]ObservationAdd, error) {
	defer s.lock()()

	graph, err := s.loadGraph()
	if err != nil {
		return nil, err
	}

	results := make([]ObservationAdd, 0, len(additions))
	for _, add := range additions {
		entity, ok := graph.Entities[add.EntityName]
		if !ok {
			return nil, fmt.Errorf("entity with name %q: %w", add.EntityName, ErrEntityNotFound)
		}

		added := make([]string, 0, len(add.Contents))
		for _, content := range add.Contents {
			if pie.Contains(entity.Observations, content) {
				continue
			}

			entity.Observations = append(entity.Observations, content)
			added = append(added, content)
		}

		graph.Entities[add.EntityName] = entity
		results = append(results, ObservationAdd{
			EntityName: add.EntityName,
			Contents:   added,
		})
	}

	if err = s.saveGraph(graph); err != nil {
		return nil, err
	}

	slog.Info("Added observations", "entities", len(results))

	return results, nil
}

// DeleteEntities removes the named entities along with every relation that
// references them from either side. Unknown names are ignored.
func (s *Service) DeleteEntities(names []string) error {
	defer s.lock()()

	graph, err := s.loadGraph()
	if err != nil {
		return err
	}

	doomed := make(map[string]bool, len(names))
	for _, name := range names {
		doomed[name] = true
		delete(graph.Entities, name)
	}

	kept := make([]Relation, 0, len(graph.Relations))
	for _, r := range graph.Relations {
		if doomed[r.From] || doomed[r.To] {
			continue
		}
		kept = append(kept, r)
	}
	graph.Relations = kept

	if err = s.saveGraph(graph); err != nil {
		return err
	}

	slog.Info("Deleted entities", "names", names)

	return nil
}

// DeleteObservations removes the given observations from their entities.
// Unknown entities and absent observations are ignored.
func (s *Service) DeleteObservations(deletions []ObservationDelete) error {
	defer s.lock()()

	graph, err := s.loadGraph()
	if err != nil {
		return err
	}

	for _, d := range deletions {
		entity, ok := graph.Entities[d.EntityName]
		if !ok {
			continue
		}

		toDelete := make(map[string]bool, len(d.Observations))
		for _, obs := range d.Observations {
			toDelete[obs] = true
		}

		kept := make([]string, 0, len(entity.Observations))
		for _, obs := range entity.Observations {
			if !toDelete[obs] {
				kept = append(kept, obs)
			}
		}

		entity.Observations = kept
		graph.Entities[d.EntityName] = entity
	}

	if err = s.saveGraph(graph); err != nil {
		return err
	}

	slog.Info("Deleted observations", "entities", len(deletions))

	return nil
}

// DeleteRelations removes relations matching the given triples exactly.
// Absent relations are ignored.
func (s *Service) DeleteRelations(relations []Relation) error {
	defer s.lock()()

	graph, err := s.loadGraph()
	if err != nil {
		return err
	}

	doomed := make(map[[3]string]bool, len(relations))
	for _, r := range relations {
		doomed[r.triple()] = true
	}

	kept := make([]Relation, 0, len(graph.Relations))
	for _, r := range graph.Relations {
		if doomed[r.triple()] {
			continue
		}
		kept = append(kept, r)
	}
	graph.Relations = kept

	if err = s.saveGraph(graph); err != nil {
		return err
	}

	slog.Info("Deleted relations", "requested", len(relations))

	return nil
}

func (s *Service) ReadGraph() (*KnowledgeGraph, error) {
	defer s.rlock()()

	slog.Debug("Reading entire knowledge graph")

	return s.loadGraph()
}

// OpenNodes returns the subgraph spanned by the requested names: the
// entities that exist plus the relations whose both endpoints were
// requested. Names match exactly, case-sensitive.
func (s *Service) OpenNodes(names []string) (*KnowledgeGraph, error) {
	defer s.rlock()()

	graph, err := s.loadGraph()
	if err != nil {
		return nil, err
	}

	result := newGraph()
	for _, name := range names {
		if entity, ok := graph.Entities[name]; ok {
			result.Entities[name] = entity
		}
	}

	for _, r := range graph.Relations {
		if _, ok := result.Entities[r.From]; !ok {
			continue
		}
		if _, ok := result.Entities[r.To]; !ok {
			continue
		}
		result.Relations = append(result.Relations, r)
	}

	slog.Debug("Opened nodes",
		"requested", len(names),
		"found", len(result.Entities),
	)

	return result, nil
}

func (s *Service) GetStats() (*Stats, error) {
	defer s.rlock()()

	graph, err := s.loadGraph()
	if err != nil {
		return nil, err
	}

	return &Stats{
		Entities:  len(graph.Entities),
		Relations: len(graph.Relations),
	}, nil
}
