package graph

import (
	"encoding/json"
	"fmt"
)

const (
	recordTypeEntity   = "entity"
	recordTypeRelation = "relation"
)

// entityRecord and relationRecord are the tagged line formats of the durable
// file. Entities and relations share one file, so every line carries a type
// discriminator.
type entityRecord struct {
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

type relationRecord struct {
	Type         string `json:"type"`
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

func marshalEntityLine(e Entity) ([]byte, error) {
	obs := e.Observations
	if obs == nil {
		obs = []string{}
	}

	return json.Marshal(entityRecord{
		Type:         recordTypeEntity,
		Name:         e.Name,
		EntityType:   e.EntityType,
		Observations: obs,
	})
}

func marshalRelationLine(r Relation) ([]byte, error) {
	return json.Marshal(relationRecord{
		Type:         recordTypeRelation,
		From:         r.From,
		To:           r.To,
		RelationType: r.RelationType,
	})
}

// applyLine decodes a single durable line into the graph. A record missing a
// required field is a parse error; observations may be absent or null and
// normalize to empty.
func (g *KnowledgeGraph) applyLine(line []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	var recordType string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &recordType); err != nil {
			return fmt.Errorf("failed to parse record type: %w", err)
		}
	}

	switch recordType {
	case recordTypeEntity:
		if err := requireFields(fields, "name", "entityType"); err != nil {
			return err
		}

		var rec entityRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to parse entity record: %w", err)
		}

		if rec.Observations == nil {
			rec.Observations = []string{}
		}

		g.Entities[rec.Name] = Entity{
			Name:         rec.Name,
			EntityType:   rec.EntityType,
			Observations: rec.Observations,
		}
	case recordTypeRelation:
		if err := requireFields(fields, "from", "to", "relationType"); err != nil {
			return err
		}

		var rec relationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to parse relation record: %w", err)
		}

		g.Relations = append(g.Relations, Relation{
			From:         rec.From,
			To:           rec.To,
			RelationType: rec.RelationType,
		})
	default:
		return fmt.Errorf("unknown record type %q", recordType)
	}

	return nil
}

// requireFields checks that every named field is present and not null.
func requireFields(fields map[string]json.RawMessage, names ...string) error {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return fmt.Errorf("missing field %q", name)
		}
	}

	return nil
}
