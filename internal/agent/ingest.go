package agent

import (
	"fmt"

	"github.com/osinthq/inquest/internal/session"
	"github.com/osinthq/inquest/internal/tools"
)

// Per-tool base confidence for derived findings. Partial success
// (an error key or non-ok status in the result) halves the value.
var toolConfidence = map[string]float64{
	"entity_search":    0.85,
	"sanctions_screen": 0.90,
	"relationship_map": 0.80,
	"document_lookup":  0.70,
	"news_search":      0.60,
}

const defaultConfidence = 0.50

func confidenceFor(tool string, result tools.Result) float64 {
	c, ok := toolConfidence[tool]
	if !ok {
		c = defaultConfidence
	}
	if !result.OK() {
		return c / 2
	}
	if _, hasErr := result[tools.KeyError]; hasErr {
		return c / 2
	}
	return c
}

// summarizeResult picks a human summary from the result's top fields.
func summarizeResult(result tools.Result) string {
	if entities := asList(result[tools.KeyEntities]); entities != nil {
		return fmt.Sprintf("%d entities", len(entities))
	}
	if matches := asList(result[tools.KeyMatches]); matches != nil {
		return fmt.Sprintf("%d matches", len(matches))
	}
	if articles := asList(result[tools.KeyArticles]); articles != nil {
		return fmt.Sprintf("%d articles", len(articles))
	}
	if count, ok := result[tools.KeyResultCount]; ok {
		return fmt.Sprintf("%v results", count)
	}
	return fmt.Sprintf("result with %d fields", len(result))
}

// ingest derives a finding from one executed action and adds it to the
// session. Returns the stored finding and the ids of entities that
// were new to the session.
func ingest(s *session.Session, tool string, result tools.Result) (session.Finding, []string) {
	entities := parseEntities(result[tools.KeyEntities])
	relationships := make([]session.Entity, 0)
	plain := make([]session.Entity, 0, len(entities))
	for _, e := range entities {
		if isRelationshipSchema(e.Schema) {
			relationships = append(relationships, e)
		} else {
			plain = append(plain, e)
		}
	}

	var newIDs []string
	for _, e := range plain {
		if _, known := s.EntityIndex[e.ID]; !known {
			newIDs = append(newIDs, e.ID)
		}
	}

	summary := fmt.Sprintf("%s: %s", tool, summarizeResult(result))
	finding := s.AddFinding(session.Finding{
		Source:        tool,
		Summary:       summary,
		Entities:      plain,
		Relationships: relationships,
		Confidence:    confidenceFor(tool, result),
		RawData:       map[string]interface{}(result),
	})
	return finding, newIDs
}

// deriveLeads turns result structure into follow-up leads: sanctions
// matches escalate, newly discovered entities get relationship mapping.
func deriveLeads(s *session.Session, findingID string, result tools.Result, newEntityIDs []string) []session.Lead {
	var leads []session.Lead

	if matches := asList(result[tools.KeyMatches]); len(matches) > 0 {
		leads = append(leads, s.AddLead(session.Lead{
			Description:   fmt.Sprintf("review %d sanctions list matches", len(matches)),
			Priority:      0.95,
			SourceFinding: findingID,
			Tool:          "document_lookup",
			Query:         "sanctions match evidence",
		}))
	}

	// Cap per turn so one broad search cannot flood the lead queue.
	capped := newEntityIDs
	if len(capped) > 2 {
		capped = capped[:2]
	}
	for _, id := range capped {
		name := id
		if e, ok := s.EntityIndex[id]; ok {
			name = e.Name()
		}
		leads = append(leads, s.AddLead(session.Lead{
			Description:   fmt.Sprintf("map relationships of %s", name),
			Priority:      0.5,
			SourceFinding: findingID,
			Tool:          "relationship_map",
			Query:         name,
		}))
	}
	return leads
}

func isRelationshipSchema(schema string) bool {
	switch schema {
	case "Ownership", "Directorship", "Membership", "Relationship":
		return true
	}
	return false
}

// parseEntities converts the loosely typed entities list a tool
// returns into session entities. Both native []string property values
// and JSON-roundtripped []interface{} values are accepted.
func parseEntities(v interface{}) []session.Entity {
	list := asList(v)
	var out []session.Entity
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if id == "" {
			continue
		}
		schema, _ := m["schema"].(string)
		e := session.Entity{ID: id, Schema: schema, Properties: make(map[string][]string)}
		if props, ok := m["properties"].(map[string]interface{}); ok {
			for k, raw := range props {
				e.Properties[k] = asStrings(raw)
			}
		}
		out = append(out, e)
	}
	return out
}

func asList(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case nil:
		return nil
	}
	return nil
}

func asStrings(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprintf("%v", item))
			}
		}
		return out
	case string:
		return []string{val}
	}
	return nil
}
