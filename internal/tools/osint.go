package tools

import (
	"context"
	"fmt"
	"strings"
)

// Fixture tools backing demo mode and the test suite. They are
// deterministic over the query string so investigations replay
// identically.

// RegisterFixtureTools adds the built-in OSINT fixture tools to the
// registry.
func RegisterFixtureTools(r *Registry) {
	r.Register(ToolFunc{ToolName: "entity_search", Fn: fixtureEntitySearch})
	r.Register(ToolFunc{ToolName: "sanctions_screen", Fn: fixtureSanctionsScreen})
	r.Register(ToolFunc{ToolName: "news_search", Fn: fixtureNewsSearch})
	r.Register(ToolFunc{ToolName: "relationship_map", Fn: fixtureRelationshipMap})
	r.Register(ToolFunc{ToolName: "document_lookup", Fn: fixtureDocumentLookup})
}

func queryArg(args Args) string {
	for _, key := range []string{"query", "target", "entity", "name"} {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// slugify turns a query into a stable entity id fragment.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "-")
	if len(s) > 48 {
		s = s[:48]
	}
	return s
}

func fixtureEntitySearch(ctx context.Context, args Args) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := queryArg(args)
	if query == "" {
		return Result{KeyStatus: StatusError, KeyError: "entity_search requires a query"}, nil
	}
	slug := slugify(query)
	company := map[string]interface{}{
		"id":     "company:" + slug,
		"schema": "Company",
		"properties": map[string]interface{}{
			"name":         []string{strings.TrimSpace(query)},
			"jurisdiction": []string{"Panama"},
			"status":       []string{"active"},
		},
	}
	director := map[string]interface{}{
		"id":     "person:director-" + slug,
		"schema": "Person",
		"properties": map[string]interface{}{
			"name": []string{"J. Director"},
			"role": []string{"director"},
		},
	}
	return Result{
		KeyEntities:    []interface{}{company, director},
		KeyResultCount: 2,
	}, nil
}

func fixtureSanctionsScreen(ctx context.Context, args Args) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := queryArg(args)
	// Names containing "sanction" hit the fixture list; everything else
	// screens clean.
	if strings.Contains(strings.ToLower(query), "sanction") {
		return Result{
			KeyMatches: []interface{}{
				map[string]interface{}{
					"list":   "OFAC SDN",
					"name":   query,
					"score":  0.92,
					"reason": "name match",
				},
			},
			KeyResultCount: 1,
		}, nil
	}
	return Result{KeyMatches: []interface{}{}, KeyResultCount: 0}, nil
}

func fixtureNewsSearch(ctx context.Context, args Args) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := queryArg(args)
	return Result{
		KeyArticles: []interface{}{
			map[string]interface{}{
				"title":  fmt.Sprintf("Regulators probe %s offshore network", query),
				"source": "fixture-wire",
				"date":   "2026-03-14",
			},
			map[string]interface{}{
				"title":  fmt.Sprintf("%s denies shell company allegations", query),
				"source": "fixture-wire",
				"date":   "2026-03-02",
			},
		},
		KeyResultCount: 2,
	}, nil
}

func fixtureRelationshipMap(ctx context.Context, args Args) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := queryArg(args)
	slug := slugify(query)
	ownership := map[string]interface{}{
		"id":     "ownership:" + slug,
		"schema": "Ownership",
		"properties": map[string]interface{}{
			"owner":   []string{"person:director-" + slug},
			"asset":   []string{"company:" + slug},
			"percent": []string{"100"},
		},
	}
	return Result{
		KeyEntities:    []interface{}{ownership},
		KeyResultCount: 1,
	}, nil
}

func fixtureDocumentLookup(ctx context.Context, args Args) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := queryArg(args)
	return Result{
		"documents": []interface{}{
			map[string]interface{}{
				"title": fmt.Sprintf("Certificate of incorporation: %s", query),
				"type":  "registry_filing",
			},
		},
		KeyResultCount: 1,
	}, nil
}
