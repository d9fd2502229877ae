// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exec

import "github.com/AleutianAI/conceptweave/services/queryprog/algebra"

// resolveResult converts a raw query result into an identity-keyed graph.
//
// The query service returns store-internal node handles; the stable
// concept_id each node carries in its own properties is the identity the
// working graph is keyed on. A translation table (handle -> concept_id) is
// built per result set, used to rewrite relationship endpoints, and then
// discarded. Handles never reach the working graph.
func resolveResult(rs *ResultSet) *algebra.Graph {
	g := algebra.NewGraph()
	if rs == nil {
		return g
	}

	table := make(map[string]string, len(rs.Nodes))
	for _, rn := range rs.Nodes {
		conceptID := stringProp(rn.Properties, "concept_id")
		if conceptID == "" {
			conceptID = rn.ID
		}
		if rn.ID != "" {
			table[rn.ID] = conceptID
		}
		g.AddNode(algebra.Node{
			ConceptID:   conceptID,
			Label:       firstNonEmpty(rn.Label, stringProp(rn.Properties, "label")),
			Ontology:    stringProp(rn.Properties, "ontology"),
			Description: stringProp(rn.Properties, "description"),
			Category:    stringProp(rn.Properties, "category"),
			Grounding:   floatProp(rn.Properties, "grounding_score"),
			Diversity:   floatProp(rn.Properties, "diversity_score"),
			Confidence:  floatProp(rn.Properties, "confidence"),
			Properties:  rn.Properties,
		})
	}

	for _, rr := range rs.Relationships {
		from := rr.FromID
		if stable, ok := table[from]; ok {
			from = stable
		}
		to := rr.ToID
		if stable, ok := table[to]; ok {
			to = stable
		}
		g.AddLink(algebra.Link{
			FromID:     from,
			ToID:       to,
			Type:       rr.Type,
			Confidence: rr.Confidence,
			Properties: rr.Properties,
		})
	}

	return g
}

func stringProp(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	if props == nil {
		return 0
	}
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
