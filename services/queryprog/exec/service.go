// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package exec interprets a query program statement by statement against an
// external query service, folding each result into the session's working
// graph via the algebra package.
//
// Execution is strictly sequential: each external call is awaited before
// the next statement starts, because later statements (and conditional
// branches) read the working graph accumulated by earlier ones. Retries
// and backoff belong to the query-service implementation
// (services/queryprog/gateway), never to this layer.
package exec

import "context"

// QueryRequest is the request shape accepted by the query-service
// collaborator: either a Cypher query with an optional limit, or an
// allow-listed REST endpoint with parameters.
type QueryRequest struct {
	Query    string         `json:"query,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Endpoint string         `json:"endpoint,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// RawNode is a node as returned by the query service. ID is a
// store-internal handle; the stable concept_id travels in Properties.
type RawNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// RawRelationship is a relationship as returned by the query service.
// FromID/ToID may be store-internal handles.
type RawRelationship struct {
	FromID     string         `json:"from_id"`
	ToID       string         `json:"to_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// ResultSet is one query result: the nodes and relationships matched by a
// single Cypher or API statement.
type ResultSet struct {
	Nodes         []RawNode         `json:"nodes"`
	Relationships []RawRelationship `json:"relationships"`
}

// QueryService is the external collaborator through which the source graph
// is reached. The source graph is read-only from this subsystem's point of
// view; implementations must not expect mutation requests.
type QueryService interface {
	Query(ctx context.Context, req QueryRequest) (*ResultSet, error)
}
