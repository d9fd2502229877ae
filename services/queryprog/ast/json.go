// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"encoding/json"
	"fmt"
)

// statementEnvelope is the wire form of a Statement. The operation is kept
// as raw JSON so the tagged union can be decoded after the discriminant is
// known.
type statementEnvelope struct {
	Op        Op              `json:"op"`
	Operation json.RawMessage `json:"operation"`
	Label     string          `json:"label,omitempty"`
	Block     *BlockInfo      `json:"block,omitempty"`
}

// MarshalJSON encodes the statement with its operation wrapped in a
// `{"type": ...}` envelope.
func (s Statement) MarshalJSON() ([]byte, error) {
	op, err := marshalOperation(s.Operation)
	if err != nil {
		return nil, err
	}
	return json.Marshal(statementEnvelope{
		Op:        s.Op,
		Operation: op,
		Label:     s.Label,
		Block:     s.Block,
	})
}

// UnmarshalJSON decodes the statement, dispatching the operation on its
// type discriminant.
func (s *Statement) UnmarshalJSON(data []byte) error {
	var env statementEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	op, err := unmarshalOperation(env.Operation)
	if err != nil {
		return err
	}
	s.Op = env.Op
	s.Operation = op
	s.Label = env.Label
	s.Block = env.Block
	return nil
}

func marshalOperation(op Operation) (json.RawMessage, error) {
	switch v := op.(type) {
	case CypherOp:
		return json.Marshal(struct {
			Type string `json:"type"`
			CypherOp
		}{OpTypeCypher, v})
	case ApiOp:
		return json.Marshal(struct {
			Type string `json:"type"`
			ApiOp
		}{OpTypeAPI, v})
	case ConditionalOp:
		return json.Marshal(struct {
			Type string `json:"type"`
			ConditionalOp
		}{OpTypeConditional, v})
	case nil:
		return nil, ErrMissingOperation
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
}

func unmarshalOperation(raw json.RawMessage) (Operation, error) {
	if len(raw) == 0 {
		return nil, ErrMissingOperation
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	switch probe.Type {
	case OpTypeCypher:
		var v CypherOp
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case OpTypeAPI:
		var v ApiOp
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case OpTypeConditional:
		var v ConditionalOp
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, probe.Type)
	}
}

// DecodeProgram decodes a persisted program JSON document.
//
// Inputs:
//
//	data - Raw JSON bytes in the `{version, metadata?, params?, statements}`
//	       shape.
//
// Outputs:
//
//	*Program - The decoded program.
//	error - Non-nil on malformed JSON, a missing operation envelope, or a
//	        version newer than ProgramVersion.
func DecodeProgram(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if p.Version > ProgramVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	return &p, nil
}

// EncodeProgram encodes a program to its persisted JSON form.
func EncodeProgram(p *Program) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("encode program: nil program")
	}
	return json.Marshal(p)
}
