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

import "errors"

var (
	// ErrUnknownOperation is returned when decoding an operation envelope
	// whose type discriminant is not cypher, api or conditional.
	ErrUnknownOperation = errors.New("unknown operation type")

	// ErrMissingOperation is returned when a statement has no operation.
	ErrMissingOperation = errors.New("statement has no operation")

	// ErrUnsupportedVersion is returned when decoding a program whose
	// version field is newer than this build understands.
	ErrUnsupportedVersion = errors.New("unsupported program version")
)
