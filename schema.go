// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package evidencegraph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
)

// recordSchema describes the envelope every stored record must satisfy.
const recordSchema = `{
	"$schema": "https://json-schema.org/draft/2019-09/schema",
	"$id": "https://forensicanalysis.github.io/evidencegraph/record.json",
	"title": "record",
	"type": "object",
	"required": ["core:hasFacet"],
	"properties": {
		"@id": {"type": "string"},
		"@type": {"type": ["string", "array"]},
		"core:hasFacet": {
			"type": ["object", "array"],
			"minItems": 1,
			"items": {"type": "object"}
		}
	}
}`

// Validator checks raw records before they are stored.
type Validator interface {
	Validate(element []byte) (flaws []string, err error)
}

type schemaValidator struct {
	schema *jsonschema.Schema
}

func newSchemaValidator() (*schemaValidator, error) {
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(recordSchema), schema); err != nil {
		return nil, errors.Wrap(err, "unmarshal record schema")
	}
	return &schemaValidator{schema: schema}, nil
}

func (v *schemaValidator) Validate(element []byte) (flaws []string, err error) {
	errs, err := v.schema.ValidateBytes(context.Background(), element)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate element: %s %s", verr.PropertyPath, verr.Message))
	}
	return flaws, nil
}
