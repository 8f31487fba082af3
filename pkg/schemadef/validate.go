package schemadef

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
)

// definitionSchema constrains the storage representation of a definition.
// Type-specific bodies live under spec and stay open except for the elements
// the engine relies on (named columns, named constraints, reference targets).
const definitionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["version", "type", "namespace", "name", "spec"],
	"properties": {
		"version": { "type": "string", "enum": ["v1"] },
		"type": { "type": "string", "enum": ["table", "index", "function", "view", "sequence"] },
		"namespace": { "type": "string", "minLength": 1, "maxLength": 63, "pattern": "^[a-z0-9]([-_a-z0-9]*[a-z0-9])?$" },
		"name": { "type": "string", "minLength": 1, "maxLength": 63, "pattern": "^[a-z0-9]([-_a-z0-9]*[a-z0-9])?$" },
		"description": { "type": "string", "maxLength": 1024 },
		"spec": {
			"type": "object",
			"properties": {
				"columns": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["name"],
						"properties": {
							"name": { "type": "string", "minLength": 1 },
							"references": {
								"type": "object",
								"required": ["name"],
								"properties": {
									"type": { "type": "string" },
									"namespace": { "type": "string" },
									"name": { "type": "string", "minLength": 1 }
								}
							}
						}
					}
				},
				"constraints": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["name"],
						"properties": { "name": { "type": "string", "minLength": 1 } }
					}
				},
				"references": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["name"],
						"properties": {
							"type": { "type": "string" },
							"namespace": { "type": "string" },
							"name": { "type": "string", "minLength": 1 }
						}
					}
				}
			}
		}
	}
}`

var compiledDefinitionSchema *jsonschema.Schema

func init() {
	compiledDefinitionSchema = jsonschema.MustCompileString("definition.schema.json", definitionSchema)
}

// ValidateDefinition checks a serialized definition against the storage
// schema. The returned error carries the validator's detail chain.
func ValidateDefinition(data []byte) apperrors.Error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return ErrInvalidDefinition.Err(err)
	}
	if err := compiledDefinitionSchema.Validate(doc); err != nil {
		return ErrSchemaValidation.Err(err)
	}
	return nil
}
