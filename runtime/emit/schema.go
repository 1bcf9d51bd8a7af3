package emit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema is the output contract, compiled in. It is deliberately
// loose about per-type fields (settings and states are free-form bags) and
// strict about the envelope shape every consumer relies on.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["entities"],
  "properties": {
    "entities": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/entity"}
    }
  },
  "$defs": {
    "entity": {
      "type": "object",
      "required": ["type", "id", "body"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "id": {"type": "string", "minLength": 1},
        "attributes": {"type": "array", "items": {"type": "string"}},
        "flags": {"type": "array", "items": {"type": "string"}},
        "settings": {"type": "object"},
        "states": {"type": "object"},
        "body": {"type": "array", "items": {"$ref": "#/$defs/command"}}
      }
    },
    "command": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"type": "string"},
        "tag": {"type": "string"},
        "id": {"type": "string"},
        "display": {"type": "string"},
        "text": {"type": "string"},
        "conditions": {"type": "array", "items": {"$ref": "#/$defs/condition"}},
        "settings": {"type": "object"},
        "op": {"type": "string", "enum": ["=", "+=", "-="]},
        "rval": {"type": ["string", "number", "boolean"]},
        "body": {"type": "array", "items": {"$ref": "#/$defs/command"}}
      }
    },
    "condition": {
      "type": "object",
      "required": ["lval", "op", "rval"],
      "properties": {
        "lval": {"type": "string"},
        "op": {"type": "string", "enum": ["==", "!=", "<", "<=", ">", ">="]},
        "rval": {"type": "string"},
        "connector": {"type": "string", "enum": ["and", "or"]}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	const url = "schema://document.json"
	if err := compiler.AddResource(url, strings.NewReader(documentSchema)); err != nil {
		panic(fmt.Sprintf("add document schema: %v", err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compile document schema: %v", err))
	}
	return schema
}

// ValidateDocument checks doc against the output contract. It round-trips
// through JSON first because the validator operates on decoded interface
// values, not structs.
func ValidateDocument(doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := compiledSchema.Validate(decoded); err != nil {
		return fmt.Errorf("document failed self-check: %w", err)
	}
	return nil
}
