// Package persistence provides the internal schema management for the persistence layer.
// This includes the schema for the `_schemas` collection, which is used to store the
// definitions of all other collections.
package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/asaidimu/go-tabula/core/schema"
)

// SCHEMA_COLLECTION_NAME is the constant name for the internal collection that
// stores the schema definitions for all other collections.
const SCHEMA_COLLECTION_NAME = "_schemas"

// SchemaRecord represents the structure of a row in the `_schemas` collection.
// Each record holds the definition of a single collection's schema.
type SchemaRecord struct {
	Name        string `json:"name"`        // The name of the collection this schema defines.
	Description string `json:"description"` // A human-readable description of the schema.
	Version     string `json:"version"`     // The version of the schema.
	Schema      string `json:"schema"`      // The full schema definition, stored as JSON text.
}

// schemasCollectionSchema is the definition for the `_schemas` collection itself.
var schemasCollectionSchema = []byte(`
{
  "name": "_schemas",
  "version": "1.0.0",
  "description": "Stores schema definitions for all collections in the database.",
  "columns": [
    {"name": "name", "type": "string", "description": "The name of the collection this schema defines."},
    {"name": "version", "type": "string", "description": "The version of the schema."},
    {"name": "description", "type": "string", "description": "A description of the schema."},
    {"name": "schema", "type": "string", "description": "The full schema definition as JSON."}
  ]
}`)

func schemasCollection() (*schema.SchemaDefinition, error) {
	s, err := schema.ParseSchema(schemasCollectionSchema)
	if err != nil {
		return nil, fmt.Errorf("error parsing schemas collection schema: %w", err)
	}
	return s, nil
}

// newSchemaRecord builds the registry row for a schema definition.
func newSchemaRecord(s *schema.SchemaDefinition) (*SchemaRecord, error) {
	jsonBytes, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SchemaDefinition to JSON: %w", err)
	}
	record := &SchemaRecord{
		Name:    s.Name,
		Version: s.Version,
		Schema:  string(jsonBytes),
	}
	if s.Description != nil {
		record.Description = *s.Description
	}
	return record, nil
}

// document converts a SchemaRecord into a row of the `_schemas` collection.
func (r *SchemaRecord) document() schema.Document {
	return schema.Document{
		"name":        r.Name,
		"version":     r.Version,
		"description": r.Description,
		"schema":      r.Schema,
	}
}

// mapToSchemaRecord converts a `_schemas` row into a structured SchemaRecord.
func mapToSchemaRecord(data schema.Document) (*SchemaRecord, error) {
	record := &SchemaRecord{}
	fields := map[string]*string{
		"name":        &record.Name,
		"version":     &record.Version,
		"description": &record.Description,
		"schema":      &record.Schema,
	}
	for key, dst := range fields {
		v, ok := data[key].(string)
		if !ok {
			return nil, fmt.Errorf("schema record field '%s' is %T, expected string", key, data[key])
		}
		*dst = v
	}
	return record, nil
}

// Definition decodes the stored schema definition.
func (r *SchemaRecord) Definition() (*schema.SchemaDefinition, error) {
	var s schema.SchemaDefinition
	if err := json.Unmarshal([]byte(r.Schema), &s); err != nil {
		return nil, fmt.Errorf("error unmarshaling schema '%s': %w", r.Name, err)
	}
	return &s, nil
}
