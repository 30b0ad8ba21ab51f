package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"redtape.au/redtape/internal/store"
)

// The metadata payload attached by the model is untrusted input. It is
// validated against a closed schema before anything downstream sees it;
// callers discard the payload (keeping the text reply) when validation fails.

var (
	metadataSchemaOnce sync.Once
	metadataSchema     *gojsonschema.Schema
	metadataSchemaErr  error
)

func stringArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

func enumStringSchema(values []string) map[string]any {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]any{"type": "string", "enum": enum}
}

func metadataSchemaDocument() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"challengeAreas": map[string]any{
				"type":  "array",
				"items": enumStringSchema(store.ChallengeAreaValues),
			},
			"appliesTo":          stringArraySchema(),
			"recommendedActions": stringArraySchema(),
			"citations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"title"},
					"properties": map[string]any{
						"title":  map[string]any{"type": "string"},
						"source": map[string]any{"type": "string"},
						"url":    map[string]any{"type": "string"},
					},
				},
			},
			"jurisdictions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"level", "name"},
					"properties": map[string]any{
						"level": enumStringSchema(store.JurisdictionLevels),
						"name":  map[string]any{"type": "string"},
						"role":  map[string]any{"type": "string"},
					},
				},
			},
			"suggestions": stringArraySchema(),
			"checklistItems": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"title"},
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"dueDate":     map[string]any{"type": "string"},
						"agency":      map[string]any{"type": "string"},
						"priority":    enumStringSchema(store.PriorityValues),
						"category":    enumStringSchema(store.CategoryValues),
					},
				},
			},
			"showForm": enumStringSchema(store.FormKindValues),
		},
	}
}

func compiledMetadataSchema() (*gojsonschema.Schema, error) {
	metadataSchemaOnce.Do(func() {
		loader := gojsonschema.NewGoLoader(metadataSchemaDocument())
		metadataSchema, metadataSchemaErr = gojsonschema.NewSchema(loader)
	})
	return metadataSchema, metadataSchemaErr
}

// ParseReplyMetadata validates raw tool-call arguments and decodes them into
// the typed payload. Any failure (malformed JSON, schema violation) is an
// error; callers treat it as "no metadata", never as a request failure.
func ParseReplyMetadata(raw []byte) (*store.ReplyMetadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	schema, err := compiledMetadataSchema()
	if err != nil {
		return nil, fmt.Errorf("metadata schema failed to compile: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("metadata payload is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("metadata payload rejected by schema: %v", result.Errors())
	}

	var md store.ReplyMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("failed to decode metadata payload: %w", err)
	}
	return &md, nil
}
