package layerir

import (
	"encoding/json"
	"fmt"

	"iconstudio/internal/apperr"
)

// Marshal validates doc and encodes it as indented JSON.
func Marshal(doc *Document) ([]byte, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Load decodes a persisted document. The schema tag is checked before the
// body is parsed, so documents of another version are never partially read.
// Layers come back ordered by zIndex.
func Load(data []byte) (*Document, error) {
	const op = "layerir.Load"
	var head struct {
		Schema string `json:"schema"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, apperr.Validation(op, []string{fmt.Sprintf("malformed document: %v", err)})
	}
	if head.Schema != Schema {
		return nil, apperr.Validation(op, []string{fmt.Sprintf("schema %q is not supported (want %q)", head.Schema, Schema)})
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Validation(op, []string{fmt.Sprintf("malformed document: %v", err)})
	}
	// layers may be stored in any order; ties keep their stored order
	sortLayers(doc.Layers)
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
