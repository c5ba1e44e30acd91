// Package assets persists the byte artifacts a Layer IR document references:
// the beauty render, the segmentation render and per-object masks. Documents
// hold only the asset paths; this package resolves them.
package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store defines operations for persisting document assets, keyed by document
// id and the asset path recorded in the document.
type Store interface {
	Put(ctx context.Context, docID, path string, content []byte) error
	Get(ctx context.Context, docID, path string) ([]byte, error)
	GetURL(ctx context.Context, docID, path string) (string, error)
	List(ctx context.Context, docID string) ([]string, error)
}

var ErrNotFound = errors.New("asset not found")

// normalize trims the key parts and rejects empty ones.
func normalize(docID, path string) (string, string, error) {
	docID = strings.TrimSpace(docID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if docID == "" {
		return "", "", fmt.Errorf("doc_id is required")
	}
	if path == "" {
		return "", "", fmt.Errorf("path is required")
	}
	return docID, path, nil
}

func objectKey(docID, path string) string {
	return strings.TrimSpace(docID) + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}

// contentType guesses the MIME type from the asset path.
func contentType(path string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(path), ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
