// Package patch runs the regeneration workflow that replaces one object
// layer's content in place: Requested, Rendering, Merging, then Committed or
// Failed. Commits are serialized per document; a failed workflow leaves the
// stored document untouched.
package patch

import (
	"image"
	"sync"
	"time"

	"iconstudio/internal/canvas"
	"iconstudio/internal/layerir"
	"iconstudio/internal/segmentation"
)

type State string

const (
	StateRequested State = "requested"
	StateRendering State = "rendering"
	StateMerging   State = "merging"
	StateCommitted State = "committed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// Request is one edit on one layer.
type Request struct {
	LayerID string `json:"layerId"`
	Change  string `json:"change"`
	// Label overrides the layer's own label in the regional prompt.
	Label string `json:"label,omitempty"`
}

// Workflow tracks a single patch request.
type Workflow struct {
	ID      string
	DocID   string
	LayerID string
	Change  string
	Label   string
	Brief   string
	// Rect is the patch rectangle in canvas pixels.
	Rect canvas.Rect
	// Base is the head version the request was issued against.
	Base      string
	CreatedAt time.Time

	mu     sync.Mutex
	state  State
	err    error
	beauty image.Image
	mask   *segmentation.Object
	result *layerir.Document
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err is the failure cause once the workflow has failed.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Result returns the committed document, or nil before commit.
func (w *Workflow) Result() *layerir.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result.Clone()
}

// Snapshot is the JSON view of a workflow.
type Snapshot struct {
	ID          string      `json:"id"`
	DocID       string      `json:"docId"`
	LayerID     string      `json:"layerId"`
	Change      string      `json:"change"`
	State       State       `json:"state"`
	Rect        canvas.Rect `json:"patchRect"`
	BaseVersion string      `json:"baseVersion"`
	Version     string      `json:"version,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		ID:          w.ID,
		DocID:       w.DocID,
		LayerID:     w.LayerID,
		Change:      w.Change,
		State:       w.state,
		Rect:        w.Rect,
		BaseVersion: w.Base,
	}
	if w.result != nil {
		s.Version = w.result.Head().VersionID
	}
	if w.err != nil {
		s.Error = w.err.Error()
	}
	return s
}

// advance moves from one state to the next, reporting whether the workflow
// was in the expected state.
func (w *Workflow) advance(from, to State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return false
	}
	w.state = to
	return true
}
