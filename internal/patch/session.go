package patch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"iconstudio/internal/apperr"
	"iconstudio/internal/assets"
	"iconstudio/internal/genclient"
	"iconstudio/internal/layerir"
	"iconstudio/internal/prompts"
	"iconstudio/internal/segmentation"
)

// DefaultPaddingPx is the margin added around a layer's bbox to form the
// patch rectangle.
const DefaultPaddingPx = 24

// DocStore is the durable document store; Save must compare-and-swap on the
// head version.
type DocStore interface {
	Get(ctx context.Context, docID string) (*layerir.Document, error)
	Save(ctx context.Context, doc *layerir.Document, expectedHead string) error
}

type Config struct {
	PaddingPx int
	// Timeout bounds the Rendering state. Zero means no bound beyond ctx.
	Timeout time.Duration
	// MinArea is the noise threshold for decoding patch masks.
	MinArea int
	Now     func() time.Time
	Logger  *log.Logger
}

// Manager owns one Session per document and the event stream.
type Manager struct {
	gen    genclient.Client
	docs   DocStore
	assets assets.Store
	cfg    Config
	hub    *hub

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(gen genclient.Client, docs DocStore, store assets.Store, cfg Config) *Manager {
	if cfg.PaddingPx < 0 {
		cfg.PaddingPx = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Manager{
		gen:      gen,
		docs:     docs,
		assets:   store,
		cfg:      cfg,
		hub:      newHub(),
		sessions: make(map[string]*Session),
	}
}

// Session returns the editing session for docID, creating it on first use.
func (m *Manager) Session(docID string) *Session {
	docID = strings.TrimSpace(docID)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[docID]
	if !ok {
		s = &Session{m: m, docID: docID, locks: make(map[string]string)}
		m.sessions[docID] = s
	}
	return s
}

// Subscribe streams workflow events for docID until ctx is canceled.
func (m *Manager) Subscribe(ctx context.Context, docID string) <-chan Event {
	return m.hub.subscribe(ctx, docID)
}

// Session serializes commits against one document and holds the per-layer
// locks of in-flight workflows.
type Session struct {
	m     *Manager
	docID string

	commitMu sync.Mutex

	mu    sync.Mutex
	locks map[string]string
}

// Patch runs a whole workflow: Begin, Render, Commit.
func (s *Session) Patch(ctx context.Context, req Request) (*Workflow, error) {
	w, err := s.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.Render(ctx, w); err != nil {
		return w, err
	}
	if _, err := s.Commit(ctx, w); err != nil {
		return w, err
	}
	return w, nil
}

// Begin validates the request, locks the layer and computes the patch
// rectangle. A second request on a locked layer fails with LayerLocked.
func (s *Session) Begin(ctx context.Context, req Request) (*Workflow, error) {
	const op = "patch.Begin"
	req.LayerID = strings.TrimSpace(req.LayerID)
	req.Change = strings.TrimSpace(req.Change)
	var missing []string
	if req.LayerID == "" {
		missing = append(missing, "layerId is required")
	}
	if req.Change == "" {
		missing = append(missing, "change is required")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation(op, missing)
	}

	doc, err := s.m.docs.Get(ctx, s.docID)
	if err != nil {
		return nil, err
	}
	l, ok := doc.Layer(req.LayerID)
	if !ok {
		return nil, apperr.NotFound(op, "layer %q in document %q", req.LayerID, s.docID)
	}
	obj, ok := l.(layerir.ObjectGroupLayer)
	if !ok {
		return nil, apperr.Validation(op, []string{fmt.Sprintf("layer %q is a %s layer; only object_group layers can be regenerated", req.LayerID, l.Kind())})
	}

	w := &Workflow{
		ID:        uuid.NewString(),
		DocID:     s.docID,
		LayerID:   req.LayerID,
		Change:    req.Change,
		Label:     firstNonEmpty(strings.TrimSpace(req.Label), obj.Label, obj.ID),
		Brief:     doc.Brief,
		Rect:      doc.Canvas.PatchRect(obj.BBox, s.m.cfg.PaddingPx),
		Base:      doc.Head().VersionID,
		CreatedAt: s.m.cfg.Now(),
		state:     StateRequested,
	}

	s.mu.Lock()
	if holder, locked := s.locks[req.LayerID]; locked {
		s.mu.Unlock()
		err := apperr.LayerLocked(op, req.LayerID)
		err.Message += fmt.Sprintf(" (workflow %s)", holder)
		return nil, err
	}
	s.locks[req.LayerID] = w.ID
	s.mu.Unlock()

	s.emit(w, StateRequested, fmt.Sprintf("patch %s on %s", w.Rect, w.LayerID))
	return w, nil
}

// Render asks the generation collaborator for the patch beauty image and the
// patch mask concurrently and decodes the mask. On success the workflow is
// in Merging; any failure moves it to Failed.
func (s *Session) Render(ctx context.Context, w *Workflow) error {
	const op = "patch.Render"
	if !w.advance(StateRequested, StateRendering) {
		return apperr.WorkflowState(op, "workflow %s is %s, not %s", w.ID, w.State(), StateRequested)
	}
	s.emit(w, StateRendering, "")

	rctx := ctx
	if s.m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.m.cfg.Timeout)
		defer cancel()
	}

	p := prompts.Patch{
		Brief:     w.Brief,
		LayerID:   w.LayerID,
		Label:     w.Label,
		Change:    w.Change,
		Width:     w.Rect.W,
		Height:    w.Rect.H,
		PaddingPx: s.m.cfg.PaddingPx,
	}
	var (
		beauty image.Image
		mask   *segmentation.Object
	)
	g, gctx := errgroup.WithContext(rctx)
	g.Go(func() error {
		img, err := s.generateImage(genclient.WithPhase(gctx, genclient.PhasePatchBeauty), prompts.PatchBeautyPrompt(p), w.Rect.W, w.Rect.H)
		if err != nil {
			return err
		}
		beauty = img
		return nil
	})
	g.Go(func() error {
		img, err := s.generateImage(genclient.WithPhase(gctx, genclient.PhasePatchSegmentation), prompts.PatchSegmentationPrompt(p), w.Rect.W, w.Rect.H)
		if err != nil {
			return err
		}
		res, err := segmentation.Decode(img, segmentation.Options{
			Allowed:         []segmentation.Color{segmentation.PatchColor},
			MinArea:         s.m.cfg.MinArea,
			MergeComponents: true,
		})
		if err != nil {
			return err
		}
		if len(res.Objects) != 1 {
			return apperr.SegmentationDecode(op, "patch mask decoded to %d objects, want 1", len(res.Objects))
		}
		mask = &res.Objects[0]
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = apperr.Upstream(op, s.m.gen.Name(), fmt.Errorf("rendering timed out after %s: %w", s.m.cfg.Timeout, err))
		}
		return s.fail(w, err)
	}

	w.mu.Lock()
	w.beauty = beauty
	w.mask = mask
	w.state = StateMerging
	w.mu.Unlock()
	s.emit(w, StateMerging, fmt.Sprintf("mask covers %s", mask.Bounds.Offset(w.Rect.X, w.Rect.Y)))
	return nil
}

// Commit merges the rendered patch into the current document under the
// session's commit lock and stores it. Committing a committed workflow
// returns the same document again.
func (s *Session) Commit(ctx context.Context, w *Workflow) (*layerir.Document, error) {
	const op = "patch.Commit"
	switch st := w.State(); st {
	case StateCommitted:
		return w.Result(), nil
	case StateMerging:
	default:
		return nil, apperr.WorkflowState(op, "workflow %s is %s, not %s", w.ID, st, StateMerging)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	cur, err := s.m.docs.Get(ctx, s.docID)
	if err != nil {
		return nil, s.fail(w, err)
	}
	next, err := s.merge(ctx, cur, w)
	if err != nil {
		return nil, s.fail(w, err)
	}
	if err := s.m.docs.Save(ctx, next, cur.Head().VersionID); err != nil {
		return nil, s.fail(w, err)
	}

	w.mu.Lock()
	w.state = StateCommitted
	w.result = next.Clone()
	w.beauty, w.mask = nil, nil
	w.mu.Unlock()
	s.release(w)
	s.emit(w, StateCommitted, next.Head().Notes)
	return next, nil
}

// Abort fails a workflow that has not reached a terminal state and frees
// its layer.
func (s *Session) Abort(w *Workflow, reason string) error {
	if w.State().Terminal() {
		return apperr.WorkflowState("patch.Abort", "workflow %s is already %s", w.ID, w.State())
	}
	if reason == "" {
		reason = "aborted"
	}
	_ = s.fail(w, errors.New(reason))
	return nil
}

// Apply commits an arbitrary document mutation under the session's commit
// lock and appends a version with notes. The mutation sees the current
// document and must not modify it in place.
func (s *Session) Apply(ctx context.Context, notes string, mutate func(*layerir.Document) (*layerir.Document, error)) (*layerir.Document, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	cur, err := s.m.docs.Get(ctx, s.docID)
	if err != nil {
		return nil, err
	}
	next, err := mutate(cur)
	if err != nil {
		return nil, err
	}
	next = layerir.AppendVersion(next, notes, s.m.cfg.Now())
	if err := s.m.docs.Save(ctx, next, cur.Head().VersionID); err != nil {
		return nil, err
	}
	s.m.hub.publish(Event{DocID: s.docID, State: StateCommitted, Version: next.Head().VersionID, Message: notes, At: s.m.cfg.Now()})
	return next, nil
}

// Locked reports which workflow holds layerID, if any.
func (s *Session) Locked(layerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.locks[layerID]
	return id, ok
}

func (s *Session) generateImage(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	resp, err := s.m.gen.Generate(ctx, genclient.Request{
		Prompt:   prompt,
		Modality: genclient.ModalityImage,
		Width:    width,
		Height:   height,
	})
	if err == nil {
		err = genclient.CheckImage(resp, width, height)
	}
	if err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, apperr.Upstream("patch.Render", s.m.gen.Name(), fmt.Errorf("%s: %w", genclient.PhaseFrom(ctx), err))
	}
	img, err := segmentation.DecodePNG(resp.Data)
	if err != nil {
		return nil, apperr.Upstream("patch.Render", s.m.gen.Name(), err)
	}
	return img, nil
}

func (s *Session) fail(w *Workflow, err error) error {
	w.mu.Lock()
	if w.state.Terminal() {
		w.mu.Unlock()
		return err
	}
	w.state = StateFailed
	w.err = err
	w.beauty, w.mask = nil, nil
	w.mu.Unlock()
	s.release(w)
	s.m.cfg.Logger.Printf("patch: workflow %s on %s/%s failed: %v", w.ID, w.DocID, w.LayerID, err)
	s.emit(w, StateFailed, err.Error())
	return err
}

func (s *Session) release(w *Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[w.LayerID] == w.ID {
		delete(s.locks, w.LayerID)
	}
}

func (s *Session) emit(w *Workflow, st State, msg string) {
	ev := Event{WorkflowID: w.ID, DocID: w.DocID, LayerID: w.LayerID, State: st, Message: msg, At: s.m.cfg.Now()}
	if st == StateCommitted {
		if r := w.Result(); r != nil {
			ev.Version = r.Head().VersionID
		}
	}
	if st != StateFailed {
		s.m.cfg.Logger.Printf("patch: workflow %s on %s/%s -> %s", w.ID, w.DocID, w.LayerID, st)
	}
	s.m.hub.publish(ev)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
