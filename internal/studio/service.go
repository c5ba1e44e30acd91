// Package studio orchestrates icon creation and editing: brief generation,
// full-icon rendering with its segmentation companion, lifting the decoded
// objects into a Layer IR document, and the edit operations on it.
package studio

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"iconstudio/internal/apperr"
	"iconstudio/internal/assets"
	"iconstudio/internal/canvas"
	"iconstudio/internal/genclient"
	"iconstudio/internal/layerir"
	"iconstudio/internal/patch"
	"iconstudio/internal/prompts"
	"iconstudio/internal/segmentation"
)

// DocStore persists documents; Save compares and swaps on the head version.
type DocStore interface {
	Create(ctx context.Context, doc *layerir.Document) error
	Get(ctx context.Context, docID string) (*layerir.Document, error)
	Save(ctx context.Context, doc *layerir.Document, expectedHead string) error
	List(ctx context.Context) ([]string, error)
}

type Config struct {
	// SegMinArea is the noise threshold used when decoding segmentation
	// renders.
	SegMinArea int
	PaddingPx  int
	// PatchTimeout bounds the rendering step of a patch.
	PatchTimeout time.Duration
	Now          func() time.Time
	Logger       *log.Logger
}

type Service struct {
	gen     genclient.Client
	docs    DocStore
	assets  assets.Store
	patches *patch.Manager
	cfg     Config
}

func New(gen genclient.Client, docs DocStore, store assets.Store, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Service{
		gen:    gen,
		docs:   docs,
		assets: store,
		patches: patch.NewManager(gen, docs, store, patch.Config{
			PaddingPx: cfg.PaddingPx,
			Timeout:   cfg.PatchTimeout,
			MinArea:   cfg.SegMinArea,
			Now:       cfg.Now,
			Logger:    cfg.Logger,
		}),
		cfg: cfg,
	}
}

// GenerateBrief turns intake answers into the user brief. The text is
// returned verbatim; the caller confirms it and passes it to CreateIcon.
func (s *Service) GenerateBrief(ctx context.Context, in Intake) (string, error) {
	const op = "studio.GenerateBrief"
	if err := in.Validate(); err != nil {
		return "", err
	}
	resp, err := s.gen.Generate(genclient.WithPhase(ctx, genclient.PhaseBrief), genclient.Request{
		Prompt:   prompts.BriefPrompt(in.prompt()),
		Modality: genclient.ModalityText,
	})
	if err != nil {
		return "", upstream(op, s.gen.Name(), err)
	}
	txt, err := genclient.CheckText(resp)
	if err != nil {
		return "", upstream(op, s.gen.Name(), err)
	}
	return txt, nil
}

// CreateRequest starts a new icon from a confirmed brief.
type CreateRequest struct {
	Brief  string `json:"brief"`
	Intake Intake `json:"intake"`
	// Caption adds a text layer with this content when non-empty.
	Caption string `json:"caption,omitempty"`
}

// CreateIcon renders the beauty image and its segmentation companion,
// decodes the objects and stores the resulting document. When the
// segmentation does not decode the icon becomes a single full-canvas layer
// and the reason is recorded in the version notes. Nothing is stored when
// either render fails.
func (s *Service) CreateIcon(ctx context.Context, req CreateRequest) (*layerir.Document, error) {
	const op = "studio.CreateIcon"
	req.Brief = strings.TrimSpace(req.Brief)
	if req.Brief == "" {
		return nil, apperr.Validation(op, []string{"brief is required"})
	}
	if err := req.Intake.Validate(); err != nil {
		return nil, err
	}

	c := canvas.DefaultConfig(req.Intake.TargetSizePx)
	var beautyPNG, segPNG []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		beautyPNG, err = s.render(genclient.WithPhase(gctx, genclient.PhaseBeauty), prompts.BeautyPrompt(prompts.Beauty{
			Intake:        req.Intake.prompt(),
			Brief:         req.Brief,
			RenderPx:      c.Width,
			SafeMarginPct: c.SafeMarginPct,
		}), c)
		return err
	})
	g.Go(func() error {
		var err error
		segPNG, err = s.render(genclient.WithPhase(gctx, genclient.PhaseSegmentation), prompts.SegmentationPrompt(prompts.Segmentation{
			RenderPx:   c.Width,
			MaxObjects: segmentation.MaxObjects,
		}), c)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, upstream(op, s.gen.Name(), err)
	}

	docID := uuid.NewString()
	a := layerir.Assets{BeautyPNG: layerir.DefaultBeautyPNG, SegPNG: layerir.DefaultSegPNG, MaskDir: layerir.DefaultMaskDir}
	if err := s.assets.Put(ctx, docID, a.BeautyPNG, beautyPNG); err != nil {
		return nil, fmt.Errorf("store beauty render: %w", err)
	}

	notes := "Initial"
	objects, segOut, err := s.decode(segPNG, c)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindSegmentationDecode) {
			return nil, err
		}
		s.cfg.Logger.Printf("studio: %s: segmentation did not decode, using a single layer: %v", docID, err)
		notes = fmt.Sprintf("Initial (single layer: %v)", err)
		objects = []segmentation.Object{{Color: segmentation.Palette[0], Bounds: c.Bounds(), Mask: segmentation.FullMask(c.Width, c.Height)}}
		segOut = segmentation.Render(c.Width, c.Height, objects)
	}
	if segOut != nil {
		if segPNG, err = segmentation.EncodePNG(segOut); err != nil {
			return nil, err
		}
	}
	if err := s.assets.Put(ctx, docID, a.SegPNG, segPNG); err != nil {
		return nil, fmt.Errorf("store segmentation render: %w", err)
	}

	specs := make([]layerir.ObjectSpec, 0, len(objects))
	for i, o := range objects {
		ref := layerir.MaskRef(a, fmt.Sprintf("obj_%d", i+1), "")
		data, err := segmentation.EncodePNG(o.Mask)
		if err != nil {
			return nil, err
		}
		if err := s.assets.Put(ctx, docID, ref, data); err != nil {
			return nil, fmt.Errorf("store mask %s: %w", ref, err)
		}
		specs = append(specs, layerir.ObjectSpec{MaskRef: ref, BBox: o.Bounds, SegColor: string(o.Color)})
	}

	opts := []layerir.CreateOption{
		layerir.WithDocID(docID),
		layerir.WithBrief(req.Brief),
		layerir.WithAssets(a),
		layerir.WithNotes(notes),
		layerir.WithClock(s.cfg.Now),
	}
	if caption := strings.TrimSpace(req.Caption); caption != "" {
		opts = append(opts, layerir.WithText(layerir.DefaultText(c, caption)))
	}
	doc, err := layerir.CreateDocument(c, layerir.DefaultPalette(req.Intake.PaletteList...), specs, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.cfg.Logger.Printf("studio: created %s with %d object layers", docID, len(specs))
	return doc, nil
}

// decode lifts the segmentation render into objects. The returned image is
// non-nil when the render needed cleanup and should be stored re-encoded.
func (s *Service) decode(segPNG []byte, c canvas.Config) ([]segmentation.Object, *image.NRGBA, error) {
	img, err := segmentation.DecodePNG(segPNG)
	if err != nil {
		return nil, nil, apperr.SegmentationDecode("studio.CreateIcon", "%v", err)
	}
	res, err := segmentation.Decode(img, segmentation.Options{MinArea: s.cfg.SegMinArea})
	if err != nil {
		return nil, nil, err
	}
	var out *image.NRGBA
	if res.Dropped > 0 {
		out = segmentation.Render(c.Width, c.Height, res.Objects)
	}
	return res.Objects, out, nil
}

func (s *Service) render(ctx context.Context, prompt string, c canvas.Config) ([]byte, error) {
	resp, err := s.gen.Generate(ctx, genclient.Request{
		Prompt:   prompt,
		Modality: genclient.ModalityImage,
		Width:    c.Width,
		Height:   c.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", genclient.PhaseFrom(ctx), err)
	}
	if err := genclient.CheckImage(resp, c.Width, c.Height); err != nil {
		return nil, fmt.Errorf("%s: %w", genclient.PhaseFrom(ctx), err)
	}
	return resp.Data, nil
}

func (s *Service) Document(ctx context.Context, docID string) (*layerir.Document, error) {
	return s.docs.Get(ctx, docID)
}

func (s *Service) Documents(ctx context.Context) ([]string, error) {
	return s.docs.List(ctx)
}

// Patch regenerates one object layer.
func (s *Service) Patch(ctx context.Context, docID string, req patch.Request) (*patch.Workflow, error) {
	return s.patches.Session(docID).Patch(ctx, req)
}

// UpdateLayer applies a field patch through the layer's editable list and
// appends a version.
func (s *Service) UpdateLayer(ctx context.Context, docID, layerID string, fields layerir.FieldPatch, notes string) (*layerir.Document, error) {
	if strings.TrimSpace(notes) == "" {
		notes = fmt.Sprintf("Edit %s: %s", layerID, strings.Join(fields.Keys(), ", "))
	}
	return s.patches.Session(docID).Apply(ctx, notes, func(doc *layerir.Document) (*layerir.Document, error) {
		return layerir.UpdateLayer(doc, layerID, fields)
	})
}

// Subscribe streams workflow and commit events for docID until ctx ends.
func (s *Service) Subscribe(ctx context.Context, docID string) <-chan patch.Event {
	return s.patches.Subscribe(ctx, docID)
}

// Preview downsamples the current beauty render to size pixels, or to the
// document's target size when size is zero.
func (s *Service) Preview(ctx context.Context, docID string, size int) ([]byte, error) {
	const op = "studio.Preview"
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = doc.Canvas.TargetSize
	}
	if size > doc.Canvas.Width {
		return nil, apperr.Validation(op, []string{fmt.Sprintf("preview size %d exceeds the render size %d", size, doc.Canvas.Width)})
	}
	data, err := s.assets.Get(ctx, docID, doc.Assets.BeautyPNG)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return nil, apperr.NotFound(op, "beauty render %s of %s", doc.Assets.BeautyPNG, docID)
		}
		return nil, err
	}
	img, err := segmentation.DecodePNG(data)
	if err != nil {
		return nil, err
	}
	return segmentation.EncodePNG(imaging.Resize(img, size, size, imaging.Lanczos))
}

// upstream reports a collaborator failure, keeping errors that already
// carry a kind.
func upstream(op, provider string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Upstream(op, provider, err)
}
