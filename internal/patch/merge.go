package patch

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"iconstudio/internal/apperr"
	"iconstudio/internal/canvas"
	"iconstudio/internal/layerir"
	"iconstudio/internal/segmentation"
)

// merge builds the next document from cur: a new mask asset for the target
// layer, the beauty render with the patch composited in, the segmentation
// render rebuilt from every layer mask, and one more history entry. New
// assets are written under fresh paths so a failed save leaves the current
// document's assets intact.
func (s *Session) merge(ctx context.Context, cur *layerir.Document, w *Workflow) (*layerir.Document, error) {
	const op = "patch.Merge"
	l, ok := cur.Layer(w.LayerID)
	if !ok {
		return nil, apperr.NotFound(op, "layer %q was removed", w.LayerID)
	}
	target, ok := l.(layerir.ObjectGroupLayer)
	if !ok {
		return nil, apperr.WorkflowState(op, "layer %q is no longer an object_group layer", w.LayerID)
	}

	w.mu.Lock()
	patchImg, local := w.beauty, w.mask
	w.mu.Unlock()
	if patchImg == nil || local == nil {
		return nil, apperr.WorkflowState(op, "workflow %s has no rendered patch", w.ID)
	}
	pb := patchImg.Bounds()
	if pb.Dx() != w.Rect.W || pb.Dy() != w.Rect.H || local.Mask.Bounds().Dx() != w.Rect.W || local.Mask.Bounds().Dy() != w.Rect.H {
		return nil, apperr.Upstream(op, s.m.gen.Name(), fmt.Errorf("patch is %dx%d, want %dx%d", pb.Dx(), pb.Dy(), w.Rect.W, w.Rect.H))
	}

	width, height := cur.Canvas.Width, cur.Canvas.Height
	offset := image.Pt(w.Rect.X, w.Rect.Y)
	layers, err := s.objectMasks(ctx, cur, w.LayerID)
	if err != nil {
		return nil, err
	}
	// the patch may only claim pixels no other object layer owns
	mask, bbox := clipMask(segmentation.Place(local.Mask, width, height, offset), layers)
	if bbox.Empty() {
		return nil, apperr.SegmentationDecode(op, "patch for %q covers only pixels owned by other layers", w.LayerID)
	}
	rev := newRev()

	maskRef := layerir.MaskRef(cur.Assets, w.LayerID, rev)
	if err := s.putPNG(ctx, cur.DocID, maskRef, mask); err != nil {
		return nil, err
	}

	oldMask, err := s.loadMask(ctx, cur.DocID, target.MaskRef, width, height)
	if err != nil {
		return nil, err
	}
	beautyData, err := s.m.assets.Get(ctx, cur.DocID, cur.Assets.BeautyPNG)
	if err != nil {
		return nil, fmt.Errorf("load beauty render %s: %w", cur.Assets.BeautyPNG, err)
	}
	beauty, err := segmentation.DecodePNG(beautyData)
	if err != nil {
		return nil, fmt.Errorf("decode beauty render %s: %w", cur.Assets.BeautyPNG, err)
	}
	composited := composite(beauty, oldMask, patchImg, mask, offset)
	beautyRef := revPath(cur.Assets.BeautyPNG, rev)
	if err := s.putPNG(ctx, cur.DocID, beautyRef, composited); err != nil {
		return nil, err
	}

	seg := renderSegmentation(cur, layers, w.LayerID, mask)
	segRef := revPath(cur.Assets.SegPNG, rev)
	if err := s.putPNG(ctx, cur.DocID, segRef, seg); err != nil {
		return nil, err
	}

	next, err := layerir.Regenerate(cur, w.LayerID, maskRef, bbox)
	if err != nil {
		return nil, err
	}
	a := next.Assets
	a.BeautyPNG, a.SegPNG = beautyRef, segRef
	if next, err = layerir.ReplaceAssets(next, a); err != nil {
		return nil, err
	}
	return layerir.AppendVersion(next, fmt.Sprintf("Patch %s: %s", w.LayerID, w.Change), s.m.cfg.Now()), nil
}

// composite clears the layer's previous pixels from the beauty render and
// draws the patch through mask, which is in canvas coordinates.
func composite(beauty image.Image, oldMask *image.Alpha, patch image.Image, mask *image.Alpha, offset image.Point) *image.NRGBA {
	base := imaging.Clone(beauty)
	draw.DrawMask(base, base.Bounds(), image.Transparent, image.Point{}, oldMask, image.Point{}, draw.Src)

	cut := image.NewNRGBA(image.Rect(0, 0, patch.Bounds().Dx(), patch.Bounds().Dy()))
	draw.DrawMask(cut, cut.Bounds(), patch, patch.Bounds().Min, mask, offset, draw.Src)
	return imaging.Overlay(base, cut, offset, 1.0)
}

type layerMask struct {
	id    string
	color segmentation.Color
	// mask is nil for the layer being patched.
	mask *image.Alpha
}

// objectMasks loads every object layer's mask in z order, except the one
// being patched.
func (s *Session) objectMasks(ctx context.Context, doc *layerir.Document, layerID string) ([]layerMask, error) {
	var out []layerMask
	for _, l := range doc.Layers {
		obj, ok := l.(layerir.ObjectGroupLayer)
		if !ok {
			continue
		}
		col := segmentation.Normalize(segmentation.Color(obj.SegColor))
		if !col.Valid() {
			col = segmentation.Normalize(segmentation.Color(obj.Style.Tint))
		}
		lm := layerMask{id: obj.ID, color: col}
		if obj.ID != layerID {
			m, err := s.loadMask(ctx, doc.DocID, obj.MaskRef, doc.Canvas.Width, doc.Canvas.Height)
			if err != nil {
				return nil, err
			}
			lm.mask = m
		}
		out = append(out, lm)
	}
	return out, nil
}

// clipMask keeps the pixels of m that no other layer's mask covers and
// returns them with their tight bounds.
func clipMask(m *image.Alpha, layers []layerMask) (*image.Alpha, canvas.Rect) {
	b := m.Bounds()
	out := image.NewAlpha(b)
	tight := image.Rectangle{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.AlphaAt(x, y).A < 0x80 || owned(layers, x, y) {
				continue
			}
			out.SetAlpha(x, y, color.Alpha{A: 0xff})
			tight = tight.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	return out, canvas.FromImage(tight)
}

func owned(layers []layerMask, x, y int) bool {
	for _, l := range layers {
		if l.mask != nil && l.mask.AlphaAt(x, y).A >= 0x80 {
			return true
		}
	}
	return false
}

// renderSegmentation re-encodes every object layer's mask in z order, with
// the target layer's mask replaced.
func renderSegmentation(doc *layerir.Document, layers []layerMask, layerID string, mask *image.Alpha) *image.NRGBA {
	objs := make([]segmentation.Object, 0, len(layers))
	for _, l := range layers {
		m := l.mask
		if l.id == layerID {
			m = mask
		}
		objs = append(objs, segmentation.Object{Color: l.color, Mask: m})
	}
	return segmentation.Render(doc.Canvas.Width, doc.Canvas.Height, objs)
}

func (s *Session) loadMask(ctx context.Context, docID, ref string, width, height int) (*image.Alpha, error) {
	data, err := s.m.assets.Get(ctx, docID, ref)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", ref, err)
	}
	m, err := segmentation.DecodeMask(data)
	if err != nil {
		return nil, fmt.Errorf("decode mask %s: %w", ref, err)
	}
	if b := m.Bounds(); b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("mask %s is %dx%d, want %dx%d", ref, b.Dx(), b.Dy(), width, height)
	}
	return m, nil
}

func (s *Session) putPNG(ctx context.Context, docID, ref string, img image.Image) error {
	data, err := segmentation.EncodePNG(img)
	if err != nil {
		return err
	}
	if err := s.m.assets.Put(ctx, docID, ref, data); err != nil {
		return fmt.Errorf("store %s: %w", ref, err)
	}
	return nil
}

// revPath turns "assets/beauty.png" into "assets/beauty-<rev>.png", dropping
// any earlier revision suffix.
func revPath(p, rev string) string {
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	if i := strings.LastIndex(stem, "-"); i >= 0 && isRev(stem[i+1:]) {
		stem = stem[:i]
	}
	return stem + "-" + rev + ext
}

const revLen = 12

func newRev() string {
	return "r" + strings.ReplaceAll(uuid.NewString(), "-", "")[:revLen]
}

func isRev(s string) bool {
	if len(s) != revLen+1 || s[0] != 'r' {
		return false
	}
	for _, c := range s[1:] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
