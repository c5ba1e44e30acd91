package studio

import (
	"context"
	"errors"
	"fmt"

	"iconstudio/internal/apperr"
	"iconstudio/internal/assets"
	"iconstudio/internal/layerir"
)

// AssetLinks points at a document's stored artifacts. A link is empty when
// the asset store cannot presign; callers then serve the bytes through Asset.
type AssetLinks struct {
	Beauty string `json:"beauty"`
	Seg    string `json:"seg"`
	// Masks is keyed by layer id.
	Masks map[string]string `json:"masks"`
	Files []string          `json:"files"`
}

// Assets resolves links for the beauty render, the segmentation render and
// every object mask of docID, plus the paths the store holds for it.
func (s *Service) Assets(ctx context.Context, docID string) (*AssetLinks, error) {
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	files, err := s.assets.List(ctx, doc.DocID)
	if err != nil {
		return nil, upstream("studio.Assets", "assets", err)
	}
	if files == nil {
		files = []string{}
	}
	out := &AssetLinks{Masks: make(map[string]string), Files: files}
	if out.Beauty, err = s.link(ctx, doc.DocID, doc.Assets.BeautyPNG); err != nil {
		return nil, err
	}
	if out.Seg, err = s.link(ctx, doc.DocID, doc.Assets.SegPNG); err != nil {
		return nil, err
	}
	for _, l := range doc.Layers {
		obj, ok := l.(layerir.ObjectGroupLayer)
		if !ok {
			continue
		}
		if out.Masks[obj.ID], err = s.link(ctx, doc.DocID, obj.MaskRef); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Service) link(ctx context.Context, docID, path string) (string, error) {
	u, err := s.assets.GetURL(ctx, docID, path)
	if err != nil {
		return "", upstream("studio.Assets", "assets", fmt.Errorf("%s: %w", path, err))
	}
	return u, nil
}

// Asset returns the bytes of one artifact the document references. Paths the
// document does not name are reported as missing.
func (s *Service) Asset(ctx context.Context, docID, path string) ([]byte, error) {
	const op = "studio.Asset"
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !references(doc, path) {
		return nil, apperr.NotFound(op, "asset %s of %s", path, docID)
	}
	data, err := s.assets.Get(ctx, doc.DocID, path)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return nil, apperr.NotFound(op, "asset %s of %s", path, docID)
		}
		return nil, upstream(op, "assets", err)
	}
	return data, nil
}

func references(doc *layerir.Document, path string) bool {
	if path == "" {
		return false
	}
	if path == doc.Assets.BeautyPNG || path == doc.Assets.SegPNG {
		return true
	}
	for _, l := range doc.Layers {
		if obj, ok := l.(layerir.ObjectGroupLayer); ok && obj.MaskRef == path {
			return true
		}
	}
	return false
}
