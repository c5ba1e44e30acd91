package layerir

import (
	"fmt"
	"strings"

	"iconstudio/internal/apperr"
	"iconstudio/internal/segmentation"
)

// Validate checks every document invariant and reports all violations as a
// single validation error.
func Validate(doc *Document) error {
	if v := Violations(doc); len(v) > 0 {
		return apperr.Validation("layerir.Validate", v)
	}
	return nil
}

// Violations lists each failing invariant with enough context to act on.
func Violations(doc *Document) []string {
	if doc == nil {
		return []string{"document is nil"}
	}
	var out []string
	add := func(format string, args ...any) {
		out = append(out, fmt.Sprintf(format, args...))
	}

	if doc.Schema != Schema {
		add("schema %q is not supported (want %q)", doc.Schema, Schema)
	}
	if strings.TrimSpace(doc.DocID) == "" {
		add("docId is empty")
	}
	out = append(out, doc.Canvas.Violations()...)

	if strings.TrimSpace(doc.Assets.BeautyPNG) == "" {
		add("assets.beautyPng is empty")
	}
	if strings.TrimSpace(doc.Assets.SegPNG) == "" {
		add("assets.segPng is empty")
	}
	if strings.TrimSpace(doc.Assets.MaskDir) == "" {
		add("assets.maskDir is empty")
	}

	if segmentation.Color(doc.Palette.SegBackground) != segmentation.Background {
		add("palette.segBackground must be %s, got %q", segmentation.Background, doc.Palette.SegBackground)
	}
	if !equalPalette(doc.Palette.SegColors) {
		add("palette.segColors must equal the fixed segmentation palette")
	}
	for i, c := range doc.Palette.BrandColors {
		if !segmentation.Color(c).Valid() {
			add("palette.brandColors[%d]: %q is not a hex color", i, c)
		}
	}

	bounds := doc.Canvas.Bounds()
	seen := make(map[string]bool, len(doc.Layers))
	for i, l := range doc.Layers {
		if l == nil {
			add("layers[%d]: nil layer", i)
			continue
		}
		id := l.LayerID()
		where := fmt.Sprintf("layers[%d] %q", i, id)
		if strings.TrimSpace(id) == "" {
			add("layers[%d]: id is empty", i)
		} else if seen[id] {
			add("%s: duplicate id", where)
		}
		seen[id] = true
		if i > 0 && doc.Layers[i-1] != nil && doc.Layers[i-1].Z() > l.Z() {
			add("%s: zIndex %d is below the previous layer's %d", where, l.Z(), doc.Layers[i-1].Z())
		}
		vocab := fieldVocabulary[l.Kind()]
		for _, f := range l.EditableFields() {
			if !vocab[f] {
				add("%s: editable field %q is not a %s field", where, f, l.Kind())
			}
		}

		switch v := l.(type) {
		case BackgroundLayer:
			switch v.Source {
			case SourceTransparent, SourceSolid, SourceImage:
			default:
				add("%s: unknown background source %q", where, v.Source)
			}
			if v.Props.Color != "" && !segmentation.Color(v.Props.Color).Valid() {
				add("%s: color %q is not a hex color", where, v.Props.Color)
			}
		case ObjectGroupLayer:
			if v.BBox.Empty() {
				add("%s: bbox %v is empty", where, v.BBox)
			} else if !v.BBox.Within(bounds) {
				add("%s: bbox %v is outside canvas %v", where, v.BBox, bounds)
			}
			if strings.TrimSpace(v.MaskRef) == "" {
				add("%s: maskRef is empty", where)
			}
			if v.Style.Opacity < 0 || v.Style.Opacity > 1 {
				add("%s: opacity %v must be in [0, 1]", where, v.Style.Opacity)
			}
			if v.Style.Tint != "" && !segmentation.Color(v.Style.Tint).Valid() {
				add("%s: tint %q is not a hex color", where, v.Style.Tint)
			}
			if v.Transform.SX == 0 || v.Transform.SY == 0 {
				add("%s: transform scale must be non-zero", where)
			}
		case TextLayer:
			if v.Props.FontSizePx <= 0 {
				add("%s: fontSizePx must be positive", where)
			}
			switch v.Props.Align {
			case AlignLeft, AlignCenter, AlignRight:
			default:
				add("%s: unknown align %q", where, v.Props.Align)
			}
			if !segmentation.Color(v.Props.Color).Valid() {
				add("%s: color %q is not a hex color", where, v.Props.Color)
			}
			if v.Props.X < 0 || v.Props.Y < 0 || v.Props.X > bounds.W || v.Props.Y > bounds.H {
				add("%s: position (%d, %d) is outside the canvas", where, v.Props.X, v.Props.Y)
			}
		default:
			add("%s: unknown layer type %T", where, l)
		}
	}

	if len(doc.History.Versions) == 0 {
		add("history has no versions")
	}
	versions := make(map[string]bool, len(doc.History.Versions))
	for i, v := range doc.History.Versions {
		if strings.TrimSpace(v.VersionID) == "" {
			add("history.versions[%d]: versionId is empty", i)
		} else if versions[v.VersionID] {
			add("history.versions[%d]: duplicate versionId %q", i, v.VersionID)
		}
		versions[v.VersionID] = true
	}
	return out
}

func equalPalette(cols []string) bool {
	if len(cols) != len(segmentation.Palette) {
		return false
	}
	for i, c := range cols {
		if segmentation.Normalize(segmentation.Color(c)) != segmentation.Palette[i] {
			return false
		}
	}
	return true
}
