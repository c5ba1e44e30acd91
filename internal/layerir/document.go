package layerir

import (
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"iconstudio/internal/apperr"
	"iconstudio/internal/canvas"
	"iconstudio/internal/segmentation"
)

const (
	DefaultBeautyPNG  = "assets/beauty.png"
	DefaultSegPNG     = "assets/seg.png"
	DefaultMaskDir    = "assets/masks/"
	DefaultBrandColor = "#0F172A"

	backgroundID = "bg"
	textZIndex   = 100
	objectZStep  = 10
)

// ObjectSpec describes one decoded object to be lifted into an object_group
// layer. Specs are passed bottom to top.
type ObjectSpec struct {
	MaskRef  string
	BBox     canvas.Rect
	SegColor string
	Label    string
}

type createOptions struct {
	docID  string
	brief  string
	assets Assets
	text   *TextProps
	notes  string
	now    func() time.Time
}

// CreateOption customizes CreateDocument.
type CreateOption func(*createOptions)

func WithDocID(id string) CreateOption    { return func(o *createOptions) { o.docID = id } }
func WithBrief(brief string) CreateOption { return func(o *createOptions) { o.brief = brief } }
func WithAssets(a Assets) CreateOption    { return func(o *createOptions) { o.assets = a } }
func WithNotes(notes string) CreateOption { return func(o *createOptions) { o.notes = notes } }
func WithClock(now func() time.Time) CreateOption {
	return func(o *createOptions) { o.now = now }
}

// WithText adds a text layer on top of every object.
func WithText(p TextProps) CreateOption {
	return func(o *createOptions) { o.text = &p }
}

// DefaultText is the caption layer the studio offers for new icons.
func DefaultText(c canvas.Config, content string) TextProps {
	return TextProps{
		Content:    content,
		FontFamily: "Inter",
		FontWeight: 600,
		FontSizePx: 72,
		Color:      "#111827",
		X:          c.Width / 2,
		Y:          c.Height * 900 / 1024,
		Align:      AlignCenter,
	}
}

// DefaultPalette returns the palette for the given brand colors.
func DefaultPalette(brand ...string) Palette {
	if len(brand) == 0 {
		brand = []string{DefaultBrandColor}
	}
	seg := make([]string, 0, len(segmentation.Palette))
	for _, c := range segmentation.Palette {
		seg = append(seg, string(c))
	}
	return Palette{
		BrandColors:   cloneStrings(brand),
		SegColors:     seg,
		SegBackground: string(segmentation.Background),
	}
}

// CreateDocument builds a fresh document: the background at zIndex 0, one
// object_group per ObjectSpec stacked above it in the order given, an optional text
// layer, and a single initial history entry.
func CreateDocument(c canvas.Config, p Palette, objects []ObjectSpec, opts ...CreateOption) (*Document, error) {
	o := createOptions{
		assets: Assets{BeautyPNG: DefaultBeautyPNG, SegPNG: DefaultSegPNG, MaskDir: DefaultMaskDir},
		notes:  "Initial",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.docID == "" {
		o.docID = uuid.NewString()
	}

	source := SourceTransparent
	if c.BackgroundMode == canvas.BackgroundSolid {
		source = SourceSolid
	}
	layers := Layers{BackgroundLayer{
		ID:       backgroundID,
		ZIndex:   0,
		Source:   source,
		Editable: DefaultEditable(KindBackground),
		Props:    BackgroundProps{Color: c.BackgroundColor},
	}}
	for i, spec := range objects {
		layers = append(layers, ObjectGroupLayer{
			ID:        fmt.Sprintf("obj_%d", i+1),
			ZIndex:    objectZStep * (i + 1),
			MaskRef:   spec.MaskRef,
			BBox:      spec.BBox,
			Transform: IdentityTransform(),
			Style:     Style{Tint: spec.SegColor, Opacity: 1},
			Label:     spec.Label,
			SegColor:  spec.SegColor,
			Editable:  DefaultEditable(KindObjectGroup),
		})
	}
	if o.text != nil {
		z := textZIndex
		if top := objectZStep * len(objects); top >= z {
			z = top + objectZStep
		}
		layers = append(layers, TextLayer{
			ID:       "text_1",
			ZIndex:   z,
			Editable: DefaultEditable(KindText),
			Props:    *o.text,
		})
	}

	doc := &Document{
		Schema:  Schema,
		DocID:   o.docID,
		Brief:   o.brief,
		Canvas:  c,
		Assets:  o.assets,
		Palette: p,
		Layers:  layers,
		History: History{Versions: []Version{{
			VersionID: "v1",
			CreatedAt: o.now().UTC().Format(time.RFC3339),
			Notes:     o.notes,
		}}},
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MaskRef is the asset path for a layer's mask under the document's mask dir.
func MaskRef(a Assets, layerID, rev string) string {
	name := layerID + ".png"
	if rev != "" {
		name = layerID + "-" + rev + ".png"
	}
	return path.Join(a.MaskDir, name)
}

// AppendVersion returns a copy of doc with one more history entry. Version ids
// are v1, v2, ... in append order.
func AppendVersion(doc *Document, notes string, now time.Time) *Document {
	out := doc.Clone()
	out.History.Versions = append(out.History.Versions, Version{
		VersionID: fmt.Sprintf("v%d", len(doc.History.Versions)+1),
		CreatedAt: now.UTC().Format(time.RFC3339),
		Notes:     notes,
	})
	return out
}

// InsertLayer returns a copy of doc with l placed by its zIndex, after any
// existing layers with the same zIndex.
func InsertLayer(doc *Document, l Layer) (*Document, error) {
	if l == nil {
		return doc, apperr.Validation("layerir.InsertLayer", []string{"layer is nil"})
	}
	if _, exists := doc.Layer(l.LayerID()); exists {
		return doc, apperr.Validation("layerir.InsertLayer", []string{fmt.Sprintf("layer %q already exists", l.LayerID())})
	}
	out := doc.Clone()
	out.Layers = append(out.Layers, l.clone())
	sortLayers(out.Layers)
	if err := Validate(out); err != nil {
		return doc, err
	}
	return out, nil
}

// ReplaceAssets returns a copy of doc pointing at new top-level assets.
func ReplaceAssets(doc *Document, a Assets) (*Document, error) {
	out := doc.Clone()
	out.Assets = a
	if err := Validate(out); err != nil {
		return doc, err
	}
	return out, nil
}
