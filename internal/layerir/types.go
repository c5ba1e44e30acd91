package layerir

import (
	"encoding/json"
	"fmt"
	"sort"

	"iconstudio/internal/canvas"
)

// Schema is the only document version this package reads or writes.
const Schema = "icon-studio/layer-ir/v1"

// Kind discriminates the layer variants.
type Kind string

const (
	KindBackground  Kind = "background"
	KindObjectGroup Kind = "object_group"
	KindText        Kind = "text"
)

// Layer is the closed union of BackgroundLayer, ObjectGroupLayer and
// TextLayer. Consumers switch on the concrete type.
type Layer interface {
	LayerID() string
	Kind() Kind
	Z() int
	EditableFields() []string

	clone() Layer
}

type BackgroundSource string

const (
	SourceTransparent BackgroundSource = "transparent"
	SourceSolid       BackgroundSource = "solid"
	SourceImage       BackgroundSource = "image"
)

type BackgroundProps struct {
	Color string `json:"color"`
}

type BackgroundLayer struct {
	ID       string           `json:"id"`
	ZIndex   int              `json:"zIndex"`
	Source   BackgroundSource `json:"source"`
	Editable []string         `json:"editable,omitempty"`
	Props    BackgroundProps  `json:"props"`
}

type Transform struct {
	TX     float64 `json:"tx"`
	TY     float64 `json:"ty"`
	SX     float64 `json:"sx"`
	SY     float64 `json:"sy"`
	RotDeg float64 `json:"rotDeg"`
}

// IdentityTransform leaves a layer where it was rendered.
func IdentityTransform() Transform {
	return Transform{SX: 1, SY: 1}
}

type Style struct {
	Tint    string  `json:"tint"`
	Opacity float64 `json:"opacity"`
}

type ObjectGroupLayer struct {
	ID     string   `json:"id"`
	ZIndex int      `json:"zIndex"`
	Members []string `json:"members,omitempty"`
	// MaskRef references a mask asset owned by the external asset store.
	MaskRef   string      `json:"maskRef"`
	BBox      canvas.Rect `json:"bbox"`
	Transform Transform   `json:"transform"`
	Style     Style       `json:"style"`
	// Label is the semantic description used in regional prompts.
	Label    string   `json:"label,omitempty"`
	SegColor string   `json:"segColor,omitempty"`
	Editable []string `json:"editable,omitempty"`
}

type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

type TextProps struct {
	Content    string `json:"content"`
	FontFamily string `json:"fontFamily"`
	FontWeight int    `json:"fontWeight,omitempty"`
	FontSizePx int    `json:"fontSizePx"`
	Color      string `json:"color"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Align      Align  `json:"align"`
}

type TextLayer struct {
	ID       string    `json:"id"`
	ZIndex   int       `json:"zIndex"`
	Editable []string  `json:"editable,omitempty"`
	Props    TextProps `json:"props"`
}

func (l BackgroundLayer) LayerID() string          { return l.ID }
func (l BackgroundLayer) Kind() Kind               { return KindBackground }
func (l BackgroundLayer) Z() int                   { return l.ZIndex }
func (l BackgroundLayer) EditableFields() []string { return l.Editable }

func (l ObjectGroupLayer) LayerID() string          { return l.ID }
func (l ObjectGroupLayer) Kind() Kind               { return KindObjectGroup }
func (l ObjectGroupLayer) Z() int                   { return l.ZIndex }
func (l ObjectGroupLayer) EditableFields() []string { return l.Editable }

func (l TextLayer) LayerID() string          { return l.ID }
func (l TextLayer) Kind() Kind               { return KindText }
func (l TextLayer) Z() int                   { return l.ZIndex }
func (l TextLayer) EditableFields() []string { return l.Editable }

func (l BackgroundLayer) clone() Layer {
	l.Editable = cloneStrings(l.Editable)
	return l
}

func (l ObjectGroupLayer) clone() Layer {
	l.Members = cloneStrings(l.Members)
	l.Editable = cloneStrings(l.Editable)
	return l
}

func (l TextLayer) clone() Layer {
	l.Editable = cloneStrings(l.Editable)
	return l
}

func (l BackgroundLayer) MarshalJSON() ([]byte, error) {
	type alias BackgroundLayer
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindBackground, alias(l)})
}

func (l ObjectGroupLayer) MarshalJSON() ([]byte, error) {
	type alias ObjectGroupLayer
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindObjectGroup, alias(l)})
}

func (l TextLayer) MarshalJSON() ([]byte, error) {
	type alias TextLayer
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindText, alias(l)})
}

// Layers is ordered bottom to top.
type Layers []Layer

func (ls *Layers) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Layers, 0, len(raws))
	for i, raw := range raws {
		var tag struct {
			Type Kind `json:"type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return fmt.Errorf("layers[%d]: %w", i, err)
		}
		var l Layer
		switch tag.Type {
		case KindBackground:
			var v BackgroundLayer
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("layers[%d]: %w", i, err)
			}
			l = v
		case KindObjectGroup:
			var v ObjectGroupLayer
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("layers[%d]: %w", i, err)
			}
			l = v
		case KindText:
			var v TextLayer
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("layers[%d]: %w", i, err)
			}
			l = v
		default:
			return fmt.Errorf("layers[%d]: unknown layer type %q", i, tag.Type)
		}
		out = append(out, l)
	}
	*ls = out
	return nil
}

// sortLayers orders by zIndex; ties keep insertion order.
func sortLayers(ls Layers) {
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].Z() < ls[j].Z() })
}

// Assets holds references into the external asset store, never pixel data.
type Assets struct {
	BeautyPNG string `json:"beautyPng"`
	SegPNG    string `json:"segPng"`
	MaskDir   string `json:"maskDir"`
}

type Palette struct {
	BrandColors   []string `json:"brandColors"`
	SegColors     []string `json:"segColors"`
	SegBackground string   `json:"segBackground"`
}

type Version struct {
	VersionID string `json:"versionId"`
	CreatedAt string `json:"createdAt"`
	Notes     string `json:"notes"`
}

type History struct {
	Versions []Version `json:"versions"`
}

// Document is the Layer IR. Values are treated as immutable: every mutator
// returns a new *Document and leaves its input untouched.
type Document struct {
	Schema  string        `json:"schema"`
	DocID   string        `json:"docId"`
	Brief   string        `json:"brief,omitempty"`
	Canvas  canvas.Config `json:"canvas"`
	Assets  Assets        `json:"assets"`
	Palette Palette       `json:"palette"`
	Layers  Layers        `json:"layers"`
	History History       `json:"history"`
}

// Head is the latest version entry.
func (d *Document) Head() Version {
	if d == nil || len(d.History.Versions) == 0 {
		return Version{}
	}
	return d.History.Versions[len(d.History.Versions)-1]
}

// Layer returns the layer with the given id.
func (d *Document) Layer(id string) (Layer, bool) {
	i := d.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return d.Layers[i], true
}

func (d *Document) indexOf(id string) int {
	if d == nil {
		return -1
	}
	for i, l := range d.Layers {
		if l.LayerID() == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Palette.BrandColors = cloneStrings(d.Palette.BrandColors)
	out.Palette.SegColors = cloneStrings(d.Palette.SegColors)
	if d.Layers != nil {
		out.Layers = make(Layers, len(d.Layers))
		for i, l := range d.Layers {
			out.Layers[i] = l.clone()
		}
	}
	if d.History.Versions != nil {
		out.History.Versions = append([]Version(nil), d.History.Versions...)
	}
	return &out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
