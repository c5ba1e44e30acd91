package layerir

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FieldPatch maps an editable field name to its new JSON value.
type FieldPatch map[string]json.RawMessage

// Keys returns the patch's field names, sorted.
func (p FieldPatch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fieldVocabulary is the per-variant capability table: the only field names a
// layer of that kind may list as editable. The three vocabularies are
// disjoint in meaning even where names coincide.
var fieldVocabulary = map[Kind]map[string]bool{
	KindBackground: {
		"source":  true,
		"bgColor": true,
		// color is the older name of bgColor
		"color": true,
	},
	KindObjectGroup: {
		"bbox":      true,
		"transform": true,
		"style":     true,
		"members":   true,
		"label":     true,
		"maskRef":   true,
	},
	KindText: {
		"content":  true,
		"font":     true,
		"size":     true,
		"color":    true,
		"position": true,
		"align":    true,
	},
}

// DefaultEditable is the editable list stamped on newly created layers.
func DefaultEditable(kind Kind) []string {
	switch kind {
	case KindBackground:
		return []string{"bgColor"}
	case KindObjectGroup:
		return []string{"transform", "style"}
	case KindText:
		return []string{"content", "font", "size", "color", "position"}
	default:
		return nil
	}
}

// Vocabulary returns the field names a layer kind may expose, sorted.
func Vocabulary(kind Kind) []string {
	out := make([]string, 0, len(fieldVocabulary[kind]))
	for f := range fieldVocabulary[kind] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// checkPatch lists every patch key the layer does not allow.
func checkPatch(l Layer, patch FieldPatch) []string {
	allowed := make(map[string]bool, len(l.EditableFields()))
	for _, f := range l.EditableFields() {
		allowed[f] = true
	}
	vocab := fieldVocabulary[l.Kind()]
	var out []string
	for _, k := range patch.Keys() {
		switch {
		case !vocab[k]:
			out = append(out, fmt.Sprintf("layer %q: %q is not a %s field", l.LayerID(), k, l.Kind()))
		case !allowed[k]:
			out = append(out, fmt.Sprintf("layer %q: field %q is not editable", l.LayerID(), k))
		}
	}
	return out
}

// applyPatch returns a copy of l with patch applied. Fields are decoded over
// their current values, so partial objects only touch the keys they carry.
func applyPatch(l Layer, patch FieldPatch) (Layer, error) {
	switch v := l.clone().(type) {
	case BackgroundLayer:
		for _, k := range patch.Keys() {
			var err error
			switch k {
			case "source":
				err = json.Unmarshal(patch[k], &v.Source)
			case "bgColor", "color":
				err = json.Unmarshal(patch[k], &v.Props.Color)
			}
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
		}
		return v, nil
	case ObjectGroupLayer:
		for _, k := range patch.Keys() {
			var err error
			switch k {
			case "bbox":
				err = json.Unmarshal(patch[k], &v.BBox)
			case "transform":
				err = json.Unmarshal(patch[k], &v.Transform)
			case "style":
				err = json.Unmarshal(patch[k], &v.Style)
			case "members":
				v.Members = nil
				err = json.Unmarshal(patch[k], &v.Members)
			case "label":
				err = json.Unmarshal(patch[k], &v.Label)
			case "maskRef":
				err = json.Unmarshal(patch[k], &v.MaskRef)
			}
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
		}
		return v, nil
	case TextLayer:
		for _, k := range patch.Keys() {
			var err error
			switch k {
			case "content":
				err = json.Unmarshal(patch[k], &v.Props.Content)
			case "font":
				var font struct {
					FontFamily *string `json:"fontFamily"`
					FontWeight *int    `json:"fontWeight"`
				}
				if err = json.Unmarshal(patch[k], &font); err == nil {
					if font.FontFamily != nil {
						v.Props.FontFamily = *font.FontFamily
					}
					if font.FontWeight != nil {
						v.Props.FontWeight = *font.FontWeight
					}
				}
			case "size":
				err = json.Unmarshal(patch[k], &v.Props.FontSizePx)
			case "color":
				err = json.Unmarshal(patch[k], &v.Props.Color)
			case "position":
				var pos struct {
					X *int `json:"x"`
					Y *int `json:"y"`
				}
				if err = json.Unmarshal(patch[k], &pos); err == nil {
					if pos.X != nil {
						v.Props.X = *pos.X
					}
					if pos.Y != nil {
						v.Props.Y = *pos.Y
					}
				}
			case "align":
				err = json.Unmarshal(patch[k], &v.Props.Align)
			}
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown layer type %T", l)
	}
}
