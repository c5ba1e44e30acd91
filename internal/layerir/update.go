package layerir

import (
	"fmt"

	"iconstudio/internal/apperr"
	"iconstudio/internal/canvas"
)

// UpdateLayer applies patch to one layer. Every key must be listed in the
// layer's editable set; on any rejection the input document is returned
// unchanged together with the error.
func UpdateLayer(doc *Document, layerID string, patch FieldPatch) (*Document, error) {
	const op = "layerir.UpdateLayer"
	i := doc.indexOf(layerID)
	if i < 0 {
		return doc, apperr.NotFound(op, "layer %q not found", layerID)
	}
	if len(patch) == 0 {
		return doc, apperr.Validation(op, []string{"field patch is empty"})
	}
	if v := checkPatch(doc.Layers[i], patch); len(v) > 0 {
		return doc, apperr.Validation(op, v)
	}
	next, err := applyPatch(doc.Layers[i], patch)
	if err != nil {
		return doc, apperr.Validation(op, []string{fmt.Sprintf("layer %q: %v", layerID, err)})
	}
	out := doc.Clone()
	out.Layers[i] = next
	if err := Validate(out); err != nil {
		return doc, err
	}
	return out, nil
}

// Regenerate replaces the content of an object_group layer after a patch
// render: its mask reference and bounding box. These two fields describe
// pixels owned by the regeneration and are not gated by the editable list.
func Regenerate(doc *Document, layerID, maskRef string, bbox canvas.Rect) (*Document, error) {
	const op = "layerir.Regenerate"
	i := doc.indexOf(layerID)
	if i < 0 {
		return doc, apperr.NotFound(op, "layer %q not found", layerID)
	}
	obj, ok := doc.Layers[i].(ObjectGroupLayer)
	if !ok {
		return doc, apperr.Validation(op, []string{fmt.Sprintf("layer %q is %s, only object_group layers can be regenerated", layerID, doc.Layers[i].Kind())})
	}
	next := obj.clone().(ObjectGroupLayer)
	next.MaskRef = maskRef
	next.BBox = bbox
	out := doc.Clone()
	out.Layers[i] = next
	if err := Validate(out); err != nil {
		return doc, err
	}
	return out, nil
}
