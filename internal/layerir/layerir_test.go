package layerir

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconstudio/internal/apperr"
	"iconstudio/internal/canvas"
)

var fixedClock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func newDoc(t *testing.T, opts ...CreateOption) *Document {
	t.Helper()
	c := canvas.DefaultConfig(24)
	objs := []ObjectSpec{
		{MaskRef: "assets/masks/obj_1.png", BBox: canvas.Rect{X: 100, Y: 100, W: 200, H: 200}, SegColor: "#00FF00", Label: "shield"},
		{MaskRef: "assets/masks/obj_2.png", BBox: canvas.Rect{X: 300, Y: 300, W: 400, H: 400}, SegColor: "#FF0000", Label: "check mark"},
	}
	opts = append([]CreateOption{WithDocID("doc-1"), WithClock(fixedClock), WithBrief("a calm shield")}, opts...)
	doc, err := CreateDocument(c, DefaultPalette(), objs, opts...)
	require.NoError(t, err)
	return doc
}

func TestCreateDocument(t *testing.T) {
	doc := newDoc(t, WithText(DefaultText(canvas.DefaultConfig(24), "Secure")))

	assert.Equal(t, Schema, doc.Schema)
	assert.Equal(t, "doc-1", doc.DocID)
	require.Len(t, doc.Layers, 4)

	bg, ok := doc.Layers[0].(BackgroundLayer)
	require.True(t, ok)
	assert.Equal(t, "bg", bg.ID)
	assert.Equal(t, 0, bg.ZIndex)
	assert.Equal(t, SourceTransparent, bg.Source)
	assert.Equal(t, []string{"bgColor"}, bg.Editable)

	obj1 := doc.Layers[1].(ObjectGroupLayer)
	obj2 := doc.Layers[2].(ObjectGroupLayer)
	assert.Equal(t, "obj_1", obj1.ID)
	assert.Less(t, obj1.ZIndex, obj2.ZIndex)
	assert.Greater(t, obj1.ZIndex, bg.ZIndex)
	assert.Equal(t, IdentityTransform(), obj1.Transform)
	assert.Equal(t, []string{"transform", "style"}, obj1.Editable)

	text := doc.Layers[3].(TextLayer)
	assert.Equal(t, 100, text.ZIndex)
	assert.Equal(t, 512, text.Props.X)
	assert.Equal(t, 900, text.Props.Y)

	require.Len(t, doc.History.Versions, 1)
	assert.Equal(t, Version{VersionID: "v1", CreatedAt: "2026-03-01T12:00:00Z", Notes: "Initial"}, doc.Head())
}

func TestCreateDocumentRejectsOutOfCanvasBBox(t *testing.T) {
	_, err := CreateDocument(canvas.DefaultConfig(24), DefaultPalette(), []ObjectSpec{
		{MaskRef: "m", BBox: canvas.Rect{X: 900, Y: 900, W: 200, H: 200}},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestValidateReportsEveryViolation(t *testing.T) {
	doc := newDoc(t)
	doc.Schema = "icon-studio/layer-ir/v0"
	obj := doc.Layers[1].(ObjectGroupLayer)
	obj.MaskRef = ""
	obj.Editable = append(obj.Editable, "content")
	doc.Layers[1] = obj
	doc.Layers = append(doc.Layers, BackgroundLayer{ID: "bg", ZIndex: 5, Source: SourceSolid})
	doc.Assets.SegPNG = ""

	v := Violations(doc)
	joined := strings.Join(v, "\n")
	assert.Contains(t, joined, "schema")
	assert.Contains(t, joined, "maskRef is empty")
	assert.Contains(t, joined, `editable field "content" is not a object_group field`)
	assert.Contains(t, joined, "duplicate id")
	assert.Contains(t, joined, "zIndex 5 is below")
	assert.Contains(t, joined, "assets.segPng is empty")

	err := Validate(doc)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, v, ae.Details)
}

func TestLoadRejectsUnsupportedSchema(t *testing.T) {
	doc := newDoc(t)
	data, err := Marshal(doc)
	require.NoError(t, err)

	old := strings.Replace(string(data), Schema, "icon-studio/layer-ir/v0", 1)
	got, err := Load([]byte(old))
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "icon-studio/layer-ir/v0")
}

func TestLoadRejectsUnknownLayerType(t *testing.T) {
	raw := `{"schema":"` + Schema + `","layers":[{"type":"sticker","id":"x"}]}`
	_, err := Load([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sticker")
}

func TestMarshalLoadRoundTrip(t *testing.T) {
	doc := newDoc(t, WithText(DefaultText(canvas.DefaultConfig(24), "Secure")))
	data, err := Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type": "object_group"`)
	assert.Contains(t, string(data), `"bbox": [`)

	got, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestUpdateLayerRejectsNonEditableField(t *testing.T) {
	doc := newDoc(t)
	before := doc.Clone()

	cases := map[string]FieldPatch{
		"outside editable list": {"label": json.RawMessage(`"sword"`)},
		"other variant's field": {"content": json.RawMessage(`"hi"`)},
		"mixed":                 {"style": json.RawMessage(`{"tint":"#123456","opacity":0.5}`), "bbox": json.RawMessage(`[0,0,1,1]`)},
	}
	for name, patch := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := UpdateLayer(doc, "obj_1", patch)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
			assert.Same(t, doc, got)
			assert.Equal(t, before, got)
		})
	}
}

func TestUpdateLayerAppliesEditableFields(t *testing.T) {
	doc := newDoc(t, WithText(DefaultText(canvas.DefaultConfig(24), "Secure")))
	before := doc.Clone()

	got, err := UpdateLayer(doc, "obj_2", FieldPatch{
		"style":     json.RawMessage(`{"tint":"#123456","opacity":0.5}`),
		"transform": json.RawMessage(`{"tx":4,"ty":-2,"sx":1.5,"sy":1.5,"rotDeg":15}`),
	})
	require.NoError(t, err)
	obj := got.Layers[2].(ObjectGroupLayer)
	assert.Equal(t, Style{Tint: "#123456", Opacity: 0.5}, obj.Style)
	assert.Equal(t, Transform{TX: 4, TY: -2, SX: 1.5, SY: 1.5, RotDeg: 15}, obj.Transform)
	assert.Equal(t, before.Layers[2].(ObjectGroupLayer).BBox, obj.BBox)
	assert.Equal(t, before, doc, "input document is untouched")
	assert.Equal(t, before.Layers[1], got.Layers[1])

	got, err = UpdateLayer(got, "text_1", FieldPatch{
		"font":     json.RawMessage(`{"fontWeight":700}`),
		"position": json.RawMessage(`{"y":880}`),
	})
	require.NoError(t, err)
	text := got.Layers[3].(TextLayer)
	assert.Equal(t, "Inter", text.Props.FontFamily)
	assert.Equal(t, 700, text.Props.FontWeight)
	assert.Equal(t, 512, text.Props.X)
	assert.Equal(t, 880, text.Props.Y)
}

func TestUpdateLayerRejectsInvalidResult(t *testing.T) {
	doc := newDoc(t)
	got, err := UpdateLayer(doc, "obj_1", FieldPatch{"style": json.RawMessage(`{"tint":"#123456","opacity":3}`)})
	require.Error(t, err)
	assert.Same(t, doc, got)
	assert.Contains(t, err.Error(), "violation")

	_, err = UpdateLayer(doc, "missing", FieldPatch{"style": json.RawMessage(`{}`)})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRegenerate(t *testing.T) {
	doc := newDoc(t)
	got, err := Regenerate(doc, "obj_1", "assets/masks/obj_1-r2.png", canvas.Rect{X: 90, Y: 95, W: 210, H: 180})
	require.NoError(t, err)
	obj := got.Layers[1].(ObjectGroupLayer)
	assert.Equal(t, "assets/masks/obj_1-r2.png", obj.MaskRef)
	assert.Equal(t, canvas.Rect{X: 90, Y: 95, W: 210, H: 180}, obj.BBox)
	assert.Equal(t, "assets/masks/obj_1.png", doc.Layers[1].(ObjectGroupLayer).MaskRef)

	_, err = Regenerate(doc, "bg", "m", canvas.Rect{W: 1, H: 1})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	same, err := Regenerate(doc, "obj_1", "", canvas.Rect{X: 0, Y: 0, W: 10, H: 10})
	require.Error(t, err)
	assert.Same(t, doc, same)
}

func TestAppendVersionIsAppendOnly(t *testing.T) {
	doc := newDoc(t)
	v2 := AppendVersion(doc, "recolor shield", fixedClock().Add(time.Hour))
	v3 := AppendVersion(v2, "tilt", fixedClock().Add(2*time.Hour))

	assert.Len(t, doc.History.Versions, 1)
	require.Len(t, v3.History.Versions, 3)
	assert.Equal(t, v2.History.Versions, v3.History.Versions[:2])
	assert.Equal(t, "v3", v3.Head().VersionID)
	assert.Equal(t, "tilt", v3.Head().Notes)
	assert.Equal(t, "2026-03-01T14:00:00Z", v3.Head().CreatedAt)
}

func TestInsertLayerKeepsStableOrder(t *testing.T) {
	doc := newDoc(t)
	got, err := InsertLayer(doc, ObjectGroupLayer{
		ID: "obj_extra", ZIndex: 10, MaskRef: "m", BBox: canvas.Rect{X: 1, Y: 1, W: 5, H: 5},
		Transform: IdentityTransform(), Style: Style{Opacity: 1},
	})
	require.NoError(t, err)
	ids := make([]string, 0, len(got.Layers))
	for _, l := range got.Layers {
		ids = append(ids, l.LayerID())
	}
	assert.Equal(t, []string{"bg", "obj_1", "obj_extra", "obj_2"}, ids)

	same, err := InsertLayer(got, BackgroundLayer{ID: "obj_1"})
	require.Error(t, err)
	assert.Same(t, got, same)
}

func TestCloneIsIndependent(t *testing.T) {
	doc := newDoc(t)
	c := doc.Clone()
	c.Palette.BrandColors[0] = "#FFFFFF"
	c.History.Versions[0].Notes = "changed"
	obj := c.Layers[1].(ObjectGroupLayer)
	obj.Editable[0] = "bbox"

	assert.Equal(t, DefaultBrandColor, doc.Palette.BrandColors[0])
	assert.Equal(t, "Initial", doc.History.Versions[0].Notes)
	assert.Equal(t, "transform", doc.Layers[1].(ObjectGroupLayer).Editable[0])
}

func TestVocabulariesCoverDefaults(t *testing.T) {
	for _, k := range []Kind{KindBackground, KindObjectGroup, KindText} {
		vocab := Vocabulary(k)
		for _, f := range DefaultEditable(k) {
			assert.Contains(t, vocab, f, "kind %s", k)
		}
	}
}

const defaultDocumentJSON = `{
  "schema": "icon-studio/layer-ir/v1",
  "docId": "doc-default",
  "canvas": {"width": 1024, "height": 1024, "targetSize": 24, "safeMarginPct": 0.12, "backgroundMode": "transparent", "backgroundColor": "#FFFFFF"},
  "assets": {"beautyPng": "assets/beauty.png", "segPng": "assets/seg.png", "maskDir": "assets/masks/"},
  "palette": {
    "brandColors": ["#0F172A"],
    "segColors": ["#FF0000", "#00FF00", "#0000FF", "#FFFF00", "#FF00FF", "#00FFFF", "#FFA500", "#8000FF"],
    "segBackground": "#000000"
  },
  "layers": [
    {"id": "bg", "type": "background", "zIndex": 0, "source": "transparent", "editable": ["bgColor"], "props": {"color": "#FFFFFF"}},
    {"id": "text_1", "type": "text", "zIndex": 100, "editable": ["content", "font", "size", "color", "position"],
     "props": {"content": "", "fontFamily": "Inter", "fontWeight": 600, "fontSizePx": 72, "color": "#0F172A", "x": 512, "y": 900, "align": "center"}}
  ],
  "history": {"versions": [{"versionId": "v1", "createdAt": "2026-03-01T12:00:00.000Z", "notes": "Initial"}]}
}`

func TestLoadAcceptsDefaultDocument(t *testing.T) {
	doc, err := Load([]byte(defaultDocumentJSON))
	require.NoError(t, err)
	require.Len(t, doc.Layers, 2)

	bg := doc.Layers[0].(BackgroundLayer)
	assert.Equal(t, []string{"bgColor"}, bg.Editable)
	assert.Equal(t, "#FFFFFF", bg.Props.Color)
	assert.Equal(t, 600, doc.Layers[1].(TextLayer).Props.FontWeight)
	assert.Equal(t, "2026-03-01T12:00:00.000Z", doc.Head().CreatedAt)

	got, err := UpdateLayer(doc, "bg", FieldPatch{"bgColor": json.RawMessage(`"#112233"`)})
	require.NoError(t, err)
	assert.Equal(t, "#112233", got.Layers[0].(BackgroundLayer).Props.Color)
	assert.Equal(t, "#FFFFFF", doc.Layers[0].(BackgroundLayer).Props.Color)
}

func TestLoadOrdersLayersByZIndex(t *testing.T) {
	raw := strings.Replace(defaultDocumentJSON, `"layers": [`, `"layers": [
    {"id": "obj_2", "type": "object_group", "zIndex": 20, "maskRef": "assets/masks/obj_2.png", "bbox": [300, 300, 100, 100],
     "transform": {"tx": 0, "ty": 0, "sx": 1, "sy": 1, "rotDeg": 0}, "style": {"tint": "", "opacity": 1}},
    {"id": "obj_1", "type": "object_group", "zIndex": 10, "maskRef": "assets/masks/obj_1.png", "bbox": [100, 100, 100, 100],
     "transform": {"tx": 0, "ty": 0, "sx": 1, "sy": 1, "rotDeg": 0}, "style": {"tint": "", "opacity": 1}},`, 1)

	doc, err := Load([]byte(raw))
	require.NoError(t, err)

	var ids []string
	for _, l := range doc.Layers {
		ids = append(ids, l.LayerID())
	}
	assert.Equal(t, []string{"bg", "obj_1", "obj_2", "text_1"}, ids)
	assert.Empty(t, Violations(doc))
}
