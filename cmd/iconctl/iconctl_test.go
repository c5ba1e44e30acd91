package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconstudio/internal/canvas"
	"iconstudio/internal/layerir"
	"iconstudio/internal/segmentation"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBounds(t *testing.T) {
	out, err := run(t, "bounds", "--format", "json", "--bbox", "100,100,200,200", "--padding", "24")
	require.NoError(t, err)
	var res boundsResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1024, res.Render)
	assert.Equal(t, canvas.Rect{X: 122, Y: 122, W: 780, H: 780}, res.Safe)
	require.NotNil(t, res.Patch)
	assert.Equal(t, canvas.Rect{X: 76, Y: 76, W: 248, H: 248}, *res.Patch)

	_, err = run(t, "bounds", "--margin", "0.6")
	assert.Error(t, err)
	_, err = run(t, "bounds", "--format", "yaml")
	assert.Error(t, err)
}

func TestDecodeWritesMasks(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{A: 0xff}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(8, 8, 40, 40), image.NewUniform(color.NRGBA{G: 0xff, A: 0xff}), image.Point{}, draw.Src)
	data, err := segmentation.EncodePNG(img)
	require.NoError(t, err)
	seg := filepath.Join(dir, "seg.png")
	require.NoError(t, os.WriteFile(seg, data, 0o644))

	out, err := run(t, "decode", seg, "--out", filepath.Join(dir, "masks"))
	require.NoError(t, err)
	assert.Contains(t, out, "1 object(s)")
	assert.Contains(t, out, "bbox=[8,8,32,32]")

	maskData, err := os.ReadFile(filepath.Join(dir, "masks", "obj_1.png"))
	require.NoError(t, err)
	mask, err := segmentation.DecodeMask(maskData)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xff), mask.AlphaAt(10, 10).A)
	assert.Equal(t, uint8(0), mask.AlphaAt(50, 50).A)

	blank := filepath.Join(dir, "blank.png")
	data, _ = segmentation.EncodePNG(segmentation.Render(64, 64, nil))
	require.NoError(t, os.WriteFile(blank, data, 0o644))
	_, err = run(t, "decode", blank)
	assert.ErrorIs(t, err, segmentation.ErrEmpty)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	c := canvas.DefaultConfig(0)
	doc, err := layerir.CreateDocument(c, layerir.DefaultPalette(), []layerir.ObjectSpec{
		{MaskRef: "assets/masks/obj_1.png", BBox: canvas.Rect{X: 200, Y: 200, W: 100, H: 100}, SegColor: "#FF0000"},
	}, layerir.WithDocID("doc-1"))
	require.NoError(t, err)
	data, err := layerir.Marshal(doc)
	require.NoError(t, err)
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, data, 0o644))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(strings.Replace(string(data), layerir.Schema, "icon-studio/layer-ir/v0", 1)), 0o644))

	out, err := run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "good.json: ok (doc-1 at v1)")

	out, err = run(t, "validate", good, bad)
	assert.ErrorIs(t, err, errInvalid)
	assert.Contains(t, out, "bad.json: 1 violation(s)")
	assert.Contains(t, out, "not supported")
}
