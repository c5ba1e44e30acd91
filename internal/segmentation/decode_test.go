package segmentation

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconstudio/internal/apperr"
	"iconstudio/internal/canvas"
)

func newRaster(w, h int, bg color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return img
}

func fill(img *image.NRGBA, r canvas.Rect, c Color) {
	draw.Draw(img, r.Image(), image.NewUniform(c.NRGBA()), image.Point{}, draw.Src)
}

func maskArea(m *image.Alpha) int {
	n := 0
	for _, v := range m.Pix {
		if v == 0xff {
			n++
		}
	}
	return n
}

func TestDecodeOverlapTopMostWins(t *testing.T) {
	img := newRaster(512, 512, Background.NRGBA())
	fill(img, canvas.Rect{X: 50, Y: 50, W: 100, H: 100}, "#00FF00")
	fill(img, canvas.Rect{X: 90, Y: 90, W: 80, H: 80}, "#FF0000")

	res, err := Decode(img, Options{})
	require.NoError(t, err)
	require.Len(t, res.Objects, 2)

	green, red := res.Objects[0], res.Objects[1]
	assert.Equal(t, Color("#00FF00"), green.Color, "occluded object is below")
	assert.Equal(t, Color("#FF0000"), red.Color, "fully visible object is on top")

	overlap := canvas.Rect{X: 50, Y: 50, W: 100, H: 100}.Intersect(canvas.Rect{X: 90, Y: 90, W: 80, H: 80}).Area()
	assert.Equal(t, 3600, overlap)
	assert.Equal(t, 10000-overlap, green.Area)
	assert.Equal(t, 6400, red.Area)
	assert.Equal(t, green.Area, maskArea(green.Mask))
	assert.Equal(t, red.Area, maskArea(red.Mask))

	assert.Equal(t, canvas.Rect{X: 50, Y: 50, W: 100, H: 100}, green.Bounds)
	assert.Equal(t, canvas.Rect{X: 90, Y: 90, W: 80, H: 80}, red.Bounds)
	assert.Equal(t, uint8(0), green.Mask.AlphaAt(100, 100).A, "overlap belongs to red")
	assert.Equal(t, uint8(0xff), red.Mask.AlphaAt(100, 100).A)
	assert.Equal(t, 512, res.Width)
	assert.Equal(t, 0, res.Dropped)
}

func TestDecodeRenderRoundTrip(t *testing.T) {
	img := newRaster(128, 96, Background.NRGBA())
	fill(img, canvas.Rect{X: 4, Y: 4, W: 60, H: 40}, "#0000FF")
	fill(img, canvas.Rect{X: 30, Y: 20, W: 50, H: 50}, "#FFA500")
	fill(img, canvas.Rect{X: 70, Y: 10, W: 30, H: 70}, "#8000FF")
	fill(img, canvas.Rect{X: 100, Y: 80, W: 20, H: 10}, "#00FFFF")
	fill(img, canvas.Rect{X: 0, Y: 90, W: 1, H: 1}, "#FFFF00")

	res, err := Decode(img, Options{MinArea: 1})
	require.NoError(t, err)
	require.Len(t, res.Objects, 5)

	out := Render(res.Width, res.Height, res.Objects)
	require.Equal(t, img.Bounds(), out.Bounds())
	assert.Equal(t, img.Pix, out.Pix)
}

func TestDecodeFailures(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := Decode(newRaster(64, 64, Background.NRGBA()), Options{})
		require.ErrorIs(t, err, ErrEmpty)
		assert.True(t, apperr.IsKind(err, apperr.KindSegmentationDecode))
	})

	t.Run("non-uniform background", func(t *testing.T) {
		img := newRaster(64, 64, color.White)
		fill(img, canvas.Rect{X: 10, Y: 10, W: 20, H: 20}, "#FF0000")
		_, err := Decode(img, Options{})
		require.ErrorIs(t, err, ErrNonUniformBackground)
	})

	t.Run("transparent background", func(t *testing.T) {
		img := newRaster(64, 64, color.Transparent)
		fill(img, canvas.Rect{X: 10, Y: 10, W: 20, H: 20}, "#FF0000")
		_, err := Decode(img, Options{})
		require.ErrorIs(t, err, ErrNonUniformBackground)
	})

	t.Run("too many colors", func(t *testing.T) {
		img := newRaster(100, 100, Background.NRGBA())
		cols := append(Colors(), "#123456")
		for i, c := range cols {
			fill(img, canvas.Rect{X: (i % 5) * 20, Y: (i / 5) * 20, W: 8, H: 8}, c)
		}
		_, err := Decode(img, Options{})
		require.ErrorIs(t, err, ErrTooManyColors)
	})

	t.Run("color reuse", func(t *testing.T) {
		img := newRaster(64, 64, Background.NRGBA())
		fill(img, canvas.Rect{X: 2, Y: 2, W: 10, H: 10}, "#FF0000")
		fill(img, canvas.Rect{X: 40, Y: 40, W: 10, H: 10}, "#FF0000")
		_, err := Decode(img, Options{})
		require.ErrorIs(t, err, ErrColorReuse)
	})
}

func TestDecodeToleratesFringeAndNoise(t *testing.T) {
	img := newRaster(64, 64, Background.NRGBA())
	fill(img, canvas.Rect{X: 10, Y: 10, W: 20, H: 20}, "#FF0000")
	// Anti-aliased fringe right next to the square snaps into it.
	fill(img, canvas.Rect{X: 30, Y: 10, W: 1, H: 20}, "#F01010")
	// Dark fringe snaps to the background.
	fill(img, canvas.Rect{X: 9, Y: 10, W: 1, H: 20}, "#100808")
	// A 2x2 speck is noise.
	fill(img, canvas.Rect{X: 50, Y: 50, W: 2, H: 2}, "#0000FF")

	res, err := Decode(img, Options{})
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	obj := res.Objects[0]
	assert.Equal(t, Color("#FF0000"), obj.Color)
	assert.Equal(t, canvas.Rect{X: 10, Y: 10, W: 21, H: 20}, obj.Bounds)
	assert.Equal(t, 21*20, obj.Area)
	assert.Equal(t, 4, res.Dropped)
}

func TestDecodeRestrictedMergesComponents(t *testing.T) {
	img := newRaster(200, 200, Background.NRGBA())
	fill(img, canvas.Rect{X: 10, Y: 10, W: 30, H: 30}, PatchColor)
	fill(img, canvas.Rect{X: 150, Y: 120, W: 40, H: 20}, PatchColor)
	fill(img, canvas.Rect{X: 80, Y: 80, W: 5, H: 5}, "#00FF00")

	res, err := Decode(img, Options{Allowed: []Color{PatchColor}, MergeComponents: true})
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, canvas.Rect{X: 10, Y: 10, W: 180, H: 130}, res.Objects[0].Bounds)
	assert.Equal(t, 30*30+40*20, res.Objects[0].Area)
	assert.Equal(t, 25, res.Dropped, "foreign palette color is dropped, not decoded")
}

func TestPlaceAndFullMask(t *testing.T) {
	local := FullMask(10, 10)
	placed := Place(local, 50, 50, image.Pt(20, 30))
	assert.Equal(t, 100, maskArea(placed))
	assert.Equal(t, uint8(0xff), placed.AlphaAt(20, 30).A)
	assert.Equal(t, uint8(0), placed.AlphaAt(19, 30).A)
	assert.Equal(t, uint8(0xff), placed.AlphaAt(29, 39).A)
}

func TestMaskCodec(t *testing.T) {
	for _, m := range []*image.Alpha{Place(FullMask(10, 10), 40, 40, image.Pt(5, 5)), FullMask(6, 6)} {
		data, err := EncodePNG(m)
		require.NoError(t, err)
		got, err := DecodeMask(data)
		require.NoError(t, err)
		assert.Equal(t, m.Pix, got.Pix)
	}
}

func TestPNGCodec(t *testing.T) {
	img := newRaster(8, 4, Background.NRGBA())
	data, err := EncodePNG(img)
	require.NoError(t, err)

	w, h, err := PNGSize(data)
	require.NoError(t, err)
	assert.Equal(t, 8, w)
	assert.Equal(t, 4, h)

	_, err = DecodePNG([]byte("GIF89a"))
	assert.ErrorIs(t, err, ErrNotPNG)
}

func TestPalette(t *testing.T) {
	seen := map[Color]bool{}
	for _, c := range Palette {
		assert.NotEqual(t, Background, c)
		assert.False(t, seen[c], "duplicate palette color %s", c)
		seen[c] = true
		assert.Equal(t, c, Hex(c.NRGBA()))
	}
	assert.Equal(t, 0, PaletteIndex("ff0000"))
	assert.Equal(t, -1, PaletteIndex("#000000"))
	assert.False(t, Color("#12345").Valid())
}
