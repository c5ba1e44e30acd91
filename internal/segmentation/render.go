package segmentation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ErrNotPNG is returned when a payload is not a PNG image.
var ErrNotPNG = errors.New("segmentation: payload is not a PNG image")

// Render re-encodes objects onto a sentinel background, painting them in
// slice order so later objects overwrite earlier ones.
func Render(width, height int, objs []Object) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(Background.NRGBA()), image.Point{}, draw.Src)
	for _, o := range objs {
		if o.Mask == nil {
			continue
		}
		draw.DrawMask(dst, dst.Bounds(), image.NewUniform(o.Color.NRGBA()), image.Point{}, o.Mask, image.Point{}, draw.Over)
	}
	return dst
}

// Place copies a patch-local mask into a mask of canvas size at offset.
func Place(mask *image.Alpha, width, height int, offset image.Point) *image.Alpha {
	dst := image.NewAlpha(image.Rect(0, 0, width, height))
	r := mask.Bounds().Sub(mask.Bounds().Min).Add(offset)
	draw.Draw(dst, r, mask, mask.Bounds().Min, draw.Src)
	return dst
}

// FullMask is an all-members mask, used when an icon degrades to a single
// ungrouped layer.
func FullMask(width, height int) *image.Alpha {
	m := image.NewAlpha(image.Rect(0, 0, width, height))
	draw.Draw(m, m.Bounds(), image.NewUniform(color.Alpha{A: 0xff}), image.Point{}, draw.Src)
	return m
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("segmentation: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes a PNG payload, rejecting anything else.
func DecodePNG(data []byte) (image.Image, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, ErrNotPNG
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPNG, err)
	}
	return img, nil
}

// PNGSize reads the dimensions of a PNG payload without decoding pixels.
func PNGSize(data []byte) (int, int, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return 0, 0, ErrNotPNG
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNotPNG, err)
	}
	return cfg.Width, cfg.Height, nil
}

// DecodeMask reads a mask asset written by EncodePNG. A pixel is a member
// when its alpha is at least half.
func DecodeMask(data []byte) (*image.Alpha, error) {
	img, err := DecodePNG(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	m := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a >= 0x8000 {
				m.Pix[(y-b.Min.Y)*m.Stride+(x-b.Min.X)] = 0xff
			}
		}
	}
	return m, nil
}
