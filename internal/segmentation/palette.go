package segmentation

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color is an upper-case "#RRGGBB" hex string.
type Color string

const (
	// Background is the sentinel reserved for "not an object".
	Background Color = "#000000"

	// PatchColor is the single object color allowed in a patch-scoped mask.
	PatchColor Color = "#FF0000"
)

// Palette is the fixed set of object colors. Its size is the hard cap on the
// number of objects one segmentation render can represent.
var Palette = [8]Color{
	"#FF0000",
	"#00FF00",
	"#0000FF",
	"#FFFF00",
	"#FF00FF",
	"#00FFFF",
	"#FFA500",
	"#8000FF",
}

// MaxObjects is the number of concurrently representable objects per render.
const MaxObjects = len(Palette)

// Colors returns a copy of the palette.
func Colors() []Color {
	return append([]Color(nil), Palette[:]...)
}

// PaletteIndex returns the position of c in Palette, or -1.
func PaletteIndex(c Color) int {
	n := Normalize(c)
	for i, p := range Palette {
		if p == n {
			return i
		}
	}
	return -1
}

// Normalize upper-cases c and adds a leading '#'.
func Normalize(c Color) Color {
	s := strings.ToUpper(strings.TrimSpace(string(c)))
	if s != "" && !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	return Color(s)
}

// ParseHex parses "#RRGGBB" (or "RRGGBB") into an opaque color.
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("segmentation: invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("segmentation: invalid hex color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// NRGBA returns the color value of c. Invalid colors map to transparent black.
func (c Color) NRGBA() color.NRGBA {
	v, err := ParseHex(string(c))
	if err != nil {
		return color.NRGBA{}
	}
	return v
}

// Valid reports whether c is a well-formed hex color.
func (c Color) Valid() bool {
	_, err := ParseHex(string(c))
	return err == nil
}

// Hex formats an opaque color as "#RRGGBB".
func Hex(c color.NRGBA) Color {
	return Color(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B))
}
