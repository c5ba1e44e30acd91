package canvas

import (
	"encoding/json"
	"fmt"
	"image"
)

// Rect is an axis-aligned rectangle in canvas pixels. It serializes as the
// tuple [x, y, w, h].
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Image converts r into an image.Rectangle (Max is exclusive).
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// FromImage converts an image.Rectangle into a Rect.
func FromImage(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Offset translates r by (dx, dy).
func (r Rect) Offset(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Within reports whether r lies entirely inside outer.
func (r Rect) Within(outer Rect) bool {
	return r.X >= outer.X && r.Y >= outer.Y &&
		r.X+r.W <= outer.X+outer.W && r.Y+r.H <= outer.Y+outer.H
}

// Intersect returns the overlap of r and o, which may be empty.
func (r Rect) Intersect(o Rect) Rect {
	return FromImage(r.Image().Intersect(o.Image()))
}

// Inset grows r by pad on every side and clamps the result to bounds.
func (r Rect) Inset(pad int, bounds Rect) Rect {
	grown := image.Rect(r.X-pad, r.Y-pad, r.X+r.W+pad, r.Y+r.H+pad)
	return FromImage(grown.Intersect(bounds.Image()))
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", r.X, r.Y, r.W, r.H)
}

func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X, r.Y, r.W, r.H})
}

func (r *Rect) UnmarshalJSON(data []byte) error {
	var tuple []int
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("canvas: rect must be [x, y, w, h]: %w", err)
	}
	if len(tuple) != 4 {
		return fmt.Errorf("canvas: rect must have 4 elements, got %d", len(tuple))
	}
	*r = Rect{X: tuple[0], Y: tuple[1], W: tuple[2], H: tuple[3]}
	return nil
}
