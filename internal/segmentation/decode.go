package segmentation

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"iconstudio/internal/apperr"
	"iconstudio/internal/canvas"
)

const (
	// DefaultMinArea is the smallest component kept as an object; anything
	// smaller is treated as encoding noise and dropped into the background.
	DefaultMinArea = 16

	// DefaultSnapTolerance is the largest per-channel distance at which a
	// non-conforming pixel is snapped to the nearest allowed color.
	DefaultSnapTolerance = 48

	// DefaultMaxStrayFraction is the share of unclassifiable pixels above
	// which the background is considered non-uniform.
	DefaultMaxStrayFraction = 0.05
)

var (
	ErrEmpty                = errors.New("segmentation: no object pixels")
	ErrTooManyColors        = errors.New("segmentation: more live colors than the palette allows")
	ErrNonUniformBackground = errors.New("segmentation: background is not the uniform sentinel")
	ErrColorReuse           = errors.New("segmentation: color reused across disjoint regions")
)

// Options tunes Decode. The zero value decodes against the full palette.
type Options struct {
	// Allowed lists the object colors accepted; defaults to Palette.
	Allowed []Color
	// MinArea is the noise threshold in pixels.
	MinArea int
	// LiveArea is the pixel count at which a raw color counts toward the
	// palette cap. Defaults to max(MinArea, pixels/1000).
	LiveArea         int
	SnapTolerance    int
	MaxStrayFraction float64
	// MergeComponents folds disjoint regions of one color into one object
	// instead of failing. Patch masks use it: every foreground pixel belongs
	// to the edited layer.
	MergeComponents bool
}

// Object is one decoded object: a binary membership mask at source
// resolution plus its tight bounding box.
type Object struct {
	Color  Color
	Bounds canvas.Rect
	Area   int
	Mask   *image.Alpha
}

// Result holds decoded objects ordered bottom to top.
type Result struct {
	Width   int
	Height  int
	Objects []Object
	// Dropped counts pixels discarded as stray or noise.
	Dropped int
}

func (o Options) withDefaults(pixels int) Options {
	if len(o.Allowed) == 0 {
		o.Allowed = Colors()
	}
	if o.MinArea <= 0 {
		o.MinArea = DefaultMinArea
	}
	if o.LiveArea <= 0 {
		o.LiveArea = pixels / 1000
		if o.LiveArea < o.MinArea {
			o.LiveArea = o.MinArea
		}
	}
	if o.SnapTolerance < 0 {
		o.SnapTolerance = 0
	} else if o.SnapTolerance == 0 {
		o.SnapTolerance = DefaultSnapTolerance
	}
	if o.MaxStrayFraction <= 0 {
		o.MaxStrayFraction = DefaultMaxStrayFraction
	}
	return o
}

func decodeError(cause error, format string, args ...any) error {
	return &apperr.Error{
		Kind:    apperr.KindSegmentationDecode,
		Op:      "segmentation.Decode",
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// Decode turns a segmentation raster into per-object masks.
//
// Pixels are grouped into 8-connected components of equal color. Pixels that
// are not exactly the sentinel or an allowed color are snapped to the nearest
// one within SnapTolerance, otherwise dropped into the background. Components
// smaller than MinArea are dropped as noise. Objects are ordered bottom to
// top using the overlap signal described in zOrder.
func Decode(img image.Image, opts Options) (*Result, error) {
	if img == nil {
		return nil, decodeError(ErrEmpty, "image is nil")
	}
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, decodeError(ErrEmpty, "image has zero size")
	}
	total := w * h
	opts = opts.withDefaults(total)

	cls := newClassifier(opts)
	labels := make([]uint8, total)
	raw := make(map[uint32]int)
	stray := 0
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			if p[3] == 0xff {
				key := uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2])
				if key != 0 {
					raw[key]++
				}
			}
			label, ok := cls.classify(p[0], p[1], p[2], p[3])
			if !ok {
				stray++
			}
			labels[y*w+x] = label
		}
	}

	live := 0
	for _, n := range raw {
		if n >= opts.LiveArea {
			live++
		}
	}
	if live > MaxObjects {
		return nil, decodeError(ErrTooManyColors, "%d live colors, palette cap is %d", live, MaxObjects)
	}
	if float64(stray) > opts.MaxStrayFraction*float64(total) {
		return nil, decodeError(ErrNonUniformBackground, "%.1f%% of pixels match neither %s nor an allowed color",
			100*float64(stray)/float64(total), Background)
	}

	comps, ids := findComponents(labels, w, h)
	noise := 0
	byLabel := make(map[uint8][]*component)
	for _, c := range comps {
		if c.area < opts.MinArea {
			c.dropped = true
			noise += c.area
			continue
		}
		byLabel[c.label] = append(byLabel[c.label], c)
	}
	if len(byLabel) == 0 {
		return nil, decodeError(ErrEmpty, "no object pixels above %d px", opts.MinArea)
	}
	if !opts.MergeComponents {
		for label, cs := range byLabel {
			if len(cs) > 1 {
				return nil, decodeError(ErrColorReuse, "%s appears in %d disjoint regions", opts.Allowed[label-1], len(cs))
			}
		}
	}

	// Clear dropped components so masks only hold surviving pixels.
	for i, id := range ids {
		if id >= 0 && comps[id].dropped {
			labels[i] = 0
		}
	}

	objs := make([]decoded, 0, len(byLabel))
	for label := uint8(1); int(label) <= len(opts.Allowed); label++ {
		cs, ok := byLabel[label]
		if !ok {
			continue
		}
		objs = append(objs, buildObject(label, opts.Allowed[label-1], cs, labels, w, h))
	}

	order := zOrder(objs, labels, w)
	out := &Result{Width: w, Height: h, Dropped: stray + noise}
	for _, i := range order {
		out.Objects = append(out.Objects, objs[i].Object)
	}
	return out, nil
}

// classifier maps a pixel to a label: 0 for background, i+1 for Allowed[i].
type classifier struct {
	exact     map[uint32]uint8
	targets   []target
	tolerance int
}

type target struct {
	label   uint8
	r, g, b int
}

func newClassifier(opts Options) *classifier {
	c := &classifier{exact: map[uint32]uint8{0: 0}, tolerance: opts.SnapTolerance}
	c.targets = append(c.targets, target{label: 0})
	for i, col := range opts.Allowed {
		v := col.NRGBA()
		key := uint32(v.R)<<16 | uint32(v.G)<<8 | uint32(v.B)
		label := uint8(i + 1)
		c.exact[key] = label
		c.targets = append(c.targets, target{label: label, r: int(v.R), g: int(v.G), b: int(v.B)})
	}
	return c
}

// classify reports the label and whether the pixel was resolvable. Unresolved
// pixels fall back to the background.
func (c *classifier) classify(r, g, b, a uint8) (uint8, bool) {
	if a == 0xff {
		if label, ok := c.exact[uint32(r)<<16|uint32(g)<<8|uint32(b)]; ok {
			return label, true
		}
	}
	if a < 0x80 {
		return 0, false
	}
	best, bestDist := uint8(0), -1
	for _, t := range c.targets {
		d := maxAbs(int(r)-t.r, int(g)-t.g, int(b)-t.b)
		if bestDist < 0 || d < bestDist {
			best, bestDist = t.label, d
		}
	}
	if bestDist <= c.tolerance {
		return best, true
	}
	return 0, false
}

func maxAbs(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

type decoded struct {
	Object
	label uint8
}

func buildObject(label uint8, col Color, cs []*component, labels []uint8, w, h int) decoded {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	area := 0
	for i, l := range labels {
		if l == label {
			mask.Pix[i] = 0xff
			area++
		}
	}
	bounds := cs[0].bounds()
	for _, c := range cs[1:] {
		bounds = canvas.FromImage(bounds.Image().Union(c.bounds().Image()))
	}
	return decoded{
		Object: Object{Color: col, Bounds: bounds, Area: area, Mask: mask},
		label:  label,
	}
}
