package segmentation

import "iconstudio/internal/canvas"

type component struct {
	label                  uint8
	area                   int
	minX, minY, maxX, maxY int
	dropped                bool
}

func (c *component) bounds() canvas.Rect {
	return canvas.Rect{X: c.minX, Y: c.minY, W: c.maxX - c.minX + 1, H: c.maxY - c.minY + 1}
}

// findComponents labels 8-connected regions of equal non-zero label. ids maps
// each pixel to its component index, or -1 for background.
func findComponents(labels []uint8, w, h int) ([]*component, []int32) {
	ids := make([]int32, len(labels))
	for i := range ids {
		ids[i] = -1
	}
	var comps []*component
	stack := make([]int, 0, 1024)
	for start, l := range labels {
		if l == 0 || ids[start] >= 0 {
			continue
		}
		id := int32(len(comps))
		c := &component{label: l, minX: w, minY: h, maxX: -1, maxY: -1}
		comps = append(comps, c)

		ids[start] = id
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			c.area++
			if x < c.minX {
				c.minX = x
			}
			if x > c.maxX {
				c.maxX = x
			}
			if y < c.minY {
				c.minY = y
			}
			if y > c.maxY {
				c.maxY = y
			}
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
						continue
					}
					j := ny*w + nx
					if labels[j] == l && ids[j] < 0 {
						ids[j] = id
						stack = append(stack, j)
					}
				}
			}
		}
	}
	return comps, ids
}
