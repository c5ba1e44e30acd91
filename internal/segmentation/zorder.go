package segmentation

import "iconstudio/internal/canvas"

// zOrder returns object indices bottom to top.
//
// A flat raster only keeps the top-most color of overlapping objects, so the
// overlap signal is read from bounding boxes: where two boxes intersect, the
// object that owns more of the intersection was drawn over the other. Objects
// without an overlap signal keep palette order, later-declared on top.
// Contradictory signals (cycles) are broken the same way.
func zOrder(objs []decoded, labels []uint8, w int) []int {
	n := len(objs)
	above := make([][]bool, n)
	for i := range above {
		above[i] = make([]bool, n)
	}
	indeg := make([]int, n)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			inter := objs[a].Bounds.Intersect(objs[b].Bounds)
			if inter.Empty() {
				continue
			}
			occA := occupancy(labels, w, inter, objs[a].label)
			occB := occupancy(labels, w, inter, objs[b].label)
			switch {
			case occA > occB:
				above[a][b] = true
				indeg[a]++
			case occB > occA:
				above[b][a] = true
				indeg[b]++
			}
		}
	}

	placed := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			for i := 0; i < n; i++ {
				if !placed[i] {
					next = i
					break
				}
			}
		}
		placed[next] = true
		order = append(order, next)
		for j := 0; j < n; j++ {
			if above[j][next] {
				indeg[j]--
			}
		}
	}
	return order
}

func occupancy(labels []uint8, w int, r canvas.Rect, label uint8) int {
	n := 0
	for y := r.Y; y < r.Y+r.H; y++ {
		row := labels[y*w+r.X : y*w+r.X+r.W]
		for _, l := range row {
			if l == label {
				n++
			}
		}
	}
	return n
}
