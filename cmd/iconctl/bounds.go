package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"iconstudio/internal/canvas"
)

type boundsResult struct {
	Render     int          `json:"renderPx"`
	TargetSize int          `json:"targetSize"`
	MarginPct  float64      `json:"safeMarginPct"`
	Safe       canvas.Rect  `json:"safeBounds"`
	Patch      *canvas.Rect `json:"patchRect,omitempty"`
}

func newBoundsCommand(opts *rootOptions) *cobra.Command {
	var target, padding int
	var margin float64
	var bbox []int
	cmd := &cobra.Command{
		Use:   "bounds",
		Short: "Print the render size, safe bounds and optional patch rectangle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := canvas.DefaultConfig(target)
			if cmd.Flags().Changed("margin") {
				c.SafeMarginPct = margin
			}
			if v := c.Violations(); len(v) > 0 {
				return fmt.Errorf("invalid canvas: %v", v)
			}
			res := boundsResult{Render: c.Width, TargetSize: c.TargetSize, MarginPct: c.SafeMarginPct, Safe: c.SafeBounds()}
			if len(bbox) > 0 {
				if len(bbox) != 4 {
					return fmt.Errorf("--bbox takes x,y,w,h")
				}
				r := c.PatchRect(canvas.Rect{X: bbox[0], Y: bbox[1], W: bbox[2], H: bbox[3]}, padding)
				res.Patch = &r
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, res)
			}
			fmt.Fprintf(w, "render %dx%d for target %dpx\n", res.Render, res.Render, res.TargetSize)
			fmt.Fprintf(w, "safe bounds %s (margin %.2f)\n", res.Safe, res.MarginPct)
			if res.Patch != nil {
				fmt.Fprintf(w, "patch rect %s (padding %dpx)\n", *res.Patch, padding)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "size", 0, "target display size in pixels (0 uses the default)")
	cmd.Flags().Float64Var(&margin, "margin", 0.12, "safe margin as a fraction of the canvas")
	cmd.Flags().IntSliceVar(&bbox, "bbox", nil, "layer bbox x,y,w,h to compute a patch rectangle for")
	cmd.Flags().IntVar(&padding, "padding", 24, "patch padding in pixels")
	return cmd
}
