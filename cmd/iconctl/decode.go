package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"iconstudio/internal/canvas"
	"iconstudio/internal/segmentation"
)

type decodedObject struct {
	Color segmentation.Color `json:"color"`
	BBox  canvas.Rect        `json:"bbox"`
	Area  int                `json:"area"`
	Mask  string             `json:"mask,omitempty"`
}

type decodeResult struct {
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Objects []decodedObject `json:"objects"`
	Dropped int             `json:"droppedPixels"`
}

func newDecodeCommand(opts *rootOptions) *cobra.Command {
	var minArea int
	var outDir string
	cmd := &cobra.Command{
		Use:   "decode <seg.png>",
		Short: "Decode a segmentation render into objects, optionally writing masks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			img, err := segmentation.DecodePNG(data)
			if err != nil {
				return err
			}
			res, err := segmentation.Decode(img, segmentation.Options{MinArea: minArea})
			if err != nil {
				return err
			}

			out := decodeResult{Width: res.Width, Height: res.Height, Dropped: res.Dropped}
			for i, o := range res.Objects {
				d := decodedObject{Color: o.Color, BBox: o.Bounds, Area: o.Area}
				if outDir != "" {
					d.Mask = filepath.Join(outDir, fmt.Sprintf("obj_%d.png", i+1))
					if err := writeMask(d.Mask, o); err != nil {
						return err
					}
				}
				out.Objects = append(out.Objects, d)
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, out)
			}
			fmt.Fprintf(w, "%dx%d, %d object(s), %d stray pixel(s) dropped\n", out.Width, out.Height, len(out.Objects), out.Dropped)
			for i, o := range out.Objects {
				fmt.Fprintf(w, "obj_%d  %s  bbox=%s  area=%d", i+1, o.Color, o.BBox, o.Area)
				if o.Mask != "" {
					fmt.Fprintf(w, "  mask=%s", o.Mask)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minArea, "min-area", 0, "drop components smaller than this many pixels (0 uses the default)")
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write per-object mask PNGs into")
	return cmd
}

func writeMask(path string, o segmentation.Object) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := segmentation.EncodePNG(o.Mask)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
