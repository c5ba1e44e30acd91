package genclient

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"iconstudio/internal/segmentation"
)

// FakeClient returns deterministic payloads per phase for offline use and
// tests. Full renders draw a badge (green) with a mark (red) overlapping its
// lower right corner; patch masks fill the whole patch with the patch color.
type FakeClient struct {
	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{fail: map[string]error{}, calls: map[string]int{}}
}

func (f *FakeClient) Name() string { return "Fake" }
func (f *FakeClient) Close() error { return nil }

// FailPhase makes every request in phase return err. A nil err clears it.
func (f *FakeClient) FailPhase(phase string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, phase)
		return
	}
	f.fail[phase] = err
}

// Calls returns how many requests reached phase.
func (f *FakeClient) Calls(phase string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[phase]
}

func (f *FakeClient) Generate(ctx context.Context, req Request) (*Response, error) {
	phase := PhaseFrom(ctx)
	f.mu.Lock()
	f.calls[phase]++
	err := f.fail[phase]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Modality == ModalityText {
		return &Response{Text: fmt.Sprintf("A flat, centered icon (%d prompt bytes).", len(req.Prompt))}, nil
	}
	w, h := req.Width, req.Height
	if w <= 0 || h <= 0 {
		w, h = 1024, 1024
	}

	var img image.Image
	switch phase {
	case PhaseSegmentation:
		img = fakeScene(w, h, segmentation.Background.NRGBA(), color.NRGBA{G: 0xff, A: 0xff}, color.NRGBA{R: 0xff, A: 0xff})
	case PhasePatchSegmentation:
		img = solid(w, h, segmentation.PatchColor.NRGBA())
	case PhasePatchBeauty:
		img = solid(w, h, color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff})
	default:
		img = fakeScene(w, h, color.NRGBA{}, color.NRGBA{R: 0x0f, G: 0x17, B: 0x2a, A: 0xff}, color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff})
	}
	data, err := segmentation.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &Response{Data: data, MIMEType: MIMETypePNG}, nil
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// fakeScene draws two overlapping squares inside the default safe area.
func fakeScene(w, h int, bg, under, over color.NRGBA) *image.NRGBA {
	img := solid(w, h, bg)
	badge := image.Rect(w*3/16, h*3/16, w*10/16, h*10/16)
	mark := image.Rect(w*8/16, h*8/16, w*13/16, h*13/16)
	draw.Draw(img, badge, image.NewUniform(under), image.Point{}, draw.Src)
	draw.Draw(img, mark, image.NewUniform(over), image.Point{}, draw.Src)
	return img
}
