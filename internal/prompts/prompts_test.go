package prompts

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

var shieldPatch = Patch{
	Brief:     "A calm blue shield with a check mark for a security settings page.",
	LayerID:   "obj_1",
	Label:     "shield",
	Change:    "make the shield rounder",
	Width:     248,
	Height:    248,
	PaddingPx: 24,
}

func TestPatchSegmentationPromptGolden(t *testing.T) {
	newGoldie(t).Assert(t, "patch_segmentation", []byte(PatchSegmentationPrompt(shieldPatch)))
}

func TestPatchBeautyPromptGolden(t *testing.T) {
	newGoldie(t).Assert(t, "patch_beauty", []byte(PatchBeautyPrompt(shieldPatch)))
}

func TestSegmentationPromptGolden(t *testing.T) {
	newGoldie(t).Assert(t, "segmentation", []byte(SegmentationPrompt(Segmentation{RenderPx: 1024, MaxObjects: 6})))
}

func TestSegmentationPromptCapsObjects(t *testing.T) {
	out := SegmentationPrompt(Segmentation{RenderPx: 512, MaxObjects: 20})
	assert.Contains(t, out, "(1-8 objects)")
	assert.Contains(t, out, "Resolution: 512x512")
}

func TestBeautyPrompt(t *testing.T) {
	out := BeautyPrompt(Beauty{
		Intake: Intake{
			Purpose:     "security settings",
			WhereUsed:   "web sidebar",
			VisualIdea:  "shield with check",
			PaletteList: "#0F172A, #3B82F6",
		},
		Brief:         "A calm blue shield.",
		RenderPx:      1024,
		SafeMarginPct: 0.12,
	})
	assert.True(t, strings.HasPrefix(out, "[SYSTEM]\n"))
	assert.Contains(t, out, "[USER_BRIEF]\nA calm blue shield.\n")
	assert.Contains(t, out, "- Design choice: Simple (Simple | Modern | Contemporary)")
	assert.Contains(t, out, "- Style mode: Outline (Outline | Filled)")
	assert.Contains(t, out, "safe margin ~12% of canvas")
	assert.Contains(t, out, "scaled down to 24px")
	assert.Contains(t, out, "Use only these colors: #0F172A, #3B82F6")

	mono := BeautyPrompt(Beauty{RenderPx: 1024})
	assert.Contains(t, mono, "Monochrome icon")
	assert.NotContains(t, mono, "[USER_BRIEF]")
}

func TestBriefPrompt(t *testing.T) {
	out := BriefPrompt(Intake{Purpose: "billing", WhereUsed: "mobile tab bar", StyleMode: "Filled", TargetSizePx: 32})
	assert.Contains(t, out, "- Purpose: billing")
	assert.Contains(t, out, "- Style mode: Filled")
	assert.Contains(t, out, "- Target icon size: 32px")
	assert.Contains(t, out, "- Palette: "+monochrome)
	assert.True(t, strings.HasSuffix(out, "should be.\n"))
}

func TestPatchBeautyPromptFallsBackToLayerID(t *testing.T) {
	p := shieldPatch
	p.Label = ""
	assert.Contains(t, PatchBeautyPrompt(p), "- What it represents: obj_1")
}
