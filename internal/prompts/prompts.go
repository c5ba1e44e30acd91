// Package prompts renders the text sent to the generation and brief
// collaborators. Every prompt is a sequence of [TITLE] sections; empty
// sections are omitted.
package prompts

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"iconstudio/internal/segmentation"
)

const monochrome = "monochrome (black or very dark gray)"

// Intake is the answer set of the intake form.
type Intake struct {
	Purpose      string
	WhereUsed    string
	VisualIdea   string
	DesignChoice string
	StyleMode    string
	TargetSizePx int
	PaletteList  string
}

// Beauty describes a full-icon render request.
type Beauty struct {
	Intake
	Brief         string
	RenderPx      int
	SafeMarginPct float64
}

// Segmentation describes a full-canvas segmentation render request.
type Segmentation struct {
	RenderPx   int
	MaxObjects int
}

// Patch describes a regional regeneration of one layer.
type Patch struct {
	Brief     string
	LayerID   string
	Label     string
	Change    string
	Width     int
	Height    int
	PaddingPx int
}

// BriefPrompt asks the brief collaborator to turn intake answers into a
// short user brief.
func BriefPrompt(in Intake) string {
	in = withIntakeDefaults(in)
	palette := in.PaletteList
	if strings.TrimSpace(palette) == "" {
		palette = monochrome
	}
	var buf bytes.Buffer
	writeSection(&buf, "PURPOSE", "You are helping create a user brief for an icon generation tool (Icon Studio).\n"+
		"Turn the intake answers below into a short, clear user brief (2-4 sentences). "+
		"The brief is the stable contract for every image generated for this icon.")
	writeSection(&buf, "INTAKE", formatList([]string{
		"Purpose: " + in.Purpose,
		"Where used: " + in.WhereUsed,
		"Visual idea: " + in.VisualIdea,
		"Design choice: " + in.DesignChoice,
		"Style mode: " + in.StyleMode,
		fmt.Sprintf("Target icon size: %dpx", in.TargetSizePx),
		"Palette: " + palette,
	}))
	writeSection(&buf, "OUTPUT_FORMAT", "Respond with ONLY the brief text, no preamble. "+
		"Confirm the icon's purpose, placement, look and style. "+
		"Do not include instructions to the model; describe what the icon should be.")
	return finish(&buf)
}

// BeautyPrompt asks for the flat, final-looking icon render.
func BeautyPrompt(p Beauty) string {
	p.Intake = withIntakeDefaults(p.Intake)
	color := "Monochrome icon in black or very dark gray."
	if strings.TrimSpace(p.PaletteList) != "" {
		color = "Use only these colors: " + p.PaletteList
	}
	var buf bytes.Buffer
	writeSection(&buf, "SYSTEM", "You generate clean, flat, professional icon imagery for UI use.\n"+
		"Do NOT include any text, letters, numbers, or watermarks.\n"+
		"Return a single PNG image.")
	writeSection(&buf, "USER_BRIEF", p.Brief)
	writeSection(&buf, "ICON_BRIEF", formatList([]string{
		"Purpose: " + p.Purpose,
		"Where used: " + p.WhereUsed,
		"Visual idea: " + p.VisualIdea,
		"Design choice: " + p.DesignChoice + " (Simple | Modern | Contemporary)",
		"Style mode: " + p.StyleMode + " (Outline | Filled)",
		fmt.Sprintf("Target icon: %dpx (final usage). Generate at high resolution for downscaling.", p.TargetSizePx),
	}))
	writeSection(&buf, "RENDER_REQUIREMENTS", formatList([]string{
		"Output: PNG",
		fmt.Sprintf("Resolution: %dx%d", p.RenderPx, p.RenderPx),
		"Background: transparent (preferred). If not possible, use pure white (#FFFFFF).",
		fmt.Sprintf("Composition: centered with generous padding (safe margin ~%d%% of canvas).", percent(p.SafeMarginPct)),
		"Flat look: no photorealism, no textures, no noise, no drop shadows, no glow.",
		"Clean edges and consistent geometry.",
		fmt.Sprintf("Keep the icon simple and readable when scaled down to %dpx.", p.TargetSizePx),
		"Avoid tiny details and hairline strokes.",
	}))
	writeSection(&buf, "COLOR", color)
	writeSection(&buf, "CONSTRAINTS", formatList([]string{
		"No text of any kind.",
		"Prefer 1-5 distinct visual elements max.",
	}))
	return finish(&buf)
}

// SegmentationPrompt asks for the companion mask render of a full icon.
func SegmentationPrompt(p Segmentation) string {
	if p.MaxObjects <= 0 || p.MaxObjects > segmentation.MaxObjects {
		p.MaxObjects = segmentation.MaxObjects
	}
	var buf bytes.Buffer
	writeSection(&buf, "SYSTEM", "You generate a segmentation mask image (not a normal icon).\n"+
		"Return a single PNG image. No explanations.")
	writeSection(&buf, "GOAL", "Produce a segmentation render that matches the composition of the beauty icon.")
	writeSection(&buf, "OUTPUT_REQUIREMENTS", formatList([]string{
		"Output: PNG",
		fmt.Sprintf("Resolution: %dx%d (match beauty render)", p.RenderPx, p.RenderPx),
		"Background must be solid pure black: " + string(segmentation.Background),
		"Every distinct object/shape must be filled with ONE unique solid color from the allowed list below.",
		"NO gradients, NO shading, NO outlines, NO shadows, NO transparency.",
		"HARD EDGES ONLY: avoid anti-aliasing and soft edges.",
		"Objects may overlap if needed. If overlap occurs, the top-most object overwrites pixels beneath it.",
	}))
	writeSection(&buf, "ALLOWED_COLORS", formatList([]string{
		"Background: " + string(segmentation.Background),
		"Objects (use one color per object, no reuse): " + joinColors(segmentation.Colors()),
	}))
	writeSection(&buf, "RULES", formatList([]string{
		fmt.Sprintf("Use as few objects as possible (1-%d objects).", p.MaxObjects),
		"Do NOT include any text.",
		"Ensure the segmentation matches the beauty icon's layout, scale, and position (centered, same padding).",
	}))
	return finish(&buf)
}

// PatchBeautyPrompt asks for a replacement image of one layer region.
func PatchBeautyPrompt(p Patch) string {
	label := p.Label
	if strings.TrimSpace(label) == "" {
		label = p.LayerID
	}
	var buf bytes.Buffer
	writeSection(&buf, "SYSTEM", "You generate clean, flat icon patches for editing workflows.\n"+
		"Return a PNG image only.\n"+
		"Do NOT include any letters, words, or numbers.")
	writeSection(&buf, "TASK", "We are editing an existing icon by regenerating ONLY one layer region.")
	writeSection(&buf, "USER_BRIEF", p.Brief)
	writeSection(&buf, "TARGET_LAYER", formatList([]string{
		"Layer id: " + p.LayerID,
		"What it represents: " + label,
		"Requested change: " + p.Change,
	}))
	writeSection(&buf, "PATCH_CONSTRAINTS", formatList([]string{
		"Output: PNG",
		fmt.Sprintf("Size: %d x %d", p.Width, p.Height),
		"Background: transparent (required)",
		"Flat style, no gradients, no shadows, no textures.",
		"Match the existing icon style and line weight.",
		fmt.Sprintf("Keep composition centered within patch; safe padding approx %dpx.", p.PaddingPx),
	}))
	writeSection(&buf, "DO_NOT", formatList([]string{
		"Do not redraw the whole icon.",
		"Do not add text.",
		"Do not add extra decorative elements.",
	}))
	return finish(&buf)
}

// PatchSegmentationPrompt asks for the single-color mask of a patch.
func PatchSegmentationPrompt(p Patch) string {
	var buf bytes.Buffer
	writeSection(&buf, "SYSTEM", "Return a segmentation mask PNG for a single patch region. No explanations.")
	writeSection(&buf, "OUTPUT_REQUIREMENTS", formatList([]string{
		fmt.Sprintf("Patch size: %d x %d", p.Width, p.Height),
		"Background must be " + string(segmentation.Background) + ".",
		"All regenerated pixels for this layer must be filled with " + string(segmentation.PatchColor) + " only.",
		"No gradients, no outlines, no shadows, no transparency.",
		"Hard edges only (avoid anti-aliasing).",
	}))
	return finish(&buf)
}

func withIntakeDefaults(in Intake) Intake {
	if in.DesignChoice == "" {
		in.DesignChoice = "Simple"
	}
	if in.StyleMode == "" {
		in.StyleMode = "Outline"
	}
	if in.TargetSizePx <= 0 {
		in.TargetSizePx = 24
	}
	return in
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}

func joinColors(cs []segmentation.Color) string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return strings.Join(out, " ")
}

func formatList(items []string) string {
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

func finish(buf *bytes.Buffer) string {
	return strings.TrimSpace(buf.String()) + "\n"
}
