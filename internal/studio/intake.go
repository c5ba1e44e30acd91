package studio

import (
	"fmt"
	"strings"

	"iconstudio/internal/apperr"
	"iconstudio/internal/prompts"
	"iconstudio/internal/segmentation"
)

var (
	designChoices = []string{"Simple", "Modern", "Contemporary"}
	styleModes    = []string{"Outline", "Filled"}
)

// Intake is the answer set collected before a brief is generated.
type Intake struct {
	Purpose      string   `json:"purpose"`
	WhereUsed    string   `json:"whereUsed"`
	VisualIdea   string   `json:"visualIdea"`
	DesignChoice string   `json:"designChoice,omitempty"`
	StyleMode    string   `json:"styleMode,omitempty"`
	TargetSizePx int      `json:"targetSizePx,omitempty"`
	PaletteList  []string `json:"paletteList,omitempty"`
}

// Validate checks the enumerated fields and palette colors. Free-text fields
// are not checked.
func (in Intake) Validate() error {
	var v []string
	if in.DesignChoice != "" && !oneOf(in.DesignChoice, designChoices) {
		v = append(v, fmt.Sprintf("designChoice %q must be one of %s", in.DesignChoice, strings.Join(designChoices, ", ")))
	}
	if in.StyleMode != "" && !oneOf(in.StyleMode, styleModes) {
		v = append(v, fmt.Sprintf("styleMode %q must be one of %s", in.StyleMode, strings.Join(styleModes, ", ")))
	}
	if in.TargetSizePx < 0 {
		v = append(v, fmt.Sprintf("targetSizePx %d must not be negative", in.TargetSizePx))
	}
	for _, c := range in.PaletteList {
		if _, err := segmentation.ParseHex(c); err != nil {
			v = append(v, fmt.Sprintf("palette color %q is not #RRGGBB", c))
		}
	}
	if len(v) > 0 {
		return apperr.Validation("studio.Intake", v)
	}
	return nil
}

func (in Intake) prompt() prompts.Intake {
	return prompts.Intake{
		Purpose:      in.Purpose,
		WhereUsed:    in.WhereUsed,
		VisualIdea:   in.VisualIdea,
		DesignChoice: in.DesignChoice,
		StyleMode:    in.StyleMode,
		TargetSizePx: in.TargetSizePx,
		PaletteList:  strings.Join(in.PaletteList, ", "),
	}
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
