package genclient

import "context"

// Phases tag each request so middleware and fakes can tell them apart.
const (
	PhaseBrief             = "brief"
	PhaseBeauty            = "beauty"
	PhaseSegmentation      = "segmentation"
	PhasePatchBeauty       = "patch_beauty"
	PhasePatchSegmentation = "patch_segmentation"
)

type ctxKeyPhase struct{}

// WithPhase attaches a phase tag to ctx.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPhase{}).(string); ok {
		return v
	}
	return ""
}
