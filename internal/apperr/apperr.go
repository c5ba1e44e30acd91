package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind categorizes an error for callers and transports.
//
// Every kind implies that nothing was written: mutators in this module are
// all-or-nothing, so a caller receiving any of these may retry safely.
type Kind string

const (
	// KindConfiguration indicates missing credentials or required fields.
	KindConfiguration Kind = "configuration"

	// KindUpstream indicates the generation or brief collaborator failed or
	// returned an unusable payload.
	KindUpstream Kind = "upstream"

	// KindSegmentationDecode indicates a malformed or non-conforming mask raster.
	KindSegmentationDecode Kind = "segmentation_decode"

	// KindValidation indicates a proposed document violates a Layer IR invariant.
	KindValidation Kind = "validation"

	// KindWorkflowState indicates an operation against a patch workflow that is
	// not in the expected state.
	KindWorkflowState Kind = "workflow_state"

	// KindLayerLocked indicates another patch workflow holds the target layer.
	KindLayerLocked Kind = "layer_locked"

	// KindNotFound indicates an unknown document, layer or asset.
	KindNotFound Kind = "not_found"

	// KindConflict indicates a concurrent writer advanced the document first.
	KindConflict Kind = "conflict"
)

// Error is the structured error reported by every core operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Details carries one entry per violation for validation errors.
	Details []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Details, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Configuration(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a collaborator failure. The upstream message is kept verbatim.
func Upstream(op, provider string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Message: provider, Err: err}
}

func SegmentationDecode(op, format string, args ...any) *Error {
	return &Error{Kind: KindSegmentationDecode, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation reports every violation found; it never reports a partial apply.
func Validation(op string, violations []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Message: fmt.Sprintf("%d violation(s)", len(violations)),
		Details: append([]string(nil), violations...),
	}
}

func WorkflowState(op, format string, args ...any) *Error {
	return &Error{Kind: KindWorkflowState, Op: op, Message: fmt.Sprintf(format, args...)}
}

func LayerLocked(op, layerID string) *Error {
	return &Error{Kind: KindLayerLocked, Op: op, Message: fmt.Sprintf("layer %q is locked by another patch", layerID)}
}

func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Conflict(op string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: "document changed concurrently", Err: err}
}

// HTTPStatus maps an error to the status code used by the HTTP API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration:
		return http.StatusServiceUnavailable
	case KindUpstream:
		return http.StatusBadGateway
	case KindSegmentationDecode, KindValidation:
		return http.StatusUnprocessableEntity
	case KindWorkflowState, KindLayerLocked, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
