package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"iconstudio/internal/apperr"
	"iconstudio/internal/layerir"
	"iconstudio/internal/patch"
	"iconstudio/internal/studio"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	svc *studio.Service
	log *log.Logger
}

func NewHandler(svc *studio.Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{svc: svc, log: logger}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) Brief(w http.ResponseWriter, r *http.Request) {
	var in studio.Intake
	if !h.decode(w, r, &in) {
		return
	}
	brief, err := h.svc.GenerateBrief(r.Context(), in)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"brief": brief})
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.Documents(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": ids})
}

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req studio.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.svc.CreateIcon(r.Context(), req)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type updateLayerRequest struct {
	Fields layerir.FieldPatch `json:"fields"`
	Notes  string             `json:"notes,omitempty"`
}

func (h *Handler) UpdateLayer(w http.ResponseWriter, r *http.Request) {
	var req updateLayerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 {
		h.writeError(w, apperr.Validation("server.UpdateLayer", []string{"fields must name at least one field"}), nil)
		return
	}
	doc, err := h.svc.UpdateLayer(r.Context(), r.PathValue("id"), r.PathValue("layerId"), req.Fields, req.Notes)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type patchRequest struct {
	Change string `json:"change"`
	Label  string `json:"label,omitempty"`
}

type patchResponse struct {
	Workflow patch.Snapshot     `json:"workflow"`
	Document *layerir.Document `json:"document"`
}

func (h *Handler) PatchLayer(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if !h.decode(w, r, &req) {
		return
	}
	wf, err := h.svc.Patch(r.Context(), r.PathValue("id"), patch.Request{
		LayerID: r.PathValue("layerId"),
		Change:  req.Change,
		Label:   req.Label,
	})
	if err != nil {
		var snap *patch.Snapshot
		if wf != nil {
			s := wf.Snapshot()
			snap = &s
		}
		h.writeError(w, err, snap)
		return
	}
	writeJSON(w, http.StatusOK, patchResponse{Workflow: wf.Snapshot(), Document: wf.Result()})
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	size := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, apperr.Validation("server.Preview", []string{fmt.Sprintf("size %q must be a positive integer", raw)}), nil)
			return
		}
		size = n
	}
	data, err := h.svc.Preview(r.Context(), r.PathValue("id"), size)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Assets lists download links for a document's renders and masks. Links
// the store cannot presign point back at the Asset route.
func (h *Handler) Assets(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	links, err := h.svc.Assets(r.Context(), docID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	doc, err := h.svc.Document(r.Context(), docID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	served := func(link, path string) string {
		if link != "" {
			return link
		}
		return "/api/documents/" + url.PathEscape(doc.DocID) + "/assets/" + path
	}
	links.Beauty = served(links.Beauty, doc.Assets.BeautyPNG)
	links.Seg = served(links.Seg, doc.Assets.SegPNG)
	for _, l := range doc.Layers {
		if obj, ok := l.(layerir.ObjectGroupLayer); ok {
			links.Masks[obj.ID] = served(links.Masks[obj.ID], obj.MaskRef)
		}
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *Handler) Asset(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	data, err := h.svc.Asset(r.Context(), r.PathValue("id"), path)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	ct := "application/octet-stream"
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		ct = "image/png"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid json body"
		if !errors.Is(err, io.EOF) {
			msg = "invalid json body: " + err.Error()
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: string(apperr.KindValidation), Message: msg}})
		return false
	}
	return true
}

type errorDetail struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type errorBody struct {
	Error    errorDetail     `json:"error"`
	Workflow *patch.Snapshot `json:"workflow,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error, wf *patch.Snapshot) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Workflow: wf}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Error = errorDetail{Kind: string(ae.Kind), Message: err.Error(), Details: ae.Details}
	} else {
		body.Error = errorDetail{Kind: "internal", Message: err.Error()}
	}
	if status >= http.StatusInternalServerError {
		h.log.Printf("http: %v", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
