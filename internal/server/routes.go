package server

import (
	"log"
	"net/http"
)

func NewMux(h *Handler, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /api/brief", h.Brief)
	mux.HandleFunc("GET /api/documents", h.ListDocuments)
	mux.HandleFunc("POST /api/documents", h.CreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", h.GetDocument)
	mux.HandleFunc("PATCH /api/documents/{id}/layers/{layerId}", h.UpdateLayer)
	mux.HandleFunc("POST /api/documents/{id}/layers/{layerId}/patch", h.PatchLayer)
	mux.HandleFunc("GET /api/documents/{id}/preview", h.Preview)
	mux.HandleFunc("GET /api/documents/{id}/assets", h.Assets)
	mux.HandleFunc("GET /api/documents/{id}/assets/{path...}", h.Asset)
	mux.HandleFunc("GET /api/documents/{id}/events", h.Events)

	return CORS(AccessLog(logger)(mux))
}
