package api

import (
	"net/http"
	"time"

	"cv-retrieval/internal/domain"
)

type IngestResponse struct {
	DocumentID string `json:"documentId"`
	Queued     bool   `json:"queued"`
}

type DocumentStatusResponse struct {
	DocumentID  string                  `json:"documentId"`
	Status      domain.ProcessingStatus `json:"status"`
	Error       string                  `json:"error,omitempty"`
	ProcessedAt *time.Time              `json:"processedAt,omitempty"`
}

// IngestHandler queues a document for parse, chunk and embed
// @Summary Ingest a resume
// @Description Starts the processing pipeline for an uploaded document. queued is false when a parse is already pending.
// @Tags documents
// @Produce json
// @Param X-Internal-Token header string true "Internal service token"
// @Param id path string true "Document id"
// @Success 202 {object} IngestResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /internal/documents/{id}/ingest [post]
func (a *API) IngestHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	queued, err := a.svc.Pipeline.Ingest(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, IngestResponse{DocumentID: id, Queued: queued})
}

// DocumentStatusHandler reports the processing status of a document
// @Summary Document processing status
// @Tags documents
// @Produce json
// @Param X-Internal-Token header string true "Internal service token"
// @Param id path string true "Document id"
// @Success 200 {object} DocumentStatusResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /internal/documents/{id}/status [get]
func (a *API) DocumentStatusHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := a.svc.Pipeline.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentStatusResponse{
		DocumentID:  doc.ID,
		Status:      doc.Status,
		Error:       doc.ProcessingError,
		ProcessedAt: doc.ProcessedAt,
	})
}
