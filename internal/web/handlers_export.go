package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pkoster/batchline/internal/core"
)

// exportStartRequest is the JSON body of an export start call.
// The filters and date range are snapshotted once; later batch calls carry
// only the token.
type exportStartRequest struct {
	Filters  map[string]string `json:"filters"`
	DateFrom string            `json:"dateFrom"`
	DateTo   string            `json:"dateTo"`
}

// handleExportStart creates an export job session.
func (s *Server) handleExportStart(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		respondBadRequest(w, "missing operation ref")
		return
	}

	var req exportStartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondBadRequest(w, "invalid JSON body")
			return
		}
	}

	result, err := s.orchestrator.StartExport(r.Context(), ref, core.Snapshot{
		Filters:  req.Filters,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}

// handleExportBatch appends one batch of rows to the export file.
// The batch index comes from the "batch" query parameter.
func (s *Server) handleExportBatch(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondBadRequest(w, "missing job token")
		return
	}

	batchIndex, err := strconv.Atoi(r.URL.Query().Get("batch"))
	if err != nil || batchIndex < 0 {
		respondBadRequest(w, "batch must be a non-negative integer")
		return
	}

	result, err := s.orchestrator.ExportBatch(r.Context(), token, batchIndex)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}

// handleDownload streams a completed export. The download is one-shot:
// the file and session are deleted once the response is written.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		respondBadRequest(w, "missing download ref")
		return
	}

	reader, name, err := s.orchestrator.Download(r.Context(), ref)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	io.Copy(w, reader)
}
