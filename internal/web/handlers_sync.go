package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleSyncStart creates a sync job session against the external API.
func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		respondBadRequest(w, "missing operation ref")
		return
	}

	result, err := s.orchestrator.StartSync(r.Context(), ref)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}

// handleSyncBatch fetches and processes one remote page. The "cursor"
// query parameter carries the opaque cursor from the previous response,
// empty for the first batch.
func (s *Server) handleSyncBatch(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondBadRequest(w, "missing job token")
		return
	}

	cursor := r.URL.Query().Get("cursor")

	result, err := s.orchestrator.SyncBatch(r.Context(), token, cursor)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}
