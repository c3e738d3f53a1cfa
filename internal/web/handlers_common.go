package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pkoster/batchline/internal/core"
)

// operationInfo is the listing shape for one registered operation.
type operationInfo struct {
	Ref    string   `json:"ref"`
	Kind   string   `json:"kind"`
	Label  string   `json:"label"`
	Fields []string `json:"fields,omitempty"`
}

// handleListOperations returns every registered operation.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	defs := s.registry.All()
	infos := make([]operationInfo, len(defs))
	for i, def := range defs {
		infos[i] = operationInfo{
			Ref:    def.Ref,
			Kind:   string(def.Kind),
			Label:  def.Label,
			Fields: def.FieldNames(),
		}
	}
	writeJSON(w, infos)
}

// completeRequest is the JSON body of a job complete call.
type completeRequest struct {
	Status   string `json:"status"`
	Duration int64  `json:"durationMs"`
}

// handleComplete finalizes a job and deletes its session.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondBadRequest(w, "missing job token")
		return
	}

	req := completeRequest{Status: string(core.StatusComplete)}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondBadRequest(w, "invalid JSON body")
			return
		}
	}

	status := core.RunStatus(req.Status)
	switch status {
	case core.StatusComplete, core.StatusCancelled, core.StatusError:
	default:
		respondBadRequest(w, "status must be complete, cancelled, or error")
		return
	}

	stats, err := s.orchestrator.Complete(r.Context(), token, status,
		time.Duration(req.Duration)*time.Millisecond)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, stats)
}

// handleStats returns the stats snapshot for one operation.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		respondBadRequest(w, "missing operation ref")
		return
	}

	stats, err := s.orchestrator.Stats(r.Context(), ref)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, stats)
}
