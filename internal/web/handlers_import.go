package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// handleImportStart accepts a multipart upload with the CSV file and the
// field mapping, stores the file, and creates an import job session.
//
// Form fields:
//   - file: the CSV upload
//   - mapping: JSON object, canonical field name -> CSV column name
func (s *Server) handleImportStart(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		respondBadRequest(w, "missing operation ref")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Jobs.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondBadRequest(w, "invalid multipart form or file too large")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondBadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	var fieldMap map[string]string
	if mapping := r.FormValue("mapping"); mapping != "" {
		if err := json.Unmarshal([]byte(mapping), &fieldMap); err != nil {
			respondBadRequest(w, "mapping must be a JSON object of field to column names")
			return
		}
	}

	filePath, err := s.saveUpload(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.orchestrator.StartImport(r.Context(), ref, filePath, fieldMap)
	if err != nil {
		// A failed start leaves no session; don't leave the file either.
		os.Remove(filePath)
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}

// handleImportBatch processes one slice of the uploaded file.
// The data-row offset comes from the "offset" query parameter.
func (s *Server) handleImportBatch(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondBadRequest(w, "missing job token")
		return
	}

	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		respondBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.orchestrator.ImportBatch(r.Context(), token, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, result)
}

// saveUpload stores the uploaded CSV under a fresh UUID name so concurrent
// uploads never collide.
func (s *Server) saveUpload(src io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.Jobs.UploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	path := filepath.Join(s.cfg.Jobs.UploadsDir, uuid.New().String()+".csv")
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("store upload: %w", err)
	}

	return path, nil
}
