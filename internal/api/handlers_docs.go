package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pagewatch/internal/library"
)

// handleListDocuments lists every document stored by the summarizer.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.library.ListDocuments(r.Context())
	if err != nil {
		s.log.Error("list documents failed", "error", err)
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

// handleLoadDocument replaces the current session with a stored document.
func (s *Server) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(w, r)
	if !ok {
		return
	}
	st, err := s.sessions.LoadDocument(r.Context(), id)
	if err != nil {
		libraryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   st,
		"snapshot": s.sessions.Snapshot(),
	})
}

// handleDeleteDocument deletes a stored document. If it is the document
// currently held by the session, the session is reset.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(w, r)
	if !ok {
		return
	}
	if err := s.library.DeleteDocument(r.Context(), id); err != nil {
		libraryError(w, err)
		return
	}

	reset := false
	if sel := s.sessions.Snapshot().Selected; sel != nil && sel.ID == id {
		s.sessions.Reset()
		reset = true
	}
	s.log.Info("document deleted", "doc_id", id, "session_reset", reset)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"deleted":       id,
		"session_reset": reset,
	})
}

// handleDocumentFile redirects to the summarizer's view of the original PDF.
func (s *Server) handleDocumentFile(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(w, r)
	if !ok {
		return
	}
	page := 0
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "page must be a non-negative integer", http.StatusBadRequest)
			return
		}
		page = n
	}
	http.Redirect(w, r, s.library.FileURL(id, page), http.StatusFound)
}

func docID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "docID"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "document id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func libraryError(w http.ResponseWriter, err error) {
	if errors.Is(err, library.ErrNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonError(w, err.Error(), http.StatusBadGateway)
}
