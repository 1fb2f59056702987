package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pagewatch/internal/session"
	"github.com/dgallion1/pagewatch/internal/upload"
)

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, upload.ErrTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, upload.ErrNoFile.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	f, err := upload.Read(header.Filename, file, s.cfg.MaxUploadBytes)
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.sessions.Start(s.baseCtx, f)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"session_id": id,
		"filename":   f.Name,
		"pages":      f.Pages,
		"status":     s.sessions.Status(),
		"ws_url":     "/api/session/ws",
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   s.sessions.Status(),
		"snapshot": s.sessions.Snapshot(),
	})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	st := s.sessions.Cancel()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": st})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "pageNum"))
	if err != nil || n <= 0 {
		jsonError(w, "page number must be a positive integer", http.StatusBadRequest)
		return
	}
	page, ok := s.sessions.Page(n)
	if !ok {
		jsonError(w, "page not found", http.StatusNotFound)
		return
	}
	snap := s.sessions.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"page":              page,
		"section_summaries": snap.SectionSummariesForPage(n),
	})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, s.currentNotification)
}

// currentNotification describes the session as it stands, for a client that
// joins mid-session. A finished session is reported with its terminal kind.
func (s *Server) currentNotification() session.Notification {
	st := s.sessions.Status()
	kind := session.NotifySnapshot
	if st.State.Terminal() {
		kind = session.NotifyCompleted
		if st.State == session.StateFailed {
			kind = session.NotifyFailed
		}
	}
	return session.Notification{
		Kind:      kind,
		SessionID: st.SessionID,
		Snapshot:  s.sessions.Snapshot(),
		Reason:    st.Error,
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
