package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/session"
	"github.com/cbodonnell/tabletop/pkg/version"
)

// Session is the part of the session manager the admin API drives.
type Session interface {
	Status() session.Status
	Save(ctx context.Context) error
	Reload(ctx context.Context) error
}

type statusResponse struct {
	Version string `json:"version"`
	session.Status
}

type resultResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func HandleStatus(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Version: version.Get(),
			Status:  s.Status(),
		})
	}
}

// HandleSave writes a board snapshot through the session loop.
func HandleSave(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Save(r.Context()); err != nil {
			log.Error("failed to save: %v", err)
			writeJSON(w, http.StatusInternalServerError, resultResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resultResponse{OK: true})
	}
}

// HandleReload re-reads character data from the backing store and pushes it to every client.
func HandleReload(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Reload(r.Context()); err != nil {
			log.Error("failed to reload: %v", err)
			writeJSON(w, http.StatusInternalServerError, resultResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resultResponse{OK: true})
	}
}
