package server

import (
	"net/http"
	"strconv"

	"github.com/jghoshh/missioncenter/backend/graph"
	"github.com/jghoshh/missioncenter/models"
)

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	ctx, cancel := s.callContext(r)
	defer cancel()

	progress, err := s.store.FindProgress(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if progress == nil {
		writeError(w, newAPIError(http.StatusNotFound, "no progress recorded"))
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) putProgress(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	progress := &models.UserMissionProgress{}
	if err := decodeJSON(r, progress); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	saved, err := s.resolver.SaveUserProgress(ctx, userID, progress)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	ctx, cancel := s.callContext(r)
	defer cancel()

	center, err := s.resolver.LoadMissionCenter(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, center)
}

func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	limit := graph.DefaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, graph.ErrInvalidLimit)
			return
		}
		limit = n
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	activity, err := s.resolver.RecentActivity(ctx, userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}
