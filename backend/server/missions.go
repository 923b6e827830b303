package server

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/models"
)

func (s *Server) listActiveMissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	missions, err := s.catalog.ListActive(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, missions)
}

func (s *Server) listAllMissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	missions, err := s.store.FindMissions(ctx, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, missions)
}

func (s *Server) getMission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	mission, err := s.store.FindMission(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (s *Server) getMissionByWeek(w http.ResponseWriter, r *http.Request) {
	week, err := strconv.Atoi(mux.Vars(r)["week"])
	if err != nil {
		writeError(w, badRequest("week must be a number"))
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	mission, err := s.store.FindMissionByWeek(ctx, week)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

// validateMission checks the fields an administrator must provide.
func validateMission(m *models.Mission) error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return badRequest("title is required")
	}
	if m.Week < 0 {
		return badRequest("week must not be negative")
	}
	if m.StartDate.IsZero() || m.EndDate.IsZero() {
		return badRequest("startDate and endDate are required")
	}
	if m.EndDate.Before(m.StartDate) {
		return badRequest("endDate must not be before startDate")
	}
	return nil
}

func (s *Server) createMission(w http.ResponseWriter, r *http.Request) {
	mission := &models.Mission{}
	if err := decodeJSON(r, mission); err != nil {
		writeError(w, err)
		return
	}
	if err := validateMission(mission); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	created, err := s.store.AddMission(ctx, mission)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateCatalog(r)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateMission(w http.ResponseWriter, r *http.Request) {
	update := storage.MissionUpdate{}
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, err)
		return
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		writeError(w, badRequest("title must not be empty"))
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	id := mux.Vars(r)["id"]
	if update.StartDate != nil || update.EndDate != nil {
		current, err := s.store.FindMission(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		start, end := current.StartDate, current.EndDate
		if update.StartDate != nil {
			start = *update.StartDate
		}
		if update.EndDate != nil {
			end = *update.EndDate
		}
		if end.Before(start) {
			writeError(w, badRequest("endDate must not be before startDate"))
			return
		}
	}

	if _, err := s.store.UpdateMission(ctx, id, update); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateCatalog(r)

	mission, err := s.store.FindMission(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (s *Server) deleteMission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	if _, err := s.store.DeleteMission(ctx, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateCatalog(r)
	w.WriteHeader(http.StatusNoContent)
}

// invalidateCatalog drops the cached active list. A failure only delays the
// change until the cache entry expires, so it is logged and not reported.
func (s *Server) invalidateCatalog(r *http.Request) {
	if err := s.catalog.Invalidate(r.Context()); err != nil {
		log.Printf("catalog invalidation failed: %v", err)
	}
}
