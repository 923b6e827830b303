package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/lib/tags"
	"github.com/jghoshh/missioncenter/models"
)

// newTagGroupRequest is the body of POST /taggroups.
type newTagGroupRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SnsType     models.SnsType `json:"snsType"`
}

// newApplication builds the caller's sign-up for a group on platform,
// using the handle registered on their profile.
func (s *Server) newApplication(profile *models.UserProfile, platform models.SnsType) models.TagGroupApplication {
	app := models.TagGroupApplication{
		UserID:          profile.UID,
		UserDisplayName: profile.DisplayName,
		UserSnsAccount:  profile.SocialMedia.Handle(platform),
		AppliedAt:       s.now(),
	}
	if platform == models.SnsInstagram {
		app.UserInstagram = app.UserSnsAccount
	}
	return app
}

func (s *Server) listTagGroups(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, badRequest("active must be true or false"))
			return
		}
		activeOnly = v
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	groups, err := s.store.FindTagGroups(ctx, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) myTagGroups(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	ctx, cancel := s.callContext(r)
	defer cancel()

	groups, err := s.store.FindTagGroupsByApplicant(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) createTagGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	req := newTagGroupRequest{}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, badRequest("name is required"))
		return
	}
	if req.SnsType == "" {
		req.SnsType = models.SnsInstagram
	}
	if !req.SnsType.Valid() {
		writeError(w, badRequest("unsupported snsType"))
		return
	}

	profile, err := s.callerProfile(r, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	group := &models.TagGroup{
		Name:          req.Name,
		Description:   strings.TrimSpace(req.Description),
		SnsType:       req.SnsType,
		CreatedBy:     userID,
		CreatedByName: profile.DisplayName,
		IsActive:      true,
		// The creator is always the first applicant.
		Applications: []models.TagGroupApplication{s.newApplication(profile, req.SnsType)},
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	created, err := s.store.AddTagGroup(ctx, group)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getTagGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	group, err := s.store.FindTagGroup(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// ownedTagGroup loads the group and checks the caller may change it.
func (s *Server) ownedTagGroup(r *http.Request, userID string) (*models.TagGroup, error) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	group, err := s.store.FindTagGroup(ctx, mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	if group.CreatedBy != userID && !s.isAdmin(userID) {
		return nil, newAPIError(http.StatusForbidden, "only the creator can change this tag group")
	}
	return group, nil
}

func (s *Server) updateTagGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	update := storage.TagGroupUpdate{}
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, err)
		return
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		writeError(w, badRequest("name must not be empty"))
		return
	}

	group, err := s.ownedTagGroup(r, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	if _, err := s.store.UpdateTagGroup(ctx, group.ID, update); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.store.FindTagGroup(ctx, group.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteTagGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	group, err := s.ownedTagGroup(r, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	if _, err := s.store.DeleteTagGroup(ctx, group.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyTagGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	groupID := mux.Vars(r)["id"]

	profile, err := s.callerProfile(r, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	group, err := s.store.FindTagGroup(ctx, groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !group.IsActive {
		writeError(w, newAPIError(http.StatusConflict, "tag group is closed"))
		return
	}

	if err := s.store.AddApplication(ctx, groupID, s.newApplication(profile, group.SnsType)); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.store.FindTagGroup(ctx, groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, updated)
}

func (s *Server) cancelApplication(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	ctx, cancel := s.callContext(r)
	defer cancel()

	if err := s.store.RemoveApplication(ctx, mux.Vars(r)["id"], userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tagGroupTags renders the group's tag list as plain text, either every
// applicant or a random sample of tags.RandomSampleSize.
func (s *Server) tagGroupTags(w http.ResponseWriter, r *http.Request) {
	random := false
	if raw := r.URL.Query().Get("random"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, badRequest("random must be true or false"))
			return
		}
		random = v
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	group, err := s.store.FindTagGroup(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	var out string
	if random {
		out = s.sampler.GenerateRandom(group.Applications, group.SnsType)
	} else {
		out = tags.Generate(group.Applications, group.SnsType)
	}
	writeText(w, http.StatusOK, out)
}
