package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jghoshh/missioncenter/backend/storage/persistent"
	"github.com/jghoshh/missioncenter/lib/utils"
	"github.com/jghoshh/missioncenter/models"
)

// consentVersion is recorded when a consent does not name one.
const consentVersion = "1.0"

// publicProfile hides the fields only the member themself may see.
func publicProfile(p models.UserProfile) models.UserProfile {
	p.Email = ""
	p.PrivacyConsent = nil
	return p
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())
	ctx, cancel := s.callContext(r)
	defer cancel()

	profile, err := s.store.FindProfile(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func validateProfile(p *models.UserProfile) error {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Email = strings.TrimSpace(p.Email)
	if p.DisplayName == "" {
		return badRequest("displayName is required")
	}
	if p.Email != "" && !utils.ValidateEmail(p.Email) {
		return badRequest("email is not valid")
	}
	return nil
}

func (s *Server) putMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	profile := &models.UserProfile{}
	if err := decodeJSON(r, profile); err != nil {
		writeError(w, err)
		return
	}
	if err := validateProfile(profile); err != nil {
		writeError(w, err)
		return
	}
	profile.UID = userID
	// Consent only changes through /me/consent.
	profile.PrivacyConsent = nil

	ctx, cancel := s.callContext(r)
	defer cancel()

	saved, err := s.store.SaveProfile(ctx, profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) postConsent(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	consent := models.PrivacyConsent{}
	if err := decodeJSON(r, &consent); err != nil {
		writeError(w, err)
		return
	}
	if consent.Method != "signup" && consent.Method != "modal" {
		writeError(w, badRequest(`method must be "signup" or "modal"`))
		return
	}
	if consent.Version == "" {
		consent.Version = consentVersion
	}
	if consent.AgreedAt.IsZero() {
		consent.AgreedAt = s.now()
	}

	ctx, cancel := s.callContext(r)
	defer cancel()

	if _, err := s.store.SavePrivacyConsent(ctx, userID, consent); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, consent)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	var (
		profiles []models.UserProfile
		err      error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		profiles, err = s.store.SearchProfiles(ctx, q)
	} else {
		profiles, err = s.store.FindProfiles(ctx)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]models.UserProfile, len(profiles))
	for i, p := range profiles {
		out[i] = publicProfile(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMember(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	profile, err := s.store.FindProfile(ctx, mux.Vars(r)["uid"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicProfile(*profile))
}

// callerProfile loads the caller's profile, reporting a missing one as a
// precondition failure rather than a missing resource.
func (s *Server) callerProfile(r *http.Request, userID string) (*models.UserProfile, error) {
	ctx, cancel := s.callContext(r)
	defer cancel()

	profile, err := s.store.FindProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newAPIError(http.StatusPreconditionFailed, "complete your profile first")
	}
	return profile, err
}
