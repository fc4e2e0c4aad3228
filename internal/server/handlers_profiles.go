package server

import (
	"net/http"

	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/types"
)

type saveProfileResponse struct {
	Changed bool                    `json:"changed"`
	Profile *types.CanonicalProfile `json:"profile"`
}

// handleNormalizeProfile returns the canonical fields without persisting them.
func (s *Server) handleNormalizeProfile(w http.ResponseWriter, r *http.Request) {
	var raw normalize.RawProfile
	if !s.decode(w, r, &raw, maxBodyBytes) {
		return
	}
	fields, err := s.catalog.NormalizeProfile(raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, fields)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	expected, err := ifMatch(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var raw normalize.RawProfile
	if !s.decode(w, r, &raw, maxBodyBytes) {
		return
	}

	profile, changed, err := s.catalog.SaveProfile(r.Context(), r.PathValue("id"), raw, expected)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if changed && profile.Revision == 1 {
		status = http.StatusCreated
	}
	setETag(w, profile.Revision)
	s.jsonResponse(w, status, saveProfileResponse{Changed: changed, Profile: profile})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.catalog.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setETag(w, profile.Revision)
	s.jsonResponse(w, http.StatusOK, profile)
}

// handleDeleteProfile removes the candidate and every match record that references it.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteProfile(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRankJobs(w http.ResponseWriter, r *http.Request) {
	opts, err := rankOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.coordinator.RankJobsForCandidate(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, page)
}
