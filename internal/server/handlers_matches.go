package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jonathan/talent-match/internal/ranking"
	"github.com/jonathan/talent-match/internal/types"
)

type matchStatusResponse struct {
	JobID       string           `json:"jobId"`
	CandidateID string           `json:"candidateId"`
	State       types.MatchState `json:"state"`
}

type invalidateRequest struct {
	EntityType types.EntityType `json:"entityType"`
	EntityID   string           `json:"entityId"`
	All        bool             `json:"all"`
}

type invalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

// handleGetMatch returns a fresh record, recomputing when needed. With
// allow_stale=true the stored record is returned as is and flagged stale.
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	jobID, candidateID := r.PathValue("job_id"), r.PathValue("candidate_id")

	allowStale := false
	if raw := r.URL.Query().Get("allow_stale"); raw != "" {
		var err error
		if allowStale, err = strconv.ParseBool(raw); err != nil {
			s.fail(w, r, &ErrValidation{Field: "allow_stale", Message: "must be a boolean"})
			return
		}
	}

	if !allowStale {
		record, err := s.coordinator.EnsureFresh(r.Context(), jobID, candidateID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, record)
		return
	}

	record, err := s.coordinator.Peek(r.Context(), jobID, candidateID)
	var stale *ranking.StaleReadError
	switch {
	case errors.As(err, &stale):
		flagged := *record
		flagged.Stale = true
		s.jsonResponse(w, http.StatusOK, &flagged)
	case err != nil:
		s.fail(w, r, err)
	default:
		s.jsonResponse(w, http.StatusOK, record)
	}
}

func (s *Server) handleMatchStatus(w http.ResponseWriter, r *http.Request) {
	jobID, candidateID := r.PathValue("job_id"), r.PathValue("candidate_id")
	state, err := s.coordinator.Status(r.Context(), jobID, candidateID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, matchStatusResponse{JobID: jobID, CandidateID: candidateID, State: state})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if !s.decode(w, r, &req, maxBodyBytes) {
		return
	}

	var (
		n   int
		err error
	)
	switch {
	case req.All:
		n, err = s.coordinator.InvalidateAll(r.Context())
	case !req.EntityType.Valid():
		err = &ErrValidation{Field: "entityType", Message: "must be candidate or job"}
	case req.EntityID == "":
		err = &ErrValidation{Field: "entityId", Message: "is required"}
	default:
		n, err = s.coordinator.Invalidate(r.Context(), req.EntityType, req.EntityID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, invalidateResponse{Invalidated: n})
}
