package server

import (
	"net/http"
	"strconv"

	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/types"
)

type saveJobRequest struct {
	normalize.RawJob
	CompanyID string `json:"companyId"`
}

type saveJobResponse struct {
	Changed bool                `json:"changed"`
	Job     *types.CanonicalJob `json:"job"`
}

func (s *Server) handleNormalizeJob(w http.ResponseWriter, r *http.Request) {
	var raw normalize.RawJob
	if !s.decode(w, r, &raw, maxBodyBytes) {
		return
	}
	fields, err := s.catalog.NormalizeJob(raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, fields)
}

func (s *Server) handleSaveJob(w http.ResponseWriter, r *http.Request) {
	expected, err := ifMatch(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req saveJobRequest
	if !s.decode(w, r, &req, maxBodyBytes) {
		return
	}

	job, changed, err := s.catalog.SaveJob(r.Context(), r.PathValue("id"), req.CompanyID, req.RawJob, expected)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if changed && job.Revision == 1 {
		status = http.StatusCreated
	}
	setETag(w, job.Revision)
	s.jsonResponse(w, status, saveJobResponse{Changed: changed, Job: job})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.catalog.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setETag(w, job.Revision)
	s.jsonResponse(w, http.StatusOK, job)
}

// handleDeleteJob soft deletes by default. ?purge=true removes the job and its records.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	purge := false
	if raw := r.URL.Query().Get("purge"); raw != "" {
		var err error
		if purge, err = strconv.ParseBool(raw); err != nil {
			s.fail(w, r, &ErrValidation{Field: "purge", Message: "must be a boolean"})
			return
		}
	}

	if purge {
		if err := s.catalog.PurgeJob(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	job, err := s.catalog.DeleteJob(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setETag(w, job.Revision)
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleRankCandidates(w http.ResponseWriter, r *http.Request) {
	opts, err := rankOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.coordinator.RankCandidatesForJob(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, page)
}
