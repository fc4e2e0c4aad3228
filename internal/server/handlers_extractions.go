package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/jonathan/talent-match/internal/extraction"
)

type submitExtractionRequest struct {
	extraction.DocumentRef
	Mode    string `json:"mode,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type submitExtractionResponse struct {
	ID    string              `json:"id"`
	State extraction.JobState `json:"state"`
}

// handleSubmitExtraction queues an extraction and answers 202 with the job id.
// The outcome, including failures, is read from GET /extractions/{id}.
func (s *Server) handleSubmitExtraction(w http.ResponseWriter, r *http.Request) {
	if s.extractions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "extraction is not configured")
		return
	}

	var req submitExtractionRequest
	if !s.decode(w, r, &req, maxDocumentBytes) {
		return
	}
	if req.URI == "" && len(req.Content) == 0 {
		s.fail(w, r, &ErrValidation{Field: "uri", Message: "uri or content is required"})
		return
	}

	var mode extraction.Mode
	if req.Mode != "" {
		parsed, err := extraction.ParseMode(req.Mode)
		if err != nil {
			s.fail(w, r, &ErrValidation{Field: "mode", Message: err.Error()})
			return
		}
		mode = parsed
	}

	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			s.fail(w, r, &ErrValidation{Field: "timeout", Message: "must be a positive duration"})
			return
		}
		timeout = d
	}

	id, err := s.extractions.Submit(req.DocumentRef, mode, timeout)
	if errors.Is(err, extraction.ErrManagerClosed) {
		s.errorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	state := extraction.JobPending
	if job, ok := s.extractions.Get(id); ok {
		state = job.State
	}
	w.Header().Set("Location", "/extractions/"+id)
	s.jsonResponse(w, http.StatusAccepted, submitExtractionResponse{ID: id, State: state})
}

func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	if s.extractions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "extraction is not configured")
		return
	}
	job, ok := s.extractions.Get(r.PathValue("id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "extraction not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleCancelExtraction cancels a pending or running extraction. A finished
// job is returned unchanged.
func (s *Server) handleCancelExtraction(w http.ResponseWriter, r *http.Request) {
	if s.extractions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "extraction is not configured")
		return
	}
	job, ok := s.extractions.Cancel(r.PathValue("id"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "extraction not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}
