package server

import (
	"net/http"

	"github.com/jonathan/talent-match/internal/types"
)

type taxonomyResponse struct {
	Version int64                      `json:"version"`
	Entries []types.SkillTaxonomyEntry `json:"entries"`
}

type resolveResult struct {
	Query       string `json:"query"`
	Resolved    bool   `json:"resolved"`
	CanonicalID string `json:"canonicalId,omitempty"`
	Category    string `json:"category,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type resolveResponse struct {
	Version int64           `json:"version"`
	Results []resolveResult `json:"results"`
}

type synonymRequest struct {
	Synonym     string `json:"synonym"`
	CanonicalID string `json:"canonicalId"`
}

type taxonomyMutationResponse struct {
	Changed bool  `json:"changed"`
	Version int64 `json:"version"`
}

func (s *Server) handleListTaxonomy(w http.ResponseWriter, _ *http.Request) {
	snap := s.catalog.Taxonomy().Snapshot()
	s.jsonResponse(w, http.StatusOK, taxonomyResponse{Version: snap.Version(), Entries: snap.Entries()})
}

// handleResolve resolves every q parameter against a single taxonomy snapshot.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	queries := r.URL.Query()["q"]
	if len(queries) == 0 {
		s.fail(w, r, &ErrValidation{Field: "q", Message: "at least one query is required"})
		return
	}

	snap := s.catalog.Taxonomy().Snapshot()
	results := make([]resolveResult, 0, len(queries))
	for _, q := range queries {
		result := resolveResult{Query: q}
		if res, ok := snap.Resolve(q); ok {
			result.Resolved = true
			result.CanonicalID = res.CanonicalID
			result.Category = res.Category
			if entry, ok := snap.Entry(res.CanonicalID); ok {
				result.DisplayName = entry.DisplayName
			}
		}
		results = append(results, result)
	}
	s.jsonResponse(w, http.StatusOK, resolveResponse{Version: snap.Version(), Results: results})
}

func (s *Server) handleDefineSkill(w http.ResponseWriter, r *http.Request) {
	var entry types.SkillTaxonomyEntry
	if !s.decode(w, r, &entry, maxBodyBytes) {
		return
	}
	changed, err := s.catalog.DefineSkill(r.Context(), entry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, taxonomyMutationResponse{Changed: changed, Version: s.catalog.Taxonomy().Version()})
}

func (s *Server) handleRegisterSynonym(w http.ResponseWriter, r *http.Request) {
	var req synonymRequest
	if !s.decode(w, r, &req, maxBodyBytes) {
		return
	}
	changed, err := s.catalog.RegisterSynonym(r.Context(), req.Synonym, req.CanonicalID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, taxonomyMutationResponse{Changed: changed, Version: s.catalog.Taxonomy().Version()})
}
