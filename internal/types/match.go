// Package types provides type definitions for structured data used throughout the matching engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// Component names as exposed in APIs and explanations.
const (
	ComponentSkill      = "skillMatch"
	ComponentExperience = "experienceMatch"
	ComponentEducation  = "educationMatch"
	ComponentLocation   = "locationMatch"
	ComponentJobType    = "jobTypeMatch"
)

// ComponentScores holds the five per-component scores, each 0-100.
type ComponentScores struct {
	SkillMatch      int `json:"skillMatch"`
	ExperienceMatch int `json:"experienceMatch"`
	EducationMatch  int `json:"educationMatch"`
	LocationMatch   int `json:"locationMatch"`
	JobTypeMatch    int `json:"jobTypeMatch"`
}

// AsMap returns the scores keyed by component name.
func (c ComponentScores) AsMap() map[string]int {
	return map[string]int{
		ComponentSkill:      c.SkillMatch,
		ComponentExperience: c.ExperienceMatch,
		ComponentEducation:  c.EducationMatch,
		ComponentLocation:   c.LocationMatch,
		ComponentJobType:    c.JobTypeMatch,
	}
}

// Revisions is the (job, candidate, taxonomy) triple a score was computed against.
type Revisions struct {
	JobRevision       int64 `json:"jobRevision"`
	CandidateRevision int64 `json:"candidateRevision"`
	TaxonomyVersion   int64 `json:"taxonomyVersion"`
}

// MatchRecord is the scored result for one (job, candidate) pair.
type MatchRecord struct {
	JobID               string          `json:"jobId"`
	CandidateID         string          `json:"candidateId"`
	OverallScore        int             `json:"overallScore"`
	ComponentScores     ComponentScores `json:"componentScores"`
	ComputedAtRevisions Revisions       `json:"computedAtRevisions"`
	MatchedSkills       []string        `json:"matchedSkills"`
	MissingSkills       []string        `json:"missingSkills"`
	Notes               string          `json:"notes"`
	Stale               bool            `json:"stale"`
	ComputedAt          time.Time       `json:"computedAt"`
}

// IsFreshFor reports whether the record was computed against exactly the given
// revisions and has not been invalidated since.
func (m *MatchRecord) IsFreshFor(current Revisions) bool {
	return m != nil && !m.Stale && m.ComputedAtRevisions == current
}

// MatchState is the lifecycle state of a match record.
type MatchState string

// Match states: fresh -> stale -> recomputing -> fresh.
const (
	MatchFresh       MatchState = "fresh"
	MatchStale       MatchState = "stale"
	MatchRecomputing MatchState = "recomputing"
)
