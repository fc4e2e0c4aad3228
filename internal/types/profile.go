// Package types provides type definitions for structured data used throughout the matching engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"slices"
	"time"
)

// CategoryUnclassified tags skills that did not resolve through the taxonomy.
const CategoryUnclassified = "unclassified"

// LocationRemote is the location sentinel that matches any location.
const LocationRemote = "remote"

// EntityType identifies the referent of a match record.
type EntityType string

// Entity types that can be invalidated.
const (
	EntityCandidate EntityType = "candidate"
	EntityJob       EntityType = "job"
)

// Valid reports whether t names a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityCandidate || t == EntityJob
}

// CandidateSkill is a canonical skill held by a candidate.
// Proficiency is 0 when not stated, otherwise 1-5.
type CandidateSkill struct {
	SkillID     string `json:"skillId"`
	Category    string `json:"category"`
	Proficiency int    `json:"proficiency,omitempty"`
}

// ProfileFields holds the normalized, mutable attributes of a job seeker.
type ProfileFields struct {
	Headline           string           `json:"headline,omitempty"`
	CurrentPosition    string           `json:"currentPosition,omitempty"`
	CurrentCompany     string           `json:"currentCompany,omitempty"`
	Skills             []CandidateSkill `json:"skills"`
	YearsOfExperience  int              `json:"yearsOfExperience"`
	EducationLevel     EducationLevel   `json:"educationLevel,omitempty"`
	PreferredLocations []string         `json:"preferredLocations"`
	PreferredJobTypes  []JobType        `json:"preferredJobTypes"`
	ActivelyLooking    bool             `json:"activelyLooking"`
}

// CanonicalProfile is a persisted, normalized job seeker profile.
type CanonicalProfile struct {
	CandidateID string `json:"candidateId"`
	ProfileFields
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Equal reports whether two field sets are identical. nil and empty slices compare equal.
func (f ProfileFields) Equal(other ProfileFields) bool {
	return f.Headline == other.Headline &&
		f.CurrentPosition == other.CurrentPosition &&
		f.CurrentCompany == other.CurrentCompany &&
		slices.Equal(f.Skills, other.Skills) &&
		f.YearsOfExperience == other.YearsOfExperience &&
		f.EducationLevel == other.EducationLevel &&
		slices.Equal(f.PreferredLocations, other.PreferredLocations) &&
		slices.Equal(f.PreferredJobTypes, other.PreferredJobTypes) &&
		f.ActivelyLooking == other.ActivelyLooking
}
