// Package types provides type definitions for structured data used throughout the matching engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"slices"
	"time"
)

// JobType is the employment arrangement of a job.
type JobType string

// Supported job types.
const (
	JobTypeFullTime   JobType = "full_time"
	JobTypePartTime   JobType = "part_time"
	JobTypeContract   JobType = "contract"
	JobTypeInternship JobType = "internship"
	JobTypeTemporary  JobType = "temporary"
)

// JobTypes lists every supported job type in canonical order.
var JobTypes = []JobType{
	JobTypeFullTime,
	JobTypePartTime,
	JobTypeContract,
	JobTypeInternship,
	JobTypeTemporary,
}

// Valid reports whether t is a supported job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeInternship, JobTypeTemporary:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a job posting.
type JobStatus string

// Job statuses. JobStatusDeleted is a soft delete.
const (
	JobStatusDraft   JobStatus = "draft"
	JobStatusActive  JobStatus = "active"
	JobStatusClosed  JobStatus = "closed"
	JobStatusDeleted JobStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusActive, JobStatusClosed, JobStatusDeleted:
		return true
	}
	return false
}

// RequiredSkill is a canonical skill requirement with an importance weight (1-5).
type RequiredSkill struct {
	SkillID    string `json:"skillId"`
	Category   string `json:"category"`
	Importance int    `json:"importance"`
}

// JobFields holds the normalized, mutable requirement set of a job.
type JobFields struct {
	Title                   string          `json:"title,omitempty"`
	RequiredSkills          []RequiredSkill `json:"requiredSkills"`
	MinYearsExperience      int             `json:"minYearsExperience"`
	PreferredEducationLevel EducationLevel  `json:"preferredEducationLevel,omitempty"`
	Locations               []string        `json:"locations"`
	JobType                 JobType         `json:"jobType"`
	Status                  JobStatus       `json:"status"`
}

// CanonicalJob is a persisted, normalized job posting.
type CanonicalJob struct {
	JobID     string `json:"jobId"`
	CompanyID string `json:"companyId"`
	JobFields
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Equal reports whether two requirement sets are identical. nil and empty slices compare equal.
func (f JobFields) Equal(other JobFields) bool {
	return f.Title == other.Title &&
		slices.Equal(f.RequiredSkills, other.RequiredSkills) &&
		f.MinYearsExperience == other.MinYearsExperience &&
		f.PreferredEducationLevel == other.PreferredEducationLevel &&
		slices.Equal(f.Locations, other.Locations) &&
		f.JobType == other.JobType &&
		f.Status == other.Status
}
