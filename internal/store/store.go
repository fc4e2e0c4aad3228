// Package store defines the persistence contract for profiles, jobs, match records
// and the taxonomy, plus an in-memory implementation.
package store

import (
	"context"
	"slices"

	"github.com/jonathan/talent-match/internal/types"
)

// Store persists canonical entities and match records.
//
// Put operations take the revision the caller last observed: 0 creates the
// entity, any other value must equal the stored revision. The stored revision
// becomes expectedRevision+1.
type Store interface {
	GetProfile(ctx context.Context, candidateID string) (*types.CanonicalProfile, error)
	PutProfile(ctx context.Context, profile *types.CanonicalProfile, expectedRevision int64) (*types.CanonicalProfile, error)
	ListProfiles(ctx context.Context) ([]*types.CanonicalProfile, error)
	// DeleteProfile hard-removes a profile and its match records.
	DeleteProfile(ctx context.Context, candidateID string) error

	GetJob(ctx context.Context, jobID string) (*types.CanonicalJob, error)
	PutJob(ctx context.Context, job *types.CanonicalJob, expectedRevision int64) (*types.CanonicalJob, error)
	ListJobs(ctx context.Context) ([]*types.CanonicalJob, error)
	// DeleteJob hard-removes a job and its match records.
	DeleteJob(ctx context.Context, jobID string) error

	// GetMatch returns nil, nil when no record exists for the pair.
	GetMatch(ctx context.Context, jobID, candidateID string) (*types.MatchRecord, error)
	PutMatch(ctx context.Context, record *types.MatchRecord) error
	ListMatchesForJob(ctx context.Context, jobID string) ([]*types.MatchRecord, error)
	ListMatchesForCandidate(ctx context.Context, candidateID string) ([]*types.MatchRecord, error)
	MarkStale(ctx context.Context, entity types.EntityType, id string) (int, error)
	MarkAllStale(ctx context.Context) (int, error)
	// ListStale returns stale records whose job is not deleted, up to limit (0 means all).
	ListStale(ctx context.Context, limit int) ([]*types.MatchRecord, error)

	// SaveTaxonomy replaces the persisted vocabulary unless a newer version is already stored.
	SaveTaxonomy(ctx context.Context, entries []types.SkillTaxonomyEntry, version int64) error
	// LoadTaxonomy returns the persisted vocabulary; version 0 means nothing was saved.
	LoadTaxonomy(ctx context.Context) ([]types.SkillTaxonomyEntry, int64, error)

	Close() error
}

// CloneProfile returns a deep copy of p.
func CloneProfile(p *types.CanonicalProfile) *types.CanonicalProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Skills = slices.Clone(p.Skills)
	c.PreferredLocations = slices.Clone(p.PreferredLocations)
	c.PreferredJobTypes = slices.Clone(p.PreferredJobTypes)
	return &c
}

// CloneJob returns a deep copy of j.
func CloneJob(j *types.CanonicalJob) *types.CanonicalJob {
	if j == nil {
		return nil
	}
	c := *j
	c.RequiredSkills = slices.Clone(j.RequiredSkills)
	c.Locations = slices.Clone(j.Locations)
	return &c
}

// CloneMatch returns a deep copy of m.
func CloneMatch(m *types.MatchRecord) *types.MatchRecord {
	if m == nil {
		return nil
	}
	c := *m
	c.MatchedSkills = slices.Clone(m.MatchedSkills)
	c.MissingSkills = slices.Clone(m.MissingSkills)
	return &c
}
