package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/talent-match/internal/types"
)

type pairKey struct {
	jobID       string
	candidateID string
}

// Memory is a Store held in process memory. Values are copied on the way in
// and out so callers never share state with the store.
type Memory struct {
	mu              sync.RWMutex
	profiles        map[string]*types.CanonicalProfile
	jobs            map[string]*types.CanonicalJob
	matches         map[pairKey]*types.MatchRecord
	taxonomy        []types.SkillTaxonomyEntry
	taxonomyVersion int64
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]*types.CanonicalProfile),
		jobs:     make(map[string]*types.CanonicalJob),
		matches:  make(map[pairKey]*types.MatchRecord),
	}
}

func checkRevision(entity, id string, exists bool, current, expected int64) error {
	switch {
	case !exists && expected != 0:
		return &NotFoundError{Entity: entity, ID: id}
	case exists && current != expected:
		return &ConcurrentModificationError{Entity: entity, ID: id, Expected: expected, Current: current}
	}
	return nil
}

// GetProfile implements Store.
func (m *Memory) GetProfile(_ context.Context, candidateID string) (*types.CanonicalProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[candidateID]
	if !ok {
		return nil, &NotFoundError{Entity: EntityCandidate, ID: candidateID}
	}
	return CloneProfile(p), nil
}

// PutProfile implements Store.
func (m *Memory) PutProfile(_ context.Context, profile *types.CanonicalProfile, expectedRevision int64) (*types.CanonicalProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	existing, ok := m.profiles[profile.CandidateID]
	if ok {
		current = existing.Revision
	}
	if err := checkRevision(EntityCandidate, profile.CandidateID, ok, current, expectedRevision); err != nil {
		return nil, err
	}

	stored := CloneProfile(profile)
	stored.Revision = expectedRevision + 1
	m.profiles[stored.CandidateID] = stored
	return CloneProfile(stored), nil
}

// ListProfiles implements Store.
func (m *Memory) ListProfiles(_ context.Context) ([]*types.CanonicalProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.CanonicalProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, CloneProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateID < out[j].CandidateID })
	return out, nil
}

// DeleteProfile implements Store.
func (m *Memory) DeleteProfile(_ context.Context, candidateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[candidateID]; !ok {
		return &NotFoundError{Entity: EntityCandidate, ID: candidateID}
	}
	delete(m.profiles, candidateID)
	for key := range m.matches {
		if key.candidateID == candidateID {
			delete(m.matches, key)
		}
	}
	return nil
}

// GetJob implements Store.
func (m *Memory) GetJob(_ context.Context, jobID string) (*types.CanonicalJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, &NotFoundError{Entity: EntityJob, ID: jobID}
	}
	return CloneJob(j), nil
}

// PutJob implements Store.
func (m *Memory) PutJob(_ context.Context, job *types.CanonicalJob, expectedRevision int64) (*types.CanonicalJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	existing, ok := m.jobs[job.JobID]
	if ok {
		current = existing.Revision
	}
	if err := checkRevision(EntityJob, job.JobID, ok, current, expectedRevision); err != nil {
		return nil, err
	}

	stored := CloneJob(job)
	stored.Revision = expectedRevision + 1
	m.jobs[stored.JobID] = stored
	return CloneJob(stored), nil
}

// ListJobs implements Store.
func (m *Memory) ListJobs(_ context.Context) ([]*types.CanonicalJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.CanonicalJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, CloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

// DeleteJob implements Store.
func (m *Memory) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return &NotFoundError{Entity: EntityJob, ID: jobID}
	}
	delete(m.jobs, jobID)
	for key := range m.matches {
		if key.jobID == jobID {
			delete(m.matches, key)
		}
	}
	return nil
}

// GetMatch implements Store.
func (m *Memory) GetMatch(_ context.Context, jobID, candidateID string) (*types.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CloneMatch(m.matches[pairKey{jobID, candidateID}]), nil
}

// PutMatch implements Store.
func (m *Memory) PutMatch(_ context.Context, record *types.MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[pairKey{record.JobID, record.CandidateID}] = CloneMatch(record)
	return nil
}

func (m *Memory) collect(keep func(pairKey) bool, less func(a, b *types.MatchRecord) int) []*types.MatchRecord {
	out := make([]*types.MatchRecord, 0)
	for key, rec := range m.matches {
		if keep(key) {
			out = append(out, CloneMatch(rec))
		}
	}
	slices.SortFunc(out, less)
	return out
}

func byPair(a, b *types.MatchRecord) int {
	if c := strings.Compare(a.JobID, b.JobID); c != 0 {
		return c
	}
	return strings.Compare(a.CandidateID, b.CandidateID)
}

// ListMatchesForJob implements Store.
func (m *Memory) ListMatchesForJob(_ context.Context, jobID string) ([]*types.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(k pairKey) bool { return k.jobID == jobID }, byPair), nil
}

// ListMatchesForCandidate implements Store.
func (m *Memory) ListMatchesForCandidate(_ context.Context, candidateID string) ([]*types.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(k pairKey) bool { return k.candidateID == candidateID }, byPair), nil
}

// MarkStale implements Store.
func (m *Memory) MarkStale(_ context.Context, entity types.EntityType, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := 0
	for key, rec := range m.matches {
		if (entity == types.EntityJob && key.jobID == id) || (entity == types.EntityCandidate && key.candidateID == id) {
			if !rec.Stale {
				rec.Stale = true
				marked++
			}
		}
	}
	return marked, nil
}

// MarkAllStale implements Store.
func (m *Memory) MarkAllStale(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := 0
	for _, rec := range m.matches {
		if !rec.Stale {
			rec.Stale = true
			marked++
		}
	}
	return marked, nil
}

// ListStale implements Store. Records of deleted jobs are never recomputed and
// are left out. Records come back ordered by job then candidate id.
func (m *Memory) ListStale(_ context.Context, limit int) ([]*types.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.collect(func(k pairKey) bool {
		job, ok := m.jobs[k.jobID]
		return m.matches[k].Stale && ok && job.Status != types.JobStatusDeleted
	}, byPair)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveTaxonomy implements Store.
func (m *Memory) SaveTaxonomy(_ context.Context, entries []types.SkillTaxonomyEntry, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version <= m.taxonomyVersion {
		return nil
	}
	m.taxonomy = make([]types.SkillTaxonomyEntry, len(entries))
	for i, e := range entries {
		e.Synonyms = slices.Clone(e.Synonyms)
		m.taxonomy[i] = e
	}
	m.taxonomyVersion = version
	return nil
}

// LoadTaxonomy implements Store.
func (m *Memory) LoadTaxonomy(_ context.Context) ([]types.SkillTaxonomyEntry, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.SkillTaxonomyEntry, len(m.taxonomy))
	for i, e := range m.taxonomy {
		e.Synonyms = slices.Clone(e.Synonyms)
		out[i] = e
	}
	return out, m.taxonomyVersion, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
