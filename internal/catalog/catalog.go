// Package catalog provides the mutation service for profiles, jobs and the taxonomy.
// Mutations of one entity are applied in submission order; each effective
// change is persisted and then announced on the event bus.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/jonathan/talent-match/internal/events"
	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/taxonomy"
	"github.com/jonathan/talent-match/internal/types"
)

const taxonomyKey = "taxonomy"

// Catalog owns every write to canonical entities.
type Catalog struct {
	store      store.Store
	taxonomy   *taxonomy.Taxonomy
	normalizer *normalize.Normalizer
	bus        EventBus.Bus
	queue      *keyedQueue
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) { c.logger = logger.Named(l, "catalog") }
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// New creates a Catalog.
func New(st store.Store, tax *taxonomy.Taxonomy, norm *normalize.Normalizer, bus EventBus.Bus, opts ...Option) *Catalog {
	c := &Catalog{
		store:      st,
		taxonomy:   tax,
		normalizer: norm,
		bus:        bus,
		queue:      newKeyedQueue(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Taxonomy returns the vocabulary the catalog mutates.
func (c *Catalog) Taxonomy() *taxonomy.Taxonomy {
	return c.taxonomy
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &normalize.ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// checkExpected enforces an If-Match style precondition against the stored revision.
func checkExpected(entity, id string, expected *int64, current int64) error {
	if expected == nil || *expected == current {
		return nil
	}
	if current == 0 {
		return &store.NotFoundError{Entity: entity, ID: id}
	}
	return &store.ConcurrentModificationError{Entity: entity, ID: id, Expected: *expected, Current: current}
}

// NormalizeProfile canonicalizes raw fields against the current taxonomy without persisting.
func (c *Catalog) NormalizeProfile(raw normalize.RawProfile) (*types.ProfileFields, error) {
	return c.normalizer.NormalizeProfile(raw, c.taxonomy.Snapshot())
}

// NormalizeJob canonicalizes a raw requirement set against the current taxonomy without persisting.
func (c *Catalog) NormalizeJob(raw normalize.RawJob) (*types.JobFields, error) {
	return c.normalizer.NormalizeJob(raw, c.taxonomy.Snapshot())
}

// SaveProfile normalizes and stores a profile. Saving identical fields is a
// no-op that returns the stored profile with changed=false.
func (c *Catalog) SaveProfile(ctx context.Context, candidateID string, raw normalize.RawProfile, expectedRevision *int64) (*types.CanonicalProfile, bool, error) {
	if err := requireID("candidateId", candidateID); err != nil {
		return nil, false, err
	}
	release, err := c.queue.acquire(ctx, string(types.EntityCandidate)+":"+candidateID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	fields, err := c.normalizer.NormalizeProfile(raw, c.taxonomy.Snapshot())
	if err != nil {
		return nil, false, err
	}

	existing, err := c.store.GetProfile(ctx, candidateID)
	var notFound *store.NotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, false, fmt.Errorf("failed to load profile: %w", err)
	}

	var current int64
	if existing != nil {
		current = existing.Revision
	}
	if err := checkExpected(store.EntityCandidate, candidateID, expectedRevision, current); err != nil {
		return nil, false, err
	}
	if existing != nil && existing.ProfileFields.Equal(*fields) {
		return existing, false, nil
	}

	saved, err := c.store.PutProfile(ctx, &types.CanonicalProfile{
		CandidateID:   candidateID,
		ProfileFields: *fields,
		UpdatedAt:     c.now(),
	}, current)
	if err != nil {
		return nil, false, err
	}

	c.logger.Info("profile saved",
		zap.String(logger.FieldCandidateID, candidateID),
		zap.Int64("revision", saved.Revision))
	c.bus.Publish(events.ProfileChangedTopic, events.ProfileChanged{CandidateID: candidateID, Revision: saved.Revision})
	return saved, true, nil
}

// GetProfile returns a stored profile.
func (c *Catalog) GetProfile(ctx context.Context, candidateID string) (*types.CanonicalProfile, error) {
	return c.store.GetProfile(ctx, candidateID)
}

// DeleteProfile hard-removes a profile and its match records.
func (c *Catalog) DeleteProfile(ctx context.Context, candidateID string) error {
	release, err := c.queue.acquire(ctx, string(types.EntityCandidate)+":"+candidateID)
	if err != nil {
		return err
	}
	defer release()

	if err := c.store.DeleteProfile(ctx, candidateID); err != nil {
		return err
	}
	c.logger.Info("profile removed", zap.String(logger.FieldCandidateID, candidateID))
	c.bus.Publish(events.ProfileRemovedTopic, events.ProfileRemoved{CandidateID: candidateID})
	return nil
}

// SaveJob normalizes and stores a job posting.
func (c *Catalog) SaveJob(ctx context.Context, jobID, companyID string, raw normalize.RawJob, expectedRevision *int64) (*types.CanonicalJob, bool, error) {
	if err := requireID("jobId", jobID); err != nil {
		return nil, false, err
	}
	release, err := c.queue.acquire(ctx, string(types.EntityJob)+":"+jobID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	fields, err := c.normalizer.NormalizeJob(raw, c.taxonomy.Snapshot())
	if err != nil {
		return nil, false, err
	}

	existing, err := c.loadJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}

	var current int64
	if existing != nil {
		current = existing.Revision
		if companyID == "" {
			companyID = existing.CompanyID
		}
	}
	if err := checkExpected(store.EntityJob, jobID, expectedRevision, current); err != nil {
		return nil, false, err
	}
	if existing != nil && existing.CompanyID == companyID && existing.JobFields.Equal(*fields) {
		return existing, false, nil
	}

	return c.putJob(ctx, &types.CanonicalJob{
		JobID:     jobID,
		CompanyID: companyID,
		JobFields: *fields,
	}, current)
}

func (c *Catalog) loadJob(ctx context.Context, jobID string) (*types.CanonicalJob, error) {
	existing, err := c.store.GetJob(ctx, jobID)
	var notFound *store.NotFoundError
	if errors.As(err, &notFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return existing, nil
}

func (c *Catalog) putJob(ctx context.Context, job *types.CanonicalJob, expected int64) (*types.CanonicalJob, bool, error) {
	job.UpdatedAt = c.now()
	saved, err := c.store.PutJob(ctx, job, expected)
	if err != nil {
		return nil, false, err
	}

	c.logger.Info("job saved",
		zap.String(logger.FieldJobID, saved.JobID),
		zap.Int64("revision", saved.Revision),
		zap.String(logger.FieldStatus, string(saved.Status)))
	c.bus.Publish(events.JobChangedTopic, events.JobChanged{
		JobID:    saved.JobID,
		Revision: saved.Revision,
		Status:   string(saved.Status),
	})
	return saved, true, nil
}

// GetJob returns a stored job, including soft-deleted ones.
func (c *Catalog) GetJob(ctx context.Context, jobID string) (*types.CanonicalJob, error) {
	return c.store.GetJob(ctx, jobID)
}

// DeleteJob soft-deletes a job by moving it to status deleted. Its match
// records are kept.
func (c *Catalog) DeleteJob(ctx context.Context, jobID string) (*types.CanonicalJob, error) {
	release, err := c.queue.acquire(ctx, string(types.EntityJob)+":"+jobID)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if existing.Status == types.JobStatusDeleted {
		return existing, nil
	}

	existing.Status = types.JobStatusDeleted
	saved, _, err := c.putJob(ctx, existing, existing.Revision)
	return saved, err
}

// PurgeJob hard-removes a job and its match records.
func (c *Catalog) PurgeJob(ctx context.Context, jobID string) error {
	release, err := c.queue.acquire(ctx, string(types.EntityJob)+":"+jobID)
	if err != nil {
		return err
	}
	defer release()

	if err := c.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	c.logger.Info("job removed", zap.String(logger.FieldJobID, jobID))
	c.bus.Publish(events.JobRemovedTopic, events.JobRemoved{JobID: jobID})
	return nil
}

// DefineSkill adds or replaces a taxonomy entry.
func (c *Catalog) DefineSkill(ctx context.Context, entry types.SkillTaxonomyEntry) (bool, error) {
	return c.mutateTaxonomy(ctx, func() (bool, error) {
		return c.taxonomy.Define(entry)
	})
}

// RegisterSynonym maps a synonym onto an existing canonical skill.
func (c *Catalog) RegisterSynonym(ctx context.Context, synonym, canonicalID string) (bool, error) {
	return c.mutateTaxonomy(ctx, func() (bool, error) {
		return c.taxonomy.Register(synonym, canonicalID)
	})
}

func (c *Catalog) mutateTaxonomy(ctx context.Context, fn func() (bool, error)) (bool, error) {
	release, err := c.queue.acquire(ctx, taxonomyKey)
	if err != nil {
		return false, err
	}
	defer release()

	changed, err := fn()
	if err != nil || !changed {
		return false, err
	}
	if err := c.persistTaxonomy(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (c *Catalog) persistTaxonomy(ctx context.Context) error {
	snap := c.taxonomy.Snapshot()
	if err := c.store.SaveTaxonomy(ctx, snap.Entries(), snap.Version()); err != nil {
		return fmt.Errorf("failed to persist taxonomy: %w", err)
	}
	c.logger.Info("taxonomy changed", zap.Int64(logger.FieldTaxonomyVersion, snap.Version()))
	c.bus.Publish(events.TaxonomyChangedTopic, events.TaxonomyChanged{Version: snap.Version()})
	return nil
}

// LoadTaxonomy restores the persisted vocabulary, or loads seed and persists
// it when nothing has been saved yet.
func (c *Catalog) LoadTaxonomy(ctx context.Context, seed []byte) error {
	release, err := c.queue.acquire(ctx, taxonomyKey)
	if err != nil {
		return err
	}
	defer release()

	entries, version, err := c.store.LoadTaxonomy(ctx)
	if err != nil {
		return fmt.Errorf("failed to load taxonomy: %w", err)
	}
	if version > 0 {
		if err := c.taxonomy.Restore(entries, version); err != nil {
			return fmt.Errorf("failed to restore taxonomy: %w", err)
		}
		c.logger.Info("taxonomy restored",
			zap.Int64(logger.FieldTaxonomyVersion, version),
			zap.Int("entries", len(entries)))
		return nil
	}

	changed, err := c.taxonomy.LoadSeed(seed)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return c.persistTaxonomy(ctx)
}
