// Package ranking keeps match records fresh and ranks candidates and jobs by them.
//
// A record is fresh when it was computed against the current job revision,
// candidate revision and taxonomy version and has not been invalidated since.
// Recomputation of one (job, candidate) pair is single-flight: concurrent
// callers share one scoring run and its result.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/talent-match/internal/events"
	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/scoring"
	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/taxonomy"
	"github.com/jonathan/talent-match/internal/types"
)

const (
	// DefaultLimit is the page size used when RankOptions.Limit is unset.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 500
	// DefaultConcurrency bounds parallel recomputation in ranking and sweeps.
	DefaultConcurrency = 8

	triggerRequest = "request"
	triggerSweep   = "sweep"

	eventTimeout = 30 * time.Second
)

// Scorer computes a match record. scoring.Engine is the production implementation.
type Scorer interface {
	Score(job *types.CanonicalJob, candidate *types.CanonicalProfile, vocab scoring.Vocabulary) types.MatchRecord
}

// RankOptions controls pagination and filtering of a ranking.
type RankOptions struct {
	Limit           int
	Offset          int
	IncludeInactive bool
}

func (o RankOptions) normalized() RankOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Page is one window of a ranking.
type Page struct {
	Items  []*types.MatchRecord `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// SweepResult summarizes one RecomputeStale pass.
type SweepResult struct {
	Refreshed int `json:"refreshed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Coordinator serves fresh match records and rankings.
type Coordinator struct {
	store       store.Store
	taxonomy    *taxonomy.Taxonomy
	scorer      Scorer
	group       singleflight.Group
	mu          sync.Mutex
	inflight    map[string]int
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logger.Named(l, "ranking") }
}

// WithClock overrides the time source used for ComputedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithConcurrency bounds parallel recomputation. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a Coordinator.
func New(st store.Store, tax *taxonomy.Taxonomy, scorer Scorer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       st,
		taxonomy:    tax,
		scorer:      scorer,
		inflight:    make(map[string]int),
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func flightKey(jobID, candidateID string) string {
	return jobID + "\x00" + candidateID
}

func revisionsOf(job *types.CanonicalJob, profile *types.CanonicalProfile, snap *taxonomy.Snapshot) types.Revisions {
	return types.Revisions{
		JobRevision:       job.Revision,
		CandidateRevision: profile.Revision,
		TaxonomyVersion:   snap.Version(),
	}
}

func pairID(jobID, candidateID string) string {
	return jobID + "/" + candidateID
}

// loadJob returns the job, or JobUnavailableError when it is soft-deleted.
func (c *Coordinator) loadJob(ctx context.Context, jobID string) (*types.CanonicalJob, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == types.JobStatusDeleted {
		return nil, &JobUnavailableError{JobID: jobID, Status: job.Status}
	}
	return job, nil
}

type pairState struct {
	job     *types.CanonicalJob
	profile *types.CanonicalProfile
	snap    *taxonomy.Snapshot
	record  *types.MatchRecord
}

func (s *pairState) fresh() bool {
	return s.record.IsFreshFor(revisionsOf(s.job, s.profile, s.snap))
}

func (c *Coordinator) loadPair(ctx context.Context, jobID, candidateID string) (*pairState, error) {
	job, err := c.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	profile, err := c.store.GetProfile(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	record, err := c.store.GetMatch(ctx, jobID, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to read match record: %w", err)
	}
	return &pairState{job: job, profile: profile, snap: c.taxonomy.Snapshot(), record: record}, nil
}

// EnsureFresh returns the fresh match record for the pair, recomputing it when
// the stored one is missing or stale. Concurrent callers for the same pair
// share a single recomputation.
func (c *Coordinator) EnsureFresh(ctx context.Context, jobID, candidateID string) (*types.MatchRecord, error) {
	state, err := c.loadPair(ctx, jobID, candidateID)
	if err != nil {
		return nil, err
	}
	if state.fresh() {
		c.metrics.RecordFreshHit()
		return state.record, nil
	}
	return c.refresh(ctx, jobID, candidateID, triggerRequest)
}

// refresh joins or starts the flight for the pair. The flight itself runs
// detached from ctx so one caller giving up does not fail the others.
func (c *Coordinator) refresh(ctx context.Context, jobID, candidateID, trigger string) (*types.MatchRecord, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey(jobID, candidateID), func() (any, error) {
		return c.recompute(flightCtx, jobID, candidateID, trigger)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.metrics.RecordShared()
		}
		return store.CloneMatch(res.Val.(*types.MatchRecord)), nil
	}
}

func (c *Coordinator) begin(key string) {
	c.mu.Lock()
	c.inflight[key]++
	c.mu.Unlock()
}

func (c *Coordinator) end(key string) {
	c.mu.Lock()
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

func (c *Coordinator) recomputing(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[key] > 0
}

func (c *Coordinator) recompute(ctx context.Context, jobID, candidateID, trigger string) (*types.MatchRecord, error) {
	key := flightKey(jobID, candidateID)
	c.begin(key)
	defer c.end(key)

	start := time.Now()

	// Another flight may have stored a fresh record between the caller's read and this one.
	state, err := c.loadPair(ctx, jobID, candidateID)
	if err != nil {
		return nil, err
	}
	if state.fresh() {
		return state.record, nil
	}

	record := c.scorer.Score(state.job, state.profile, state.snap)
	record.ComputedAt = c.now()
	if err := c.store.PutMatch(ctx, &record); err != nil {
		c.metrics.RecordRecompute(trigger, time.Since(start), err)
		return nil, fmt.Errorf("failed to store match record: %w", err)
	}
	c.metrics.RecordRecompute(trigger, time.Since(start), nil)

	c.logger.Debug("match recomputed",
		zap.String(logger.FieldJobID, jobID),
		zap.String(logger.FieldCandidateID, candidateID),
		zap.Int64(logger.FieldTaxonomyVersion, record.ComputedAtRevisions.TaxonomyVersion),
		zap.Int("overall_score", record.OverallScore),
		zap.String("trigger", trigger))
	return &record, nil
}

// Peek returns the stored record without recomputing it. A record that is no
// longer fresh is returned together with a *StaleReadError.
func (c *Coordinator) Peek(ctx context.Context, jobID, candidateID string) (*types.MatchRecord, error) {
	state, err := c.loadPair(ctx, jobID, candidateID)
	if err != nil {
		return nil, err
	}
	if state.record == nil {
		return nil, &store.NotFoundError{Entity: store.EntityMatch, ID: pairID(jobID, candidateID)}
	}
	if !state.fresh() {
		return state.record, &StaleReadError{Record: state.record}
	}
	return state.record, nil
}

// Status reports the lifecycle state of the pair's record. A pair that was
// never scored is stale.
func (c *Coordinator) Status(ctx context.Context, jobID, candidateID string) (types.MatchState, error) {
	if c.recomputing(flightKey(jobID, candidateID)) {
		return types.MatchRecomputing, nil
	}
	state, err := c.loadPair(ctx, jobID, candidateID)
	if err != nil {
		return "", err
	}
	if state.fresh() {
		return types.MatchFresh, nil
	}
	return types.MatchStale, nil
}

// Invalidate flags every record that references the entity as stale and
// returns how many records changed.
func (c *Coordinator) Invalidate(ctx context.Context, entity types.EntityType, id string) (int, error) {
	if !entity.Valid() {
		return 0, fmt.Errorf("unknown entity type %q", entity)
	}
	n, err := c.store.MarkStale(ctx, entity, id)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate %s %s: %w", entity, id, err)
	}
	c.metrics.RecordInvalidation(string(entity), n)
	c.logger.Debug("match records invalidated",
		zap.String("entity", string(entity)),
		zap.String("entity_id", id),
		zap.Int("records", n))
	return n, nil
}

// InvalidateAll flags every record as stale.
func (c *Coordinator) InvalidateAll(ctx context.Context) (int, error) {
	n, err := c.store.MarkAllStale(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate all match records: %w", err)
	}
	c.metrics.RecordInvalidation("all", n)
	c.logger.Info("all match records invalidated", zap.Int("records", n))
	return n, nil
}

// Subscribe wires invalidation to catalog events. Handlers run synchronously
// inside Publish, after the change is persisted.
func (c *Coordinator) Subscribe(bus EventBus.Bus) error {
	handlers := map[string]any{
		events.ProfileChangedTopic: func(ev events.ProfileChanged) {
			c.invalidateFromEvent(types.EntityCandidate, ev.CandidateID)
		},
		events.JobChangedTopic: func(ev events.JobChanged) {
			c.invalidateFromEvent(types.EntityJob, ev.JobID)
		},
		events.TaxonomyChangedTopic: func(ev events.TaxonomyChanged) {
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			defer cancel()
			if _, err := c.InvalidateAll(ctx); err != nil {
				c.logger.Error("failed to invalidate after taxonomy change",
					zap.Int64(logger.FieldTaxonomyVersion, ev.Version), zap.Error(err))
			}
		},
		events.ProfileRemovedTopic: func(ev events.ProfileRemoved) {
			c.logger.Debug("profile removed, records cascaded", zap.String(logger.FieldCandidateID, ev.CandidateID))
		},
		events.JobRemovedTopic: func(ev events.JobRemoved) {
			c.logger.Debug("job removed, records cascaded", zap.String(logger.FieldJobID, ev.JobID))
		},
	}
	for topic, fn := range handlers {
		if err := bus.Subscribe(topic, fn); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

func (c *Coordinator) invalidateFromEvent(entity types.EntityType, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if _, err := c.Invalidate(ctx, entity, id); err != nil {
		c.logger.Error("failed to invalidate after change",
			zap.String("entity", string(entity)), zap.String("entity_id", id), zap.Error(err))
	}
}

// isGone reports errors that mean a referent disappeared mid-operation.
func isGone(err error) bool {
	var notFound *store.NotFoundError
	var unavailable *JobUnavailableError
	return errors.As(err, &notFound) || errors.As(err, &unavailable)
}

// freshRecords returns a fresh record for every pair, recomputing in parallel.
// Pairs whose referent vanished meanwhile are dropped.
func (c *Coordinator) freshRecords(ctx context.Context, pairs [][2]string, stored map[string]*types.MatchRecord, current func(i int) types.Revisions) ([]*types.MatchRecord, error) {
	results := make([]*types.MatchRecord, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, pair := range pairs {
		if rec := stored[flightKey(pair[0], pair[1])]; rec.IsFreshFor(current(i)) {
			c.metrics.RecordFreshHit()
			results[i] = rec
			continue
		}
		g.Go(func() error {
			rec, err := c.refresh(gctx, pair[0], pair[1], triggerRequest)
			if err != nil {
				if isGone(err) {
					return nil
				}
				return err
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lo.Filter(results, func(r *types.MatchRecord, _ int) bool { return r != nil }), nil
}

func paginate(records []*types.MatchRecord, opts RankOptions) *Page {
	page := &Page{Total: len(records), Limit: opts.Limit, Offset: opts.Offset, Items: []*types.MatchRecord{}}
	if opts.Offset >= len(records) {
		return page
	}
	end := min(opts.Offset+opts.Limit, len(records))
	page.Items = records[opts.Offset:end]
	return page
}

// RankCandidatesForJob ranks candidates by overall score, highest first, with
// ties broken by candidate id. Candidates not actively looking are left out
// unless opts.IncludeInactive is set.
func (c *Coordinator) RankCandidatesForJob(ctx context.Context, jobID string, opts RankOptions) (*Page, error) {
	opts = opts.normalized()

	job, err := c.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	profiles, err := c.store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	if !opts.IncludeInactive {
		profiles = lo.Filter(profiles, func(p *types.CanonicalProfile, _ int) bool { return p.ActivelyLooking })
	}
	stored, err := c.store.ListMatchesForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match records: %w", err)
	}
	byPair := lo.KeyBy(stored, func(r *types.MatchRecord) string { return flightKey(r.JobID, r.CandidateID) })

	snap := c.taxonomy.Snapshot()
	pairs := lo.Map(profiles, func(p *types.CanonicalProfile, _ int) [2]string { return [2]string{jobID, p.CandidateID} })
	records, err := c.freshRecords(ctx, pairs, byPair, func(i int) types.Revisions {
		return revisionsOf(job, profiles[i], snap)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates for job %s: %w", jobID, err)
	}

	slices.SortFunc(records, func(a, b *types.MatchRecord) int {
		if a.OverallScore != b.OverallScore {
			return b.OverallScore - a.OverallScore
		}
		return strings.Compare(a.CandidateID, b.CandidateID)
	})
	return paginate(records, opts), nil
}

// RankJobsForCandidate ranks active jobs by overall score, highest first, with
// ties broken by job id.
func (c *Coordinator) RankJobsForCandidate(ctx context.Context, candidateID string, opts RankOptions) (*Page, error) {
	opts = opts.normalized()

	profile, err := c.store.GetProfile(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	jobs, err := c.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs = lo.Filter(jobs, func(j *types.CanonicalJob, _ int) bool { return j.Status == types.JobStatusActive })
	stored, err := c.store.ListMatchesForCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match records: %w", err)
	}
	byPair := lo.KeyBy(stored, func(r *types.MatchRecord) string { return flightKey(r.JobID, r.CandidateID) })

	snap := c.taxonomy.Snapshot()
	pairs := lo.Map(jobs, func(j *types.CanonicalJob, _ int) [2]string { return [2]string{j.JobID, candidateID} })
	records, err := c.freshRecords(ctx, pairs, byPair, func(i int) types.Revisions {
		return revisionsOf(jobs[i], profile, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank jobs for candidate %s: %w", candidateID, err)
	}

	slices.SortFunc(records, func(a, b *types.MatchRecord) int {
		if a.OverallScore != b.OverallScore {
			return b.OverallScore - a.OverallScore
		}
		return strings.Compare(a.JobID, b.JobID)
	})
	return paginate(records, opts), nil
}

// RecomputeStale refreshes up to batch stale records (0 means all) in
// parallel. Records whose job or candidate disappeared are skipped, and one
// failing pair does not stop the others.
func (c *Coordinator) RecomputeStale(ctx context.Context, batch int) (SweepResult, error) {
	stale, err := c.store.ListStale(ctx, batch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list stale records: %w", err)
	}

	var refreshed, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, rec := range stale {
		g.Go(func() error {
			_, err := c.refresh(gctx, rec.JobID, rec.CandidateID, triggerSweep)
			switch {
			case err == nil:
				refreshed.Add(1)
			case isGone(err):
				skipped.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				c.logger.Warn("stale recompute failed",
					zap.String(logger.FieldJobID, rec.JobID),
					zap.String(logger.FieldCandidateID, rec.CandidateID),
					zap.Error(err))
			}
			return nil
		})
	}
	waitErr := g.Wait()

	result := SweepResult{
		Refreshed: int(refreshed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	if waitErr != nil {
		return result, waitErr
	}
	return result, nil
}
