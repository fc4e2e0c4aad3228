package ranking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-match/internal/events"
	"github.com/jonathan/talent-match/internal/scoring"
	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/taxonomy"
	"github.com/jonathan/talent-match/internal/types"
)

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

// countingScorer wraps the real engine, counts invocations and optionally
// blocks each one until gate is closed.
type countingScorer struct {
	engine *scoring.Engine
	calls  atomic.Int64
	gate   chan struct{}
}

func (s *countingScorer) Score(job *types.CanonicalJob, candidate *types.CanonicalProfile, vocab scoring.Vocabulary) types.MatchRecord {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.engine.Score(job, candidate, vocab)
}

type fixture struct {
	store    *store.Memory
	taxonomy *taxonomy.Taxonomy
	scorer   *countingScorer
	coord    *Coordinator
}

func newFixture(t *testing.T, gated bool) *fixture {
	t.Helper()

	tax := taxonomy.New(nil)
	_, err := tax.LoadSeed(taxonomy.DefaultSeed())
	require.NoError(t, err)

	engine, err := scoring.New(scoring.DefaultConfig())
	require.NoError(t, err)

	scorer := &countingScorer{engine: engine}
	if gated {
		scorer.gate = make(chan struct{})
	}

	st := store.NewMemory()
	return &fixture{
		store:    st,
		taxonomy: tax,
		scorer:   scorer,
		coord:    New(st, tax, scorer, WithClock(func() time.Time { return fixedNow }), WithConcurrency(4)),
	}
}

func backendJob(id string) *types.CanonicalJob {
	return &types.CanonicalJob{
		JobID:     id,
		CompanyID: "acme",
		JobFields: types.JobFields{
			Title: "Backend Engineer",
			RequiredSkills: []types.RequiredSkill{
				{SkillID: "go", Category: "language", Importance: 5},
				{SkillID: "postgresql", Category: "database", Importance: 3},
			},
			MinYearsExperience: 3,
			Locations:          []string{"berlin"},
			JobType:            types.JobTypeFullTime,
			Status:             types.JobStatusActive,
		},
	}
}

func seniorProfile(id string) *types.CanonicalProfile {
	return &types.CanonicalProfile{
		CandidateID: id,
		ProfileFields: types.ProfileFields{
			Skills: []types.CandidateSkill{
				{SkillID: "go", Category: "language"},
				{SkillID: "postgresql", Category: "database"},
			},
			YearsOfExperience:  5,
			PreferredLocations: []string{"berlin"},
			PreferredJobTypes:  []types.JobType{types.JobTypeFullTime},
			ActivelyLooking:    true,
		},
	}
}

func (f *fixture) putJob(t *testing.T, job *types.CanonicalJob) *types.CanonicalJob {
	t.Helper()
	var expected int64
	if existing, err := f.store.GetJob(context.Background(), job.JobID); err == nil {
		expected = existing.Revision
	}
	saved, err := f.store.PutJob(context.Background(), job, expected)
	require.NoError(t, err)
	return saved
}

func (f *fixture) putProfile(t *testing.T, profile *types.CanonicalProfile) *types.CanonicalProfile {
	t.Helper()
	var expected int64
	if existing, err := f.store.GetProfile(context.Background(), profile.CandidateID); err == nil {
		expected = existing.Revision
	}
	saved, err := f.store.PutProfile(context.Background(), profile, expected)
	require.NoError(t, err)
	return saved
}

func TestEnsureFresh_ComputesOnceThenServesStored(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	job := f.putJob(t, backendJob("j1"))
	profile := f.putProfile(t, seniorProfile("c1"))

	first, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, first.OverallScore)
	assert.Equal(t, fixedNow, first.ComputedAt)
	assert.Equal(t, types.Revisions{
		JobRevision:       job.Revision,
		CandidateRevision: profile.Revision,
		TaxonomyVersion:   f.taxonomy.Version(),
	}, first.ComputedAtRevisions)

	second, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), f.scorer.calls.Load())
}

func TestEnsureFresh_ConcurrentCallersShareOneComputation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.putJob(t, backendJob("j1"))
	f.putProfile(t, seniorProfile("c1"))

	const callers = 25
	results := make([]*types.MatchRecord, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.coord.EnsureFresh(ctx, "j1", "c1")
		}()
	}

	require.Eventually(t, func() bool {
		return f.coord.recomputing(flightKey("j1", "c1"))
	}, time.Second, time.Millisecond)
	close(f.scorer.gate)
	wg.Wait()

	assert.Equal(t, int64(1), f.scorer.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}

func TestEnsureFresh_CallerCancellationDoesNotAbortFlight(t *testing.T) {
	f := newFixture(t, true)
	f.putJob(t, backendJob("j1"))
	f.putProfile(t, seniorProfile("c1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.coord.EnsureFresh(ctx, "j1", "c1")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.coord.recomputing(flightKey("j1", "c1"))
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.scorer.gate)
	require.Eventually(t, func() bool {
		rec, err := f.store.GetMatch(context.Background(), "j1", "c1")
		return err == nil && rec != nil
	}, time.Second, time.Millisecond)
}

func TestInvalidateThenEnsureFresh(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.putJob(t, backendJob("j1"))
	f.putProfile(t, seniorProfile("c1"))

	before, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)

	changed := seniorProfile("c1")
	changed.Skills = changed.Skills[:1]
	updated := f.putProfile(t, changed)

	n, err := f.coord.Invalidate(ctx, types.EntityCandidate, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	state, err := f.coord.Status(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.MatchStale, state)

	after, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, updated.Revision, after.ComputedAtRevisions.CandidateRevision)
	assert.Less(t, after.OverallScore, before.OverallScore)
	assert.Equal(t, []string{"postgresql"}, after.MissingSkills)
	assert.False(t, after.Stale)

	state, err = f.coord.Status(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.MatchFresh, state)
}

func TestEnsureFresh_RevisionChangeWithoutInvalidation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.putJob(t, backendJob("j1"))
	f.putProfile(t, seniorProfile("c1"))

	_, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)

	job := backendJob("j1")
	job.MinYearsExperience = 10
	f.putJob(t, job)

	rec, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, rec.ComponentScores.ExperienceMatch)
	assert.Equal(t, int64(2), f.scorer.calls.Load())
}

func TestEnsureFresh_TaxonomyChangeReResolvesSkills(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.putJob(t, backendJob("j1"))

	profile := seniorProfile("c1")
	profile.Skills = []types.CandidateSkill{
		{SkillID: "go", Category: "language"},
		{SkillID: "postgres sql", Category: types.CategoryUnclassified},
	}
	f.putProfile(t, profile)

	before, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"postgresql"}, before.MissingSkills)

	changed, err := f.taxonomy.Register("postgres sql", "postgresql")
	require.NoError(t, err)
	require.True(t, changed)

	after, err := f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Empty(t, after.MissingSkills)
	assert.Equal(t, 100, after.ComponentScores.SkillMatch)
	assert.Equal(t, f.taxonomy.Version(), after.ComputedAtRevisions.TaxonomyVersion)
}

func TestEnsureFresh_Errors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.putProfile(t, seniorProfile("c1"))

	var notFound *store.NotFoundError
	_, err := f.coord.EnsureFresh(ctx, "missing", "c1")
	assert.ErrorAs(t, err, &notFound)

	f.putJob(t, backendJob("j1"))
	_, err = f.coord.EnsureFresh(ctx, "j1", "nobody")
	assert.ErrorAs(t, err, &notFound)

	deleted := backendJob("j1")
	deleted.Status = types.JobStatusDeleted
	f.putJob(t, deleted)

	var unavailable *JobUnavailableError
	_, err = f.coord.EnsureFresh(ctx, "j1", "c1")
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, types.JobStatusDeleted, unavailable.Status)
	assert.Zero(t, f.scorer.calls.Load())
}

func TestEnsureFresh_ClosedJobIsStillScored(t *testing.T) {
	f := newFixture(t, false)
	closed := backendJob("j1")
	closed.Status = types.JobStatusClosed
	f.putJob(t, closed)
	f.putProfile(t, seniorProfile("c1"))

	rec, err := f.coord.EnsureFresh(context.Background(), "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.OverallScore)
}

func TestPeek(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.putJob(t, backendJob("j1"))
	f.putProfile(t, seniorProfile("c1"))

	var notFound *store.NotFoundError
	_, err := f.coord.Peek(ctx, "j1", "c1")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, store.EntityMatch, notFound.Entity)

	_, err = f.coord.EnsureFresh(ctx, "j1", "c1")
	require.NoError(t, err)

	rec, err := f.coord.Peek(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.False(t, rec.Stale)

	_, err = f.coord.Invalidate(ctx, types.EntityJob, "j1")
	require.NoError(t, err)

	rec, err = f.coord.Peek(ctx, "j1", "c1")
	var stale *StaleReadError
	require.ErrorAs(t, err, &stale)
	require.NotNil(t, rec)
	assert.True(t, rec.Stale)
	assert.Equal(t, rec, stale.Record)
	assert.Equal(t, int64(1), f.scorer.calls.Load())
}

func TestStatus_RecomputingWhileFlightRuns(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.putJob(t, backendJob("j1"))
	f.putProfile(t, seniorProfile("c1"))

	state, err := f.coord.Status(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.MatchStale, state)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.coord.EnsureFresh(ctx, "j1", "c1")
	}()

	require.Eventually(t, func() bool {
		state, err := f.coord.Status(ctx, "j1", "c1")
		return err == nil && state == types.MatchRecomputing
	}, time.Second, time.Millisecond)

	close(f.scorer.gate)
	<-done

	state, err = f.coord.Status(ctx, "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.MatchFresh, state)
}

func TestInvalidate_UnknownEntity(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.coord.Invalidate(context.Background(), types.EntityType("company"), "x")
	assert.Error(t, err)
}

func TestSubscribe_InvalidatesOnEvents(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	bus := EventBus.New()
	require.NoError(t, f.coord.Subscribe(bus))

	f.putJob(t, backendJob("j1"))
	f.putJob(t, backendJob("j2"))
	f.putProfile(t, seniorProfile("c1"))
	f.putProfile(t, seniorProfile("c2"))
	for _, j := range []string{"j1", "j2"} {
		for _, c := range []string{"c1", "c2"} {
			_, err := f.coord.EnsureFresh(ctx, j, c)
			require.NoError(t, err)
		}
	}

	staleCount := func() int {
		recs, err := f.store.ListStale(ctx, 0)
		require.NoError(t, err)
		return len(recs)
	}

	bus.Publish(events.ProfileChangedTopic, events.ProfileChanged{CandidateID: "c1", Revision: 2})
	assert.Equal(t, 2, staleCount())

	bus.Publish(events.JobChangedTopic, events.JobChanged{JobID: "j2", Revision: 2, Status: string(types.JobStatusActive)})
	assert.Equal(t, 3, staleCount())

	bus.Publish(events.TaxonomyChangedTopic, events.TaxonomyChanged{Version: 9})
	assert.Equal(t, 4, staleCount())
}
