package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-match/internal/events"
	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/taxonomy"
	"github.com/jonathan/talent-match/internal/types"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) add(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

func newTestCatalog(t *testing.T) (*Catalog, *store.Memory, *recorder) {
	t.Helper()

	st := store.NewMemory()
	tax := taxonomy.New(nil)
	bus := EventBus.New()
	rec := &recorder{}

	require.NoError(t, bus.Subscribe(events.ProfileChangedTopic, func(events.ProfileChanged) { rec.add(events.ProfileChangedTopic) }))
	require.NoError(t, bus.Subscribe(events.ProfileRemovedTopic, func(events.ProfileRemoved) { rec.add(events.ProfileRemovedTopic) }))
	require.NoError(t, bus.Subscribe(events.JobChangedTopic, func(events.JobChanged) { rec.add(events.JobChangedTopic) }))
	require.NoError(t, bus.Subscribe(events.JobRemovedTopic, func(events.JobRemoved) { rec.add(events.JobRemovedTopic) }))
	require.NoError(t, bus.Subscribe(events.TaxonomyChangedTopic, func(events.TaxonomyChanged) { rec.add(events.TaxonomyChangedTopic) }))

	fixed := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	c := New(st, tax, normalize.New(), bus, WithClock(func() time.Time { return fixed }))
	require.NoError(t, c.LoadTaxonomy(context.Background(), taxonomy.DefaultSeed()))
	return c, st, rec
}

func revision(n int64) *int64 { return &n }

func TestSaveProfile_Lifecycle(t *testing.T) {
	c, _, rec := newTestCatalog(t)
	ctx := context.Background()

	raw := normalize.RawProfile{
		Skills:            []normalize.RawSkill{{Name: "Golang"}},
		YearsOfExperience: 3,
	}

	saved, changed, err := c.SaveProfile(ctx, "c1", raw, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(1), saved.Revision)
	assert.Equal(t, "go", saved.Skills[0].SkillID)
	assert.Equal(t, 2026, saved.UpdatedAt.Year())

	same, changed, err := c.SaveProfile(ctx, "c1", raw, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(1), same.Revision)

	raw.YearsOfExperience = 4
	updated, changed, err := c.SaveProfile(ctx, "c1", raw, revision(1))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(2), updated.Revision)

	assert.Equal(t, []string{events.TaxonomyChangedTopic, events.ProfileChangedTopic, events.ProfileChangedTopic}, rec.all())
}

func TestSaveProfile_Preconditions(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.SaveProfile(ctx, "c1", normalize.RawProfile{}, revision(3))
	var notFound *store.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, _, err = c.SaveProfile(ctx, "c1", normalize.RawProfile{}, nil)
	require.NoError(t, err)

	_, _, err = c.SaveProfile(ctx, "c1", normalize.RawProfile{YearsOfExperience: 9}, revision(5))
	var conflict *store.ConcurrentModificationError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(5), conflict.Expected)
	assert.Equal(t, int64(1), conflict.Current)

	_, _, err = c.SaveProfile(ctx, " ", normalize.RawProfile{}, nil)
	var invalid *normalize.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "candidateId", invalid.Field)

	_, _, err = c.SaveProfile(ctx, "c2", normalize.RawProfile{YearsOfExperience: "lots"}, nil)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "yearsOfExperience", invalid.Field)
}

func TestSaveProfile_ConcurrentWritersSerialize(t *testing.T) {
	c, st, _ := newTestCatalog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(years int) {
			defer wg.Done()
			_, _, err := c.SaveProfile(ctx, "c1", normalize.RawProfile{YearsOfExperience: years}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := st.GetProfile(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.Revision)
}

func TestDeleteProfile(t *testing.T) {
	c, st, rec := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.SaveProfile(ctx, "c1", normalize.RawProfile{}, nil)
	require.NoError(t, err)
	require.NoError(t, c.DeleteProfile(ctx, "c1"))

	_, err = st.GetProfile(ctx, "c1")
	var notFound *store.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Contains(t, rec.all(), events.ProfileRemovedTopic)
}

func TestSaveJob_AndSoftDelete(t *testing.T) {
	c, st, rec := newTestCatalog(t)
	ctx := context.Background()

	raw := normalize.RawJob{
		RequiredSkills: []normalize.RawSkill{{Name: "postgres", Importance: 4}},
		JobType:        "contract",
	}
	saved, changed, err := c.SaveJob(ctx, "j1", "acme", raw, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.JobStatusActive, saved.Status)
	assert.Equal(t, "postgresql", saved.RequiredSkills[0].SkillID)

	_, changed, err = c.SaveJob(ctx, "j1", "", raw, revision(1))
	require.NoError(t, err)
	assert.False(t, changed)

	deleted, err := c.DeleteJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusDeleted, deleted.Status)
	assert.Equal(t, int64(2), deleted.Revision)

	again, err := c.DeleteJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Revision)

	stored, err := st.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusDeleted, stored.Status)
	assert.Equal(t, "acme", stored.CompanyID)

	jobEvents := 0
	for _, topic := range rec.all() {
		if topic == events.JobChangedTopic {
			jobEvents++
		}
	}
	assert.Equal(t, 2, jobEvents)

	_, err = c.DeleteJob(ctx, "missing")
	var notFound *store.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestPurgeJob(t *testing.T) {
	c, st, rec := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.SaveJob(ctx, "j1", "acme", normalize.RawJob{JobType: "internship"}, nil)
	require.NoError(t, err)
	require.NoError(t, c.PurgeJob(ctx, "j1"))

	_, err = st.GetJob(ctx, "j1")
	var notFound *store.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Contains(t, rec.all(), events.JobRemovedTopic)
}

func TestTaxonomyMutationsPersistAndPublish(t *testing.T) {
	c, st, rec := newTestCatalog(t)
	ctx := context.Background()

	_, version, err := st.LoadTaxonomy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	changed, err := c.RegisterSynonym(ctx, "gopher", "go")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.RegisterSynonym(ctx, "gopher", "go")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = c.RegisterSynonym(ctx, "x", "nonexistent")
	var unknown *taxonomy.UnknownSkillError
	require.ErrorAs(t, err, &unknown)

	changed, err = c.DefineSkill(ctx, types.SkillTaxonomyEntry{CanonicalID: "zig", Category: "programming_language"})
	require.NoError(t, err)
	assert.True(t, changed)

	entries, version, err := st.LoadTaxonomy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	assert.Equal(t, c.Taxonomy().Entries(), entries)

	taxonomyEvents := 0
	for _, topic := range rec.all() {
		if topic == events.TaxonomyChangedTopic {
			taxonomyEvents++
		}
	}
	assert.Equal(t, 3, taxonomyEvents)
}

func TestLoadTaxonomy_RestoresPersistedVersion(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveTaxonomy(ctx, []types.SkillTaxonomyEntry{
		{CanonicalID: "go", DisplayName: "Go", Category: "programming_language", Synonyms: []string{"golang"}},
	}, 7))

	c := New(st, taxonomy.New(nil), normalize.New(), EventBus.New())
	require.NoError(t, c.LoadTaxonomy(ctx, taxonomy.DefaultSeed()))

	assert.Equal(t, int64(7), c.Taxonomy().Version())
	assert.Len(t, c.Taxonomy().Entries(), 1)
	_, ok := c.Taxonomy().Resolve("python")
	assert.False(t, ok)
}

func TestLoadTaxonomy_RestartPreservesRegisteredSynonyms(t *testing.T) {
	c, st, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.RegisterSynonym(ctx, "c++", "aws")
	require.NoError(t, err)
	live, ok := c.Taxonomy().Resolve("c++")
	require.True(t, ok)
	require.Equal(t, "aws", live.CanonicalID)

	restarted := New(st, taxonomy.New(nil), normalize.New(), EventBus.New())
	require.NoError(t, restarted.LoadTaxonomy(ctx, taxonomy.DefaultSeed()))

	assert.Equal(t, c.Taxonomy().Version(), restarted.Taxonomy().Version())
	assert.Equal(t, c.Taxonomy().Entries(), restarted.Taxonomy().Entries())
	res, ok := restarted.Taxonomy().Resolve("c++")
	require.True(t, ok)
	assert.Equal(t, "aws", res.CanonicalID)
}

func TestNormalizeHelpersDoNotPersist(t *testing.T) {
	c, st, rec := newTestCatalog(t)

	fields, err := c.NormalizeProfile(normalize.RawProfile{Skills: []normalize.RawSkill{{Name: "k8s"}}})
	require.NoError(t, err)
	assert.Equal(t, "kubernetes", fields.Skills[0].SkillID)

	job, err := c.NormalizeJob(normalize.RawJob{JobType: "part-time"})
	require.NoError(t, err)
	assert.Equal(t, types.JobTypePartTime, job.JobType)

	profiles, err := st.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
	assert.Equal(t, []string{events.TaxonomyChangedTopic}, rec.all())
}
