package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/types"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return New(conn), mock
}

var matchColumnNames = []string{
	"job_id", "candidate_id", "overall_score", "component_scores",
	"job_revision", "candidate_revision", "taxonomy_version",
	"matched_skills", "missing_skills", "notes", "stale", "computed_at",
}

func TestEnsureSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS candidate_profiles").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, db.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile(t *testing.T) {
	db, mock := newMockDB(t)
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT candidate_id, fields, revision, updated_at FROM candidate_profiles").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"candidate_id", "fields", "revision", "updated_at"}).
			AddRow("c1", []byte(`{"skills":[{"skillId":"go","category":"programming_language"}],"yearsOfExperience":4,"educationLevel":"master","preferredLocations":["remote"],"preferredJobTypes":["full_time"],"activelyLooking":true}`), int64(3), updated))

	p, err := db.GetProfile(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Revision)
	assert.Equal(t, types.EducationMaster, p.EducationLevel)
	assert.Equal(t, "go", p.Skills[0].SkillID)
	assert.Equal(t, []types.JobType{types.JobTypeFullTime}, p.PreferredJobTypes)
	assert.Equal(t, updated, p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM candidate_profiles WHERE candidate_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"candidate_id", "fields", "revision", "updated_at"}))

	_, err := db.GetProfile(context.Background(), "missing")
	var notFound *store.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, store.EntityCandidate, notFound.Entity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutProfile_Create(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO candidate_profiles").
		WithArgs("c1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stored, err := db.PutProfile(context.Background(), &types.CanonicalProfile{CandidateID: "c1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutProfile_RevisionConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE candidate_profiles SET fields").
		WithArgs("c1", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT revision FROM candidate_profiles").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(3)))

	_, err := db.PutProfile(context.Background(), &types.CanonicalProfile{CandidateID: "c1"}, 2)
	var conflict *store.ConcurrentModificationError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(2), conflict.Expected)
	assert.Equal(t, int64(3), conflict.Current)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutProfile_CreateWhenExists(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO candidate_profiles").
		WithArgs("c1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT revision FROM candidate_profiles").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(int64(1)))

	_, err := db.PutProfile(context.Background(), &types.CanonicalProfile{CandidateID: "c1"}, 0)
	var conflict *store.ConcurrentModificationError
	require.ErrorAs(t, err, &conflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutJob_UpdateMissing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE jobs SET company_id").
		WithArgs("j1", "acme", "active", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT revision FROM jobs").
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}))

	job := &types.CanonicalJob{JobID: "j1", CompanyID: "acme", JobFields: types.JobFields{Status: types.JobStatusActive}}
	_, err := db.PutJob(context.Background(), job, 4)
	var notFound *store.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, store.EntityJob, notFound.Entity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutJob_Update(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE jobs SET company_id").
		WithArgs("j1", "acme", "deleted", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &types.CanonicalJob{JobID: "j1", CompanyID: "acme", JobFields: types.JobFields{Status: types.JobStatusDeleted}}
	stored, err := db.PutJob(context.Background(), job, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJob_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("DELETE FROM jobs").WithArgs("j9").WillReturnResult(sqlmock.NewResult(0, 0))

	var notFound *store.NotFoundError
	require.ErrorAs(t, db.DeleteJob(context.Background(), "j9"), &notFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMatch(t *testing.T) {
	db, mock := newMockDB(t)
	computed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM match_records WHERE job_id").
		WithArgs("j1", "c1").
		WillReturnRows(sqlmock.NewRows(matchColumnNames).AddRow(
			"j1", "c1", 47, []byte(`{"skillMatch":0,"experienceMatch":33,"educationMatch":100,"locationMatch":100,"jobTypeMatch":100}`),
			int64(2), int64(5), int64(1),
			[]byte(`[]`), []byte(`["python","sql"]`), "notes", true, computed))

	rec, err := db.GetMatch(context.Background(), "j1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 47, rec.OverallScore)
	assert.Equal(t, 33, rec.ComponentScores.ExperienceMatch)
	assert.Equal(t, types.Revisions{JobRevision: 2, CandidateRevision: 5, TaxonomyVersion: 1}, rec.ComputedAtRevisions)
	assert.Equal(t, []string{"python", "sql"}, rec.MissingSkills)
	assert.True(t, rec.Stale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMatch_Missing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM match_records WHERE job_id").
		WithArgs("j1", "c1").
		WillReturnRows(sqlmock.NewRows(matchColumnNames))

	rec, err := db.GetMatch(context.Background(), "j1", "c1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutMatch(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO match_records").
		WithArgs("j1", "c1", 80, sqlmock.AnyArg(), int64(1), int64(2), int64(3),
			[]byte(`["go"]`), []byte(`[]`), "n", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.PutMatch(context.Background(), &types.MatchRecord{
		JobID:               "j1",
		CandidateID:         "c1",
		OverallScore:        80,
		ComputedAtRevisions: types.Revisions{JobRevision: 1, CandidateRevision: 2, TaxonomyVersion: 3},
		MatchedSkills:       []string{"go"},
		Notes:               "n",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStale(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE match_records SET stale = TRUE WHERE job_id").
		WithArgs("j1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("UPDATE match_records SET stale = TRUE WHERE candidate_id").
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE match_records SET stale = TRUE WHERE NOT stale").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := db.MarkStale(ctx, types.EntityJob, "j1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = db.MarkStale(ctx, types.EntityCandidate, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.MarkAllStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = db.MarkStale(ctx, types.EntityType("company"), "x")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStale(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("status <> 'deleted'").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(matchColumnNames).
			AddRow("j1", "c1", 10, []byte(`{}`), int64(1), int64(1), int64(1), []byte(`[]`), []byte(`[]`), "", true, time.Now()).
			AddRow("j1", "c2", 20, []byte(`{}`), int64(1), int64(1), int64(1), []byte(`[]`), []byte(`[]`), "", true, time.Now()))

	recs, err := db.ListStale(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c2", recs[1].CandidateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTaxonomy(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(taxonomyLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM taxonomy_meta").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectExec("DELETE FROM taxonomy_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO taxonomy_entries").
		WithArgs("go", "Go", "programming_language", []byte(`["golang"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO taxonomy_meta").WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.SaveTaxonomy(context.Background(), []types.SkillTaxonomyEntry{
		{CanonicalID: "go", DisplayName: "Go", Category: "programming_language", Synonyms: []string{"golang"}},
	}, 4)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTaxonomy_SkipsOlderVersion(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(taxonomyLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM taxonomy_meta").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(9)))
	mock.ExpectRollback()

	require.NoError(t, db.SaveTaxonomy(context.Background(), nil, 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTaxonomy(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT version FROM taxonomy_meta").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectQuery("SELECT canonical_id, display_name, category, synonyms FROM taxonomy_entries").
		WillReturnRows(sqlmock.NewRows([]string{"canonical_id", "display_name", "category", "synonyms"}).
			AddRow("go", "Go", "programming_language", []byte(`["golang"]`)))

	entries, version, err := db.LoadTaxonomy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"golang"}, entries[0].Synonyms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadTaxonomy_Empty(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT version FROM taxonomy_meta").WillReturnRows(sqlmock.NewRows([]string{"version"}))

	entries, version, err := db.LoadTaxonomy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
