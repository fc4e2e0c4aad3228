package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonathan/talent-match/internal/types"
)

const matchColumns = `job_id, candidate_id, overall_score, component_scores,
	job_revision, candidate_revision, taxonomy_version,
	matched_skills, missing_skills, notes, stale, computed_at`

func scanMatch(row Scanner) (*types.MatchRecord, error) {
	var m types.MatchRecord
	var components, matched, missing []byte
	err := row.Scan(&m.JobID, &m.CandidateID, &m.OverallScore, &components,
		&m.ComputedAtRevisions.JobRevision, &m.ComputedAtRevisions.CandidateRevision, &m.ComputedAtRevisions.TaxonomyVersion,
		&matched, &missing, &m.Notes, &m.Stale, &m.ComputedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(components, &m.ComponentScores); err != nil {
		return nil, fmt.Errorf("failed to decode component scores: %w", err)
	}
	if err := json.Unmarshal(matched, &m.MatchedSkills); err != nil {
		return nil, fmt.Errorf("failed to decode matched skills: %w", err)
	}
	if err := json.Unmarshal(missing, &m.MissingSkills); err != nil {
		return nil, fmt.Errorf("failed to decode missing skills: %w", err)
	}
	return &m, nil
}

func (db *DB) queryMatches(ctx context.Context, query string, args ...any) ([]*types.MatchRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query match records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*types.MatchRecord, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match record: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query match records: %w", err)
	}
	return out, nil
}

// GetMatch implements store.Store.
func (db *DB) GetMatch(ctx context.Context, jobID, candidateID string) (*types.MatchRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM match_records WHERE job_id = $1 AND candidate_id = $2`,
		jobID, candidateID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match record: %w", err)
	}
	return m, nil
}

// PutMatch implements store.Store.
func (db *DB) PutMatch(ctx context.Context, record *types.MatchRecord) error {
	components, err := json.Marshal(record.ComponentScores)
	if err != nil {
		return fmt.Errorf("failed to marshal component scores: %w", err)
	}
	matched, err := json.Marshal(nonNil(record.MatchedSkills))
	if err != nil {
		return fmt.Errorf("failed to marshal matched skills: %w", err)
	}
	missing, err := json.Marshal(nonNil(record.MissingSkills))
	if err != nil {
		return fmt.Errorf("failed to marshal missing skills: %w", err)
	}

	rev := record.ComputedAtRevisions
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO match_records (`+matchColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (job_id, candidate_id) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			component_scores = EXCLUDED.component_scores,
			job_revision = EXCLUDED.job_revision,
			candidate_revision = EXCLUDED.candidate_revision,
			taxonomy_version = EXCLUDED.taxonomy_version,
			matched_skills = EXCLUDED.matched_skills,
			missing_skills = EXCLUDED.missing_skills,
			notes = EXCLUDED.notes,
			stale = EXCLUDED.stale,
			computed_at = EXCLUDED.computed_at`,
		record.JobID, record.CandidateID, record.OverallScore, components,
		rev.JobRevision, rev.CandidateRevision, rev.TaxonomyVersion,
		matched, missing, record.Notes, record.Stale, record.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to save match record: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ListMatchesForJob implements store.Store.
func (db *DB) ListMatchesForJob(ctx context.Context, jobID string) ([]*types.MatchRecord, error) {
	return db.queryMatches(ctx,
		`SELECT `+matchColumns+` FROM match_records WHERE job_id = $1 ORDER BY candidate_id`, jobID)
}

// ListMatchesForCandidate implements store.Store.
func (db *DB) ListMatchesForCandidate(ctx context.Context, candidateID string) ([]*types.MatchRecord, error) {
	return db.queryMatches(ctx,
		`SELECT `+matchColumns+` FROM match_records WHERE candidate_id = $1 ORDER BY job_id`, candidateID)
}

// MarkStale implements store.Store.
func (db *DB) MarkStale(ctx context.Context, entity types.EntityType, id string) (int, error) {
	var query string
	switch entity {
	case types.EntityJob:
		query = `UPDATE match_records SET stale = TRUE WHERE job_id = $1 AND NOT stale`
	case types.EntityCandidate:
		query = `UPDATE match_records SET stale = TRUE WHERE candidate_id = $1 AND NOT stale`
	default:
		return 0, fmt.Errorf("unknown entity type %q", entity)
	}
	return db.execCount(ctx, query, id)
}

// MarkAllStale implements store.Store.
func (db *DB) MarkAllStale(ctx context.Context) (int, error) {
	return db.execCount(ctx, `UPDATE match_records SET stale = TRUE WHERE NOT stale`)
}

func (db *DB) execCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark match records stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark match records stale: %w", err)
	}
	return int(n), nil
}

const staleQuery = `SELECT ` + matchColumns + ` FROM match_records
	WHERE stale AND job_id IN (SELECT job_id FROM jobs WHERE status <> 'deleted')
	ORDER BY job_id, candidate_id`

// ListStale implements store.Store.
func (db *DB) ListStale(ctx context.Context, limit int) ([]*types.MatchRecord, error) {
	if limit <= 0 {
		return db.queryMatches(ctx, staleQuery)
	}
	return db.queryMatches(ctx, staleQuery+` LIMIT $1`, limit)
}
