package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/types"
)

const jobColumns = `job_id, company_id, fields, revision, updated_at`

func scanJob(row Scanner) (*types.CanonicalJob, error) {
	var j types.CanonicalJob
	var fields []byte
	if err := row.Scan(&j.JobID, &j.CompanyID, &fields, &j.Revision, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &j.JobFields); err != nil {
		return nil, fmt.Errorf("failed to decode job fields: %w", err)
	}
	return &j, nil
}

// GetJob implements store.Store.
func (db *DB) GetJob(ctx context.Context, jobID string) (*types.CanonicalJob, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Entity: store.EntityJob, ID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// PutJob implements store.Store with a compare-and-swap on revision.
func (db *DB) PutJob(ctx context.Context, job *types.CanonicalJob, expectedRevision int64) (*types.CanonicalJob, error) {
	fields, err := json.Marshal(job.JobFields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job fields: %w", err)
	}

	var res sql.Result
	if expectedRevision == 0 {
		res, err = db.conn.ExecContext(ctx,
			`INSERT INTO jobs (job_id, company_id, status, fields, revision, updated_at)
			 VALUES ($1, $2, $3, $4, 1, $5)
			 ON CONFLICT (job_id) DO NOTHING`,
			job.JobID, job.CompanyID, string(job.Status), fields, job.UpdatedAt)
	} else {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE jobs SET company_id = $2, status = $3, fields = $4, revision = revision + 1, updated_at = $5
			 WHERE job_id = $1 AND revision = $6`,
			job.JobID, job.CompanyID, string(job.Status), fields, job.UpdatedAt, expectedRevision)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if affected == 0 {
		return nil, db.currentRevision(ctx, `SELECT revision FROM jobs WHERE job_id = $1`,
			store.EntityJob, job.JobID, expectedRevision)
	}

	stored := store.CloneJob(job)
	stored.Revision = expectedRevision + 1
	return stored, nil
}

// ListJobs implements store.Store.
func (db *DB) ListJobs(ctx context.Context) ([]*types.CanonicalJob, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*types.CanonicalJob, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return out, nil
}

// DeleteJob implements store.Store. Match records cascade.
func (db *DB) DeleteJob(ctx context.Context, jobID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &store.NotFoundError{Entity: store.EntityJob, ID: jobID}
	}
	return nil
}
