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

const profileColumns = `candidate_id, fields, revision, updated_at`

func scanProfile(row Scanner) (*types.CanonicalProfile, error) {
	var p types.CanonicalProfile
	var fields []byte
	if err := row.Scan(&p.CandidateID, &fields, &p.Revision, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &p.ProfileFields); err != nil {
		return nil, fmt.Errorf("failed to decode profile fields: %w", err)
	}
	return &p, nil
}

// GetProfile implements store.Store.
func (db *DB) GetProfile(ctx context.Context, candidateID string) (*types.CanonicalProfile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM candidate_profiles WHERE candidate_id = $1`, candidateID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.NotFoundError{Entity: store.EntityCandidate, ID: candidateID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// PutProfile implements store.Store with a compare-and-swap on revision.
func (db *DB) PutProfile(ctx context.Context, profile *types.CanonicalProfile, expectedRevision int64) (*types.CanonicalProfile, error) {
	fields, err := json.Marshal(profile.ProfileFields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile fields: %w", err)
	}

	var res sql.Result
	if expectedRevision == 0 {
		res, err = db.conn.ExecContext(ctx,
			`INSERT INTO candidate_profiles (candidate_id, fields, revision, updated_at)
			 VALUES ($1, $2, 1, $3)
			 ON CONFLICT (candidate_id) DO NOTHING`,
			profile.CandidateID, fields, profile.UpdatedAt)
	} else {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE candidate_profiles SET fields = $2, revision = revision + 1, updated_at = $3
			 WHERE candidate_id = $1 AND revision = $4`,
			profile.CandidateID, fields, profile.UpdatedAt, expectedRevision)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	if affected == 0 {
		return nil, db.currentRevision(ctx,
			`SELECT revision FROM candidate_profiles WHERE candidate_id = $1`,
			store.EntityCandidate, profile.CandidateID, expectedRevision)
	}

	stored := store.CloneProfile(profile)
	stored.Revision = expectedRevision + 1
	return stored, nil
}

// ListProfiles implements store.Store.
func (db *DB) ListProfiles(ctx context.Context) ([]*types.CanonicalProfile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM candidate_profiles ORDER BY candidate_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*types.CanonicalProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return out, nil
}

// DeleteProfile implements store.Store. Match records cascade.
func (db *DB) DeleteProfile(ctx context.Context, candidateID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM candidate_profiles WHERE candidate_id = $1`, candidateID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &store.NotFoundError{Entity: store.EntityCandidate, ID: candidateID}
	}
	return nil
}
