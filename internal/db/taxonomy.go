package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonathan/talent-match/internal/types"
)

const taxonomyLockID int64 = 2026101502

// SaveTaxonomy implements store.Store. The whole vocabulary is replaced in one
// transaction unless the stored version is already at or beyond version.
func (db *DB) SaveTaxonomy(ctx context.Context, entries []types.SkillTaxonomyEntry, version int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin taxonomy tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, taxonomyLockID); err != nil {
		return fmt.Errorf("failed to acquire taxonomy lock: %w", err)
	}

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM taxonomy_meta WHERE id = 1`).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read taxonomy version: %w", err)
	}
	if version <= current {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM taxonomy_entries`); err != nil {
		return fmt.Errorf("failed to clear taxonomy: %w", err)
	}
	for _, entry := range entries {
		synonyms, err := json.Marshal(nonNil(entry.Synonyms))
		if err != nil {
			return fmt.Errorf("failed to marshal synonyms: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO taxonomy_entries (canonical_id, display_name, category, synonyms) VALUES ($1, $2, $3, $4)`,
			entry.CanonicalID, entry.DisplayName, entry.Category, synonyms); err != nil {
			return fmt.Errorf("failed to save taxonomy entry %s: %w", entry.CanonicalID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO taxonomy_meta (id, version) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version`, version); err != nil {
		return fmt.Errorf("failed to save taxonomy version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit taxonomy tx: %w", err)
	}
	return nil
}

// LoadTaxonomy implements store.Store.
func (db *DB) LoadTaxonomy(ctx context.Context) ([]types.SkillTaxonomyEntry, int64, error) {
	var version int64
	err := db.conn.QueryRowContext(ctx, `SELECT version FROM taxonomy_meta WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return []types.SkillTaxonomyEntry{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read taxonomy version: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT canonical_id, display_name, category, synonyms FROM taxonomy_entries ORDER BY canonical_id`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]types.SkillTaxonomyEntry, 0)
	for rows.Next() {
		var e types.SkillTaxonomyEntry
		var synonyms []byte
		if err := rows.Scan(&e.CanonicalID, &e.DisplayName, &e.Category, &synonyms); err != nil {
			return nil, 0, fmt.Errorf("failed to scan taxonomy entry: %w", err)
		}
		if err := json.Unmarshal(synonyms, &e.Synonyms); err != nil {
			return nil, 0, fmt.Errorf("failed to decode synonyms: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	return entries, version, nil
}
