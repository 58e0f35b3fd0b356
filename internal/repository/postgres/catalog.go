package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

const catalogColumns = `
	id, code, name, category, unit, kind, critical_low, critical_high,
	allowed_values, version, active, created_at
`

func (r *testCatalogRepository) GetActiveByCode(ctx context.Context, code string) (*model.TestCatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM lab_test_catalog WHERE code = $1 AND active`

	var entry model.TestCatalogEntry
	err := r.db.GetContext(ctx, &entry, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("test %s: %w", code, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog entry: %w", err)
	}
	return &entry, nil
}

func (r *testCatalogRepository) GetVersion(ctx context.Context, code string, version int) (*model.TestCatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM lab_test_catalog WHERE code = $1 AND version = $2`

	var entry model.TestCatalogEntry
	err := r.db.GetContext(ctx, &entry, query, code, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("test %s version %d: %w", code, version, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog entry version: %w", err)
	}
	return &entry, nil
}

func (r *testCatalogRepository) ListActive(ctx context.Context) ([]*model.TestCatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM lab_test_catalog WHERE active ORDER BY code ASC`

	var entries []*model.TestCatalogEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("failed to list catalog entries: %w", err)
	}
	return entries, nil
}

func (r *testCatalogRepository) Upsert(ctx context.Context, entry *model.TestCatalogEntry) (*model.TestCatalogEntry, error) {
	var out model.TestCatalogEntry

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Retire the current active version, if any, and insert the
		// entry one version above it. Historical versions stay put so
		// results keep their interpretation.
		var currentVersion sql.NullInt64
		err := tx.GetContext(ctx, &currentVersion,
			`SELECT MAX(version) FROM lab_test_catalog WHERE code = $1`, entry.Code)
		if err != nil {
			return fmt.Errorf("failed to read current catalog version: %w", err)
		}

		if currentVersion.Valid {
			if _, err := tx.ExecContext(ctx,
				`UPDATE lab_test_catalog SET active = FALSE WHERE code = $1 AND active`,
				entry.Code); err != nil {
				return fmt.Errorf("failed to retire catalog version: %w", err)
			}
			entry.Version = int(currentVersion.Int64) + 1
		} else {
			entry.Version = 1
		}

		query := `
			INSERT INTO lab_test_catalog (
				id, code, name, category, unit, kind, critical_low,
				critical_high, allowed_values, version, active, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
			RETURNING ` + catalogColumns
		return tx.GetContext(ctx, &out, query,
			entry.ID,
			entry.Code,
			entry.Name,
			entry.Category,
			entry.Unit,
			entry.Kind,
			entry.CriticalLow,
			entry.CriticalHigh,
			entry.AllowedValues,
			entry.Version,
			entry.CreatedAt,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert catalog entry: %w", err)
	}
	return &out, nil
}
