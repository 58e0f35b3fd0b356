package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

const resultColumns = `
	id, order_id, test_code, patient_id, value, unit, is_critical,
	catalog_version, notes, completed_at, updated_at
`

func (r *resultRepository) Upsert(ctx context.Context, result *model.Result) (*model.Result, error) {
	var previous *model.Result

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Lock the existing row for this (order, test) pair so the
		// previous criticality read and the replacement are one unit.
		var prev model.Result
		err := tx.GetContext(ctx, &prev,
			`SELECT `+resultColumns+` FROM lab_results WHERE order_id = $1 AND test_code = $2 FOR UPDATE`,
			result.OrderID, result.TestCode)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// First result for this pair
		case err != nil:
			return fmt.Errorf("failed to read existing result: %w", err)
		default:
			previous = &prev
			result.ID = prev.ID
			result.CompletedAt = prev.CompletedAt
		}

		query := `
			INSERT INTO lab_results (
				id, order_id, test_code, patient_id, value, unit,
				is_critical, catalog_version, notes, completed_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (order_id, test_code) DO UPDATE SET
				value = EXCLUDED.value,
				unit = EXCLUDED.unit,
				is_critical = EXCLUDED.is_critical,
				catalog_version = EXCLUDED.catalog_version,
				notes = EXCLUDED.notes,
				updated_at = EXCLUDED.updated_at
		`
		_, err = tx.ExecContext(ctx, query,
			result.ID,
			result.OrderID,
			result.TestCode,
			result.PatientID,
			result.Value,
			result.Unit,
			result.IsCritical,
			result.CatalogVersion,
			result.Notes,
			result.CompletedAt,
			result.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert result: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func (r *resultRepository) Get(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM lab_results WHERE id = $1`

	var result model.Result
	err := r.db.GetContext(ctx, &result, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &result, nil
}

func (r *resultRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM lab_results WHERE order_id = $1 ORDER BY completed_at ASC`

	var results []*model.Result
	if err := r.db.SelectContext(ctx, &results, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

func (r *resultRepository) CountDistinctTests(ctx context.Context, orderID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(DISTINCT test_code) FROM lab_results WHERE order_id = $1`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, orderID); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}
