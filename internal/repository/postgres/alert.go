package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

const alertColumns = `
	id, result_id, order_id, test_code, recipient_id, state, attempts,
	next_attempt_at, last_error, created_at, updated_at, delivered_at,
	acknowledged_at, acknowledged_by
`

func (r *alertRepository) EnqueueForResult(ctx context.Context, alert *model.Alert) (*model.Alert, error) {
	var out model.Alert

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		// One active alert per result: if a non-acknowledged one exists,
		// reset its delivery cycle instead of inserting a duplicate.
		var existing model.Alert
		err := tx.GetContext(ctx, &existing,
			`SELECT `+alertColumns+` FROM lab_alerts WHERE result_id = $1 AND state != $2 FOR UPDATE`,
			alert.ResultID, model.AlertStateAcknowledged)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			query := `
				INSERT INTO lab_alerts (
					id, result_id, order_id, test_code, recipient_id,
					state, attempts, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING ` + alertColumns
			return tx.GetContext(ctx, &out, query,
				alert.ID,
				alert.ResultID,
				alert.OrderID,
				alert.TestCode,
				alert.RecipientID,
				model.AlertStatePendingDelivery,
				0,
				alert.CreatedAt,
				alert.CreatedAt,
			)
		case err != nil:
			return fmt.Errorf("failed to look up active alert: %w", err)
		default:
			query := `
				UPDATE lab_alerts
				SET state = $1, attempts = 0, next_attempt_at = NULL,
					last_error = NULL, delivered_at = NULL, updated_at = $2
				WHERE id = $3
				RETURNING ` + alertColumns
			return tx.GetContext(ctx, &out, query,
				model.AlertStatePendingDelivery, alert.CreatedAt, existing.ID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue alert: %w", err)
	}
	return &out, nil
}

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM lab_alerts WHERE id = $1`

	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

func (r *alertRepository) List(ctx context.Context, filters *model.AlertFilters) ([]*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM lab_alerts WHERE 1=1`
	args := []interface{}{}

	if filters.State != "" {
		args = append(args, filters.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filters.RecipientID != "" {
		args = append(args, filters.RecipientID)
		query += fmt.Sprintf(" AND recipient_id = $%d", len(args))
	}
	if filters.OrderID != uuid.Nil {
		args = append(args, filters.OrderID)
		query += fmt.Sprintf(" AND order_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var alerts []*model.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) Acknowledge(ctx context.Context, id uuid.UUID, userID string, at time.Time) (*model.Alert, bool, error) {
	query := `
		UPDATE lab_alerts
		SET state = $1, acknowledged_by = $2, acknowledged_at = $3, updated_at = $3
		WHERE id = $4 AND state != $1
		RETURNING ` + alertColumns

	var alert model.Alert
	err := r.db.GetContext(ctx, &alert, query, model.AlertStateAcknowledged, userID, at, id)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the alert is missing or someone acknowledged it first.
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return &alert, true, nil
}

func (r *alertRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM lab_alerts
		WHERE state = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		ORDER BY created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`
	var alerts []*model.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, model.AlertStatePendingDelivery, now, limit); err != nil {
		return nil, fmt.Errorf("failed to claim due alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE lab_alerts
		SET state = $1, delivered_at = $2, updated_at = $2
		WHERE id = $3 AND state = $4
	`
	if _, err := r.db.ExecContext(ctx, query,
		model.AlertStateDelivered, at, id, model.AlertStatePendingDelivery); err != nil {
		return fmt.Errorf("failed to mark alert delivered: %w", err)
	}
	return nil
}

func (r *alertRepository) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	query := `
		UPDATE lab_alerts
		SET attempts = $1, next_attempt_at = $2, last_error = $3, updated_at = $4
		WHERE id = $5 AND state = $6
	`
	if _, err := r.db.ExecContext(ctx, query,
		attempts, nextAttemptAt, lastError, time.Now().UTC(), id, model.AlertStatePendingDelivery); err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

func (r *alertRepository) MarkDeliveryFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	query := `
		UPDATE lab_alerts
		SET state = $1, attempts = $2, last_error = $3, updated_at = $4
		WHERE id = $5 AND state = $6
	`
	if _, err := r.db.ExecContext(ctx, query,
		model.AlertStateDeliveryFailed, attempts, lastError, time.Now().UTC(), id, model.AlertStatePendingDelivery); err != nil {
		return fmt.Errorf("failed to mark alert delivery failed: %w", err)
	}
	return nil
}

func (r *alertRepository) CountActive(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM lab_alerts WHERE state != $1`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, model.AlertStateAcknowledged); err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return count, nil
}

func (r *alertRepository) DeleteAcknowledgedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM lab_alerts WHERE state = $1 AND acknowledged_at < $2`

	result, err := r.db.ExecContext(ctx, query, model.AlertStateAcknowledged, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete acknowledged alerts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
