package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

const orderColumns = `
	id, patient_id, provider_id, ordered_tests, priority, clinical_info,
	diagnosis_codes, status, version, created_at, status_changed_at
`

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	query := `
		INSERT INTO lab_orders (
			id, patient_id, provider_id, ordered_tests, priority,
			clinical_info, diagnosis_codes, status, version,
			created_at, status_changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.PatientID,
		order.ProviderID,
		order.OrderedTests,
		order.Priority,
		order.ClinicalInfo,
		order.DiagnosisCodes,
		order.Status,
		order.Version,
		order.CreatedAt,
		order.StatusChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM lab_orders WHERE id = $1`

	var order model.Order
	err := r.db.GetContext(ctx, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filters *model.OrderFilters) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM lab_orders WHERE 1=1`
	args := []interface{}{}

	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.PatientID != "" {
		args = append(args, filters.PatientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if filters.ProviderID != "" {
		args = append(args, filters.ProviderID)
		query += fmt.Sprintf(" AND provider_id = $%d", len(args))
	}
	if filters.Priority != "" {
		args = append(args, filters.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}

	// Worklist contract: stat ahead of urgent ahead of routine, FIFO
	// within a tier.
	query += `
		ORDER BY CASE priority
			WHEN 'stat' THEN 0
			WHEN 'urgent' THEN 1
			ELSE 2
		END, created_at ASC`

	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var orders []*model.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, status model.OrderStatus, at time.Time) (*model.Order, error) {
	query := `
		UPDATE lab_orders
		SET status = $1, version = version + 1, status_changed_at = $2
		WHERE id = $3 AND version = $4
		RETURNING ` + orderColumns

	var order model.Order
	err := r.db.GetContext(ctx, &order, query, status, at, id, expectedVersion)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a stale version from a missing order.
		var exists bool
		if checkErr := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM lab_orders WHERE id = $1)`, id); checkErr != nil {
			return nil, fmt.Errorf("failed to check order existence: %w", checkErr)
		}
		if !exists {
			return nil, fmt.Errorf("order %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("order %s at version %d: %w", id, expectedVersion, repository.ErrVersionConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return &order, nil
}

func (r *orderRepository) CountByStatus(ctx context.Context) (map[model.OrderStatus]int64, error) {
	query := `SELECT status, COUNT(*) AS count FROM lab_orders GROUP BY status`

	rows := []struct {
		Status model.OrderStatus `db:"status"`
		Count  int64             `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}

	counts := make(map[model.OrderStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *orderRepository) CountCompletedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM lab_orders
		WHERE status = $1 AND status_changed_at >= $2 AND status_changed_at < $3
	`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, model.OrderStatusCompleted, from, to); err != nil {
		return 0, fmt.Errorf("failed to count completed orders: %w", err)
	}
	return count, nil
}
