package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

func (r *alertRepository) EnqueueForResult(ctx context.Context, alert *model.Alert) (*model.Alert, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// One active alert per result: if a non-acknowledged one exists,
	// reset its delivery cycle instead of inserting a duplicate.
	for _, existing := range r.store.alerts {
		if existing.ResultID == alert.ResultID && existing.State != model.AlertStateAcknowledged {
			existing.State = model.AlertStatePendingDelivery
			existing.Attempts = 0
			existing.NextAttemptAt = nil
			existing.LastError = nil
			existing.DeliveredAt = nil
			existing.UpdatedAt = alert.CreatedAt
			return copyAlert(existing), nil
		}
	}

	stored := copyAlert(alert)
	stored.State = model.AlertStatePendingDelivery
	stored.Attempts = 0
	stored.UpdatedAt = alert.CreatedAt
	r.store.alerts[stored.ID] = stored
	return copyAlert(stored), nil
}

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	alert, ok := r.store.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, repository.ErrNotFound)
	}
	return copyAlert(alert), nil
}

func (r *alertRepository) List(ctx context.Context, filters *model.AlertFilters) ([]*model.Alert, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*model.Alert, 0, len(r.store.alerts))
	for _, alert := range r.store.alerts {
		if filters.State != "" && alert.State != filters.State {
			continue
		}
		if filters.RecipientID != "" && alert.RecipientID != filters.RecipientID {
			continue
		}
		if filters.OrderID != uuid.Nil && alert.OrderID != filters.OrderID {
			continue
		}
		matched = append(matched, copyAlert(alert))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return []*model.Alert{}, nil
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

func (r *alertRepository) Acknowledge(ctx context.Context, id uuid.UUID, userID string, at time.Time) (*model.Alert, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	alert, ok := r.store.alerts[id]
	if !ok {
		return nil, false, fmt.Errorf("alert %s: %w", id, repository.ErrNotFound)
	}
	if alert.State == model.AlertStateAcknowledged {
		return copyAlert(alert), false, nil
	}

	alert.State = model.AlertStateAcknowledged
	alert.AcknowledgedBy = &userID
	ackAt := at
	alert.AcknowledgedAt = &ackAt
	alert.UpdatedAt = at
	return copyAlert(alert), true, nil
}

func (r *alertRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Alert, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var due []*model.Alert
	for _, alert := range r.store.alerts {
		if alert.State != model.AlertStatePendingDelivery {
			continue
		}
		if alert.NextAttemptAt != nil && alert.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, copyAlert(alert))
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && limit < len(due) {
		due = due[:limit]
	}
	return due, nil
}

func (r *alertRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	alert, ok := r.store.alerts[id]
	if !ok || alert.State != model.AlertStatePendingDelivery {
		return nil
	}
	alert.State = model.AlertStateDelivered
	deliveredAt := at
	alert.DeliveredAt = &deliveredAt
	alert.UpdatedAt = at
	return nil
}

func (r *alertRepository) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	alert, ok := r.store.alerts[id]
	if !ok || alert.State != model.AlertStatePendingDelivery {
		return nil
	}
	alert.Attempts = attempts
	next := nextAttemptAt
	alert.NextAttemptAt = &next
	msg := lastError
	alert.LastError = &msg
	alert.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *alertRepository) MarkDeliveryFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	alert, ok := r.store.alerts[id]
	if !ok || alert.State != model.AlertStatePendingDelivery {
		return nil
	}
	alert.State = model.AlertStateDeliveryFailed
	alert.Attempts = attempts
	msg := lastError
	alert.LastError = &msg
	alert.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *alertRepository) CountActive(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int64
	for _, alert := range r.store.alerts {
		if alert.State != model.AlertStateAcknowledged {
			count++
		}
	}
	return count, nil
}

func (r *alertRepository) DeleteAcknowledgedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	for id, alert := range r.store.alerts {
		if alert.State == model.AlertStateAcknowledged && alert.AcknowledgedAt != nil && alert.AcknowledgedAt.Before(cutoff) {
			delete(r.store.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}
