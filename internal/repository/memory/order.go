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

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.store.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, repository.ErrNotFound)
	}
	return copyOrder(order), nil
}

func (r *orderRepository) List(ctx context.Context, filters *model.OrderFilters) ([]*model.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*model.Order, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		if filters.Status != "" && order.Status != filters.Status {
			continue
		}
		if filters.PatientID != "" && order.PatientID != filters.PatientID {
			continue
		}
		if filters.ProviderID != "" && order.ProviderID != filters.ProviderID {
			continue
		}
		if filters.Priority != "" && order.Priority != filters.Priority {
			continue
		}
		matched = append(matched, copyOrder(order))
	}

	// Worklist contract: stat ahead of urgent ahead of routine, FIFO
	// within a tier.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority.Rank() != matched[j].Priority.Rank() {
			return matched[i].Priority.Rank() > matched[j].Priority.Rank()
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return []*model.Order{}, nil
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

func (r *orderRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, status model.OrderStatus, at time.Time) (*model.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	order, ok := r.store.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, repository.ErrNotFound)
	}
	if order.Version != expectedVersion {
		return nil, fmt.Errorf("order %s at version %d: %w", id, expectedVersion, repository.ErrVersionConflict)
	}

	order.Status = status
	order.Version++
	order.StatusChangedAt = at
	return copyOrder(order), nil
}

func (r *orderRepository) CountByStatus(ctx context.Context) (map[model.OrderStatus]int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[model.OrderStatus]int64)
	for _, order := range r.store.orders {
		counts[order.Status]++
	}
	return counts, nil
}

func (r *orderRepository) CountCompletedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int64
	for _, order := range r.store.orders {
		if order.Status != model.OrderStatusCompleted {
			continue
		}
		if order.StatusChangedAt.Before(from) || !order.StatusChangedAt.Before(to) {
			continue
		}
		count++
	}
	return count, nil
}
