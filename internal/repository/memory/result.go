package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

func (r *resultRepository) Upsert(ctx context.Context, result *model.Result) (*model.Result, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var previous *model.Result
	for _, existing := range r.store.results {
		if existing.OrderID == result.OrderID && existing.TestCode == result.TestCode {
			previous = copyResult(existing)
			// A resubmission replaces the row in place, keeping its
			// identity and original completion time.
			result.ID = existing.ID
			result.CompletedAt = existing.CompletedAt
			break
		}
	}

	r.store.results[result.ID] = copyResult(result)
	return previous, nil
}

func (r *resultRepository) Get(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result, ok := r.store.results[id]
	if !ok {
		return nil, fmt.Errorf("result %s: %w", id, repository.ErrNotFound)
	}
	return copyResult(result), nil
}

func (r *resultRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.Result, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var results []*model.Result
	for _, result := range r.store.results {
		if result.OrderID == orderID {
			results = append(results, copyResult(result))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CompletedAt.Before(results[j].CompletedAt)
	})
	return results, nil
}

func (r *resultRepository) CountDistinctTests(ctx context.Context, orderID uuid.UUID) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, result := range r.store.results {
		if result.OrderID == orderID {
			seen[result.TestCode] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}
