package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jwalitptl/lab-api/internal/model"
)

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.audits = append(r.store.audits, copyAudit(log))
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]*model.AuditLog, 0, len(r.store.audits))
	for _, log := range r.store.audits {
		if filters.EntityType != "" && log.EntityType != filters.EntityType {
			continue
		}
		if filters.EntityID != "" && log.EntityID != filters.EntityID {
			continue
		}
		if filters.ActorID != "" && log.ActorID != filters.ActorID {
			continue
		}
		matched = append(matched, copyAudit(log))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return []*model.AuditLog{}, nil
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

func (r *auditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.audits[:0]
	var deleted int64
	for _, log := range r.store.audits {
		if log.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, log)
	}
	r.store.audits = kept
	return deleted, nil
}
