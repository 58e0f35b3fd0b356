package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

func (r *testCatalogRepository) GetActiveByCode(ctx context.Context, code string) (*model.TestCatalogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, entry := range r.store.catalog {
		if entry.Code == code && entry.Active {
			return copyEntry(entry), nil
		}
	}
	return nil, fmt.Errorf("test %s: %w", code, repository.ErrNotFound)
}

func (r *testCatalogRepository) GetVersion(ctx context.Context, code string, version int) (*model.TestCatalogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, entry := range r.store.catalog {
		if entry.Code == code && entry.Version == version {
			return copyEntry(entry), nil
		}
	}
	return nil, fmt.Errorf("test %s version %d: %w", code, version, repository.ErrNotFound)
}

func (r *testCatalogRepository) ListActive(ctx context.Context) ([]*model.TestCatalogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entries := make([]*model.TestCatalogEntry, 0, len(r.store.catalog))
	for _, entry := range r.store.catalog {
		if entry.Active {
			entries = append(entries, copyEntry(entry))
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Code < entries[j].Code
	})
	return entries, nil
}

func (r *testCatalogRepository) Upsert(ctx context.Context, entry *model.TestCatalogEntry) (*model.TestCatalogEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Retire the current active version, if any, and insert the entry
	// one version above the highest recorded one. Historical versions
	// stay put so results keep their interpretation.
	maxVersion := 0
	for _, existing := range r.store.catalog {
		if existing.Code != entry.Code {
			continue
		}
		if existing.Active {
			existing.Active = false
		}
		if existing.Version > maxVersion {
			maxVersion = existing.Version
		}
	}
	entry.Version = maxVersion + 1

	stored := copyEntry(entry)
	stored.Active = true
	r.store.catalog = append(r.store.catalog, stored)
	return copyEntry(stored), nil
}
