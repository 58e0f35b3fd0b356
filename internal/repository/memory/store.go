// Package memory provides an in-memory implementation of the lab
// repositories, used for tests and ephemeral environments. It offers
// the same version-CAS guarantees as the Postgres implementation via a
// store-level mutex, and never hands out pointers into its own state.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

// Store holds all lab state behind one mutex.
type Store struct {
	mu      sync.RWMutex
	orders  map[uuid.UUID]*model.Order
	results map[uuid.UUID]*model.Result
	alerts  map[uuid.UUID]*model.Alert
	catalog []*model.TestCatalogEntry
	audits  []*model.AuditLog
}

func NewStore() *Store {
	return &Store{
		orders:  make(map[uuid.UUID]*model.Order),
		results: make(map[uuid.UUID]*model.Result),
		alerts:  make(map[uuid.UUID]*model.Alert),
	}
}

// PingContext satisfies the readiness probe; the in-memory store is
// always reachable.
func (s *Store) PingContext(ctx context.Context) error {
	return nil
}

type orderRepository struct{ store *Store }

type resultRepository struct{ store *Store }

type alertRepository struct{ store *Store }

type testCatalogRepository struct{ store *Store }

type auditRepository struct{ store *Store }

func NewOrderRepository(s *Store) repository.OrderRepository {
	return &orderRepository{store: s}
}

func NewResultRepository(s *Store) repository.ResultRepository {
	return &resultRepository{store: s}
}

func NewAlertRepository(s *Store) repository.AlertRepository {
	return &alertRepository{store: s}
}

func NewTestCatalogRepository(s *Store) repository.TestCatalogRepository {
	return &testCatalogRepository{store: s}
}

func NewAuditRepository(s *Store) repository.AuditRepository {
	return &auditRepository{store: s}
}

// Copies isolate callers from store-internal state; a caller mutating
// a returned struct must never affect a later read.

func copyOrder(o *model.Order) *model.Order {
	out := *o
	out.OrderedTests = append([]string(nil), o.OrderedTests...)
	out.DiagnosisCodes = append([]string(nil), o.DiagnosisCodes...)
	return &out
}

func copyResult(r *model.Result) *model.Result {
	out := *r
	return &out
}

func copyAlert(a *model.Alert) *model.Alert {
	out := *a
	if a.NextAttemptAt != nil {
		t := *a.NextAttemptAt
		out.NextAttemptAt = &t
	}
	if a.LastError != nil {
		s := *a.LastError
		out.LastError = &s
	}
	if a.DeliveredAt != nil {
		t := *a.DeliveredAt
		out.DeliveredAt = &t
	}
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		out.AcknowledgedAt = &t
	}
	if a.AcknowledgedBy != nil {
		s := *a.AcknowledgedBy
		out.AcknowledgedBy = &s
	}
	return &out
}

func copyEntry(e *model.TestCatalogEntry) *model.TestCatalogEntry {
	out := *e
	if e.CriticalLow != nil {
		v := *e.CriticalLow
		out.CriticalLow = &v
	}
	if e.CriticalHigh != nil {
		v := *e.CriticalHigh
		out.CriticalHigh = &v
	}
	out.AllowedValues = append([]string(nil), e.AllowedValues...)
	return &out
}

func copyAudit(l *model.AuditLog) *model.AuditLog {
	out := *l
	out.Detail = append([]byte(nil), l.Detail...)
	return &out
}
