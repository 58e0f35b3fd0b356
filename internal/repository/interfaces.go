package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
)

// Sentinel errors shared by every repository implementation. Services
// translate these into the API error taxonomy.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// All repository interfaces in one file
type (
	// OrderRepository owns order rows. Status never changes except
	// through UpdateStatusCAS, so every transition is version-checked.
	OrderRepository interface {
		Create(ctx context.Context, order *model.Order) error
		Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
		// List applies the worklist ordering contract: priority
		// stat > urgent > routine, then created_at ascending.
		List(ctx context.Context, filters *model.OrderFilters) ([]*model.Order, error)
		// UpdateStatusCAS moves the order to status if and only if its
		// stored version equals expectedVersion, bumping the version by
		// one. Returns ErrVersionConflict when another writer got there
		// first and ErrNotFound when the order does not exist.
		UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedVersion int64, status model.OrderStatus, at time.Time) (*model.Order, error)
		CountByStatus(ctx context.Context) (map[model.OrderStatus]int64, error)
		CountCompletedBetween(ctx context.Context, from, to time.Time) (int64, error)
	}

	ResultRepository interface {
		// Upsert writes the result for its (order_id, test_code) pair,
		// inserting or replacing atomically, and returns the previous
		// row if one existed.
		Upsert(ctx context.Context, result *model.Result) (*model.Result, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Result, error)
		ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.Result, error)
		// CountDistinctTests reports how many of the order's tests have
		// a result. Callers run it after their own upsert commits, so
		// the last writer always observes the full set.
		CountDistinctTests(ctx context.Context, orderID uuid.UUID) (int64, error)
	}

	AlertRepository interface {
		// EnqueueForResult creates a pending alert for the result or,
		// when an active one already exists, resets its attempts and
		// schedule in place. At most one active alert per result
		// survives either path.
		EnqueueForResult(ctx context.Context, alert *model.Alert) (*model.Alert, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Alert, error)
		List(ctx context.Context, filters *model.AlertFilters) ([]*model.Alert, error)
		// Acknowledge atomically marks the alert acknowledged unless it
		// already is. The bool reports whether this call performed the
		// acknowledgment; when false the returned alert carries the
		// original acknowledger.
		Acknowledge(ctx context.Context, id uuid.UUID, userID string, at time.Time) (*model.Alert, bool, error)
		// ClaimDue returns pending alerts whose next attempt is due,
		// oldest first, locking them against concurrent dispatchers.
		ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.Alert, error)
		MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
		// RecordFailure stores the attempt count, the backoff schedule
		// and the failure reason after an unsuccessful delivery.
		RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error
		// MarkDeliveryFailed parks the alert after the retry ceiling,
		// recording the final attempt count. It stays active until
		// acknowledged.
		MarkDeliveryFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
		CountActive(ctx context.Context) (int64, error)
		DeleteAcknowledgedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	TestCatalogRepository interface {
		// GetActiveByCode returns the latest active version of a test.
		GetActiveByCode(ctx context.Context, code string) (*model.TestCatalogEntry, error)
		GetVersion(ctx context.Context, code string, version int) (*model.TestCatalogEntry, error)
		ListActive(ctx context.Context) ([]*model.TestCatalogEntry, error)
		// Upsert inserts the entry at version 1, or retires the current
		// active version and inserts the next one. Existing results keep
		// the version they were scored against.
		Upsert(ctx context.Context, entry *model.TestCatalogEntry) (*model.TestCatalogEntry, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
