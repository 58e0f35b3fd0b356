package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/service/audit"
	"github.com/jwalitptl/lab-api/internal/service/catalog"
	"github.com/jwalitptl/lab-api/internal/service/event"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
)

// Service owns order creation, the worklist read side, and the
// externally driven part of the status state machine. The automatic
// in_progress -> completed edge belongs to the result service.
type Service struct {
	repo       repository.OrderRepository
	resultRepo repository.ResultRepository
	catalogSvc *catalog.Service
	auditor    *audit.Service
	emitter    *event.Emitter
	logger     *logger.Logger
}

func NewService(
	repo repository.OrderRepository,
	resultRepo repository.ResultRepository,
	catalogSvc *catalog.Service,
	auditor *audit.Service,
	emitter *event.Emitter,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		resultRepo: resultRepo,
		catalogSvc: catalogSvc,
		auditor:    auditor,
		emitter:    emitter,
		logger:     logger,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req *model.CreateOrderRequest) (*model.Order, error) {
	priority := model.OrderPriority(req.Priority)
	if !priority.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown priority %q", req.Priority), nil)
	}

	tests := dedupeTests(req.Tests)
	if len(tests) == 0 {
		return nil, apperrors.NewValidation("at least one test is required", nil)
	}
	for _, code := range tests {
		if _, err := s.catalogSvc.GetActiveTest(ctx, code); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidation(fmt.Sprintf("unknown test code %q", code), err)
			}
			return nil, err
		}
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		OrderedTests:    tests,
		Priority:        priority,
		ClinicalInfo:    req.ClinicalInfo,
		DiagnosisCodes:  req.DiagnosisCodes,
		Status:          model.OrderStatusPending,
		Version:         1,
		CreatedAt:       now,
		StatusChangedAt: now,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.auditor.Log(ctx, "", model.AuditActionOrderCreate, model.AuditEntityOrder, order.ID.String(), &audit.LogOptions{
		Detail: order,
	})
	s.emitter.Emit(ctx, model.EventOrderCreated, order)
	s.logger.Info("order created",
		"order_id", order.ID.String(), "priority", string(order.Priority), "tests", len(tests))
	return order, nil
}

// GetOrder returns the order with its results so one fetch renders a
// full requisition view.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*model.OrderWithResults, error) {
	order, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("order %s", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	results, err := s.resultRepo.ListByOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list order results: %w", err)
	}
	if results == nil {
		results = []*model.Result{}
	}
	return &model.OrderWithResults{Order: *order, Results: results}, nil
}

// ListOrders returns the worklist: stat before urgent before routine,
// oldest first within a tier, paginated after ordering.
func (s *Service) ListOrders(ctx context.Context, filters *model.OrderFilters) ([]*model.Order, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown status %q", filters.Status), nil)
	}
	if filters.Priority != "" && !filters.Priority.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown priority %q", filters.Priority), nil)
	}
	filters.Normalize(50, 500)

	orders, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// TransitionStatus applies an externally requested transition under
// the version-CAS discipline. Completion is never requestable here;
// it fires automatically once every ordered test has a result.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, expectedVersion int64, newStatus model.OrderStatus) (*model.Order, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown status %q", newStatus), nil)
	}
	if newStatus == model.OrderStatusCompleted {
		return nil, apperrors.NewValidation("orders complete automatically once every test has a result", nil)
	}
	if expectedVersion < 1 {
		return nil, apperrors.NewValidation("expected_version must be positive", nil)
	}

	order, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("order %s", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if !model.CanTransition(order.Status, newStatus) {
		return nil, apperrors.NewInvalidTransition(string(order.Status), string(newStatus))
	}
	if order.Status == model.OrderStatusPending && newStatus == model.OrderStatusCancelled {
		count, err := s.resultRepo.CountDistinctTests(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to count order results: %w", err)
		}
		if count > 0 {
			return nil, apperrors.NewValidation("order already has results and can only be cancelled from in_progress", nil)
		}
	}

	updated, err := s.repo.UpdateStatusCAS(ctx, id, expectedVersion, newStatus, time.Now().UTC())
	if errors.Is(err, repository.ErrVersionConflict) {
		return nil, apperrors.NewConflict(fmt.Sprintf("order %s", id), err)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("order %s", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}

	s.auditor.Log(ctx, "", model.AuditActionOrderTransition, model.AuditEntityOrder, id.String(), &audit.LogOptions{
		Detail: map[string]interface{}{
			"from":    order.Status,
			"to":      updated.Status,
			"version": updated.Version,
		},
	})
	s.emitter.Emit(ctx, model.EventOrderStatusChanged, updated)
	s.logger.Info("order transitioned",
		"order_id", id.String(), "from", string(order.Status), "to", string(updated.Status))
	return updated, nil
}

// dedupeTests collapses duplicate codes to their first occurrence,
// preserving insertion order.
func dedupeTests(tests []string) []string {
	seen := make(map[string]struct{}, len(tests))
	out := make([]string, 0, len(tests))
	for _, code := range tests {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
