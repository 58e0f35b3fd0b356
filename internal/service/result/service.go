package result

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/service/alert"
	"github.com/jwalitptl/lab-api/internal/service/audit"
	"github.com/jwalitptl/lab-api/internal/service/catalog"
	"github.com/jwalitptl/lab-api/internal/service/event"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
)

// Service ingests analyzer results: it scores each value against the
// catalog's reference range, queues alerts for critical values, and
// drives the automatic parts of the order state machine.
type Service struct {
	orderRepo  repository.OrderRepository
	resultRepo repository.ResultRepository
	catalogSvc *catalog.Service
	alertSvc   *alert.Service
	auditor    *audit.Service
	emitter    *event.Emitter
	logger     *logger.Logger
}

func NewService(
	orderRepo repository.OrderRepository,
	resultRepo repository.ResultRepository,
	catalogSvc *catalog.Service,
	alertSvc *alert.Service,
	auditor *audit.Service,
	emitter *event.Emitter,
	logger *logger.Logger,
) *Service {
	return &Service{
		orderRepo:  orderRepo,
		resultRepo: resultRepo,
		catalogSvc: catalogSvc,
		alertSvc:   alertSvc,
		auditor:    auditor,
		emitter:    emitter,
		logger:     logger,
	}
}

// SubmitResult records one measurement. The critical flag is computed
// here, never taken from the caller. A resubmission for the same
// (order, test) pair updates the stored row and re-evaluates
// criticality; a resubmission that stays critical resets the existing
// alert's delivery cycle, and one that turns non-critical leaves the
// earlier alert outstanding.
func (s *Service) SubmitResult(ctx context.Context, orderID uuid.UUID, req *model.SubmitResultRequest) (*model.Result, error) {
	order, err := s.orderRepo.Get(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("order %s", orderID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if !order.Open() {
		return nil, apperrors.NewValidation(
			fmt.Sprintf("order %s is %s and no longer accepts results", orderID, order.Status), nil)
	}
	if !order.HasTest(req.TestCode) {
		return nil, apperrors.NewValidation(
			fmt.Sprintf("test %s was not ordered on order %s", req.TestCode, orderID), nil)
	}

	entry, err := s.catalogSvc.GetActiveTest(ctx, req.TestCode)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewValidation(fmt.Sprintf("test %s is not in the catalog", req.TestCode), err)
		}
		return nil, err
	}

	isCritical, err := entry.IsCriticalValue(req.Value)
	if err != nil {
		return nil, apperrors.NewValidation(err.Error(), err)
	}

	now := time.Now().UTC()
	result := &model.Result{
		ID:             uuid.New(),
		OrderID:        order.ID,
		TestCode:       req.TestCode,
		PatientID:      order.PatientID,
		Value:          req.Value,
		Unit:           req.Unit,
		IsCritical:     isCritical,
		CatalogVersion: entry.Version,
		Notes:          req.Notes,
		CompletedAt:    now,
		UpdatedAt:      now,
	}

	previous, err := s.resultRepo.Upsert(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	// The alert must be queued before this call returns: a recorded
	// critical result with no queued alert would be invisible to the
	// dispatcher. Delivery itself stays asynchronous.
	var queued *model.Alert
	if isCritical {
		queued, err = s.alertSvc.EnqueueForResult(ctx, result, order.ProviderID)
		if err != nil {
			return nil, err
		}
	}

	// The analyzer starting work is the "start processing" event, so a
	// result against a pending order first walks pending->in_progress.
	if order.Status == model.OrderStatusPending {
		order, err = s.ensureInProgress(ctx, order)
		if err != nil {
			return nil, err
		}
	}

	if err := s.maybeComplete(ctx, order); err != nil {
		return nil, err
	}

	detail := map[string]interface{}{
		"test_code":       result.TestCode,
		"value":           result.Value,
		"is_critical":     result.IsCritical,
		"catalog_version": result.CatalogVersion,
		"resubmission":    previous != nil,
	}
	if queued != nil {
		detail["alert_id"] = queued.ID
	}
	s.auditor.Log(ctx, "", model.AuditActionResultSubmit, model.AuditEntityResult, result.ID.String(), &audit.LogOptions{
		Detail: detail,
	})
	s.emitter.Emit(ctx, model.EventResultSubmitted, result)
	s.logger.Info("result submitted",
		"order_id", orderID.String(),
		"test_code", result.TestCode,
		"is_critical", isCritical,
		"resubmission", previous != nil)
	return result, nil
}

// ensureInProgress walks the order out of pending under the CAS
// discipline, refetching on conflict until some writer has done it.
func (s *Service) ensureInProgress(ctx context.Context, order *model.Order) (*model.Order, error) {
	for order.Status == model.OrderStatusPending {
		updated, err := s.orderRepo.UpdateStatusCAS(ctx, order.ID, order.Version, model.OrderStatusInProgress, time.Now().UTC())
		if err == nil {
			s.emitter.Emit(ctx, model.EventOrderStatusChanged, updated)
			return updated, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to start order processing: %w", err)
		}

		order, err = s.orderRepo.Get(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to refetch order: %w", err)
		}
	}
	return order, nil
}

// maybeComplete fires the automatic in_progress -> completed edge once
// every ordered test has a result. The count runs after our own write
// committed, so the last writer always sees the full set; a CAS loss
// here means another submission already completed the order.
func (s *Service) maybeComplete(ctx context.Context, order *model.Order) error {
	if order.Status != model.OrderStatusInProgress {
		return nil
	}

	count, err := s.resultRepo.CountDistinctTests(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to count order results: %w", err)
	}
	if count < int64(len(order.OrderedTests)) {
		return nil
	}

	completed, err := s.orderRepo.UpdateStatusCAS(ctx, order.ID, order.Version, model.OrderStatusCompleted, time.Now().UTC())
	if errors.Is(err, repository.ErrVersionConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to complete order: %w", err)
	}

	s.auditor.Log(ctx, model.ActorSystem, model.AuditActionOrderTransition, model.AuditEntityOrder, order.ID.String(), &audit.LogOptions{
		Detail: map[string]interface{}{
			"from":    model.OrderStatusInProgress,
			"to":      model.OrderStatusCompleted,
			"version": completed.Version,
		},
	})
	s.emitter.Emit(ctx, model.EventOrderStatusChanged, completed)
	s.logger.Info("order completed", "order_id", order.ID.String())
	return nil
}
