package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/service/audit"
	"github.com/jwalitptl/lab-api/internal/service/event"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
)

// Service owns the acknowledgment side of critical-value alerts and
// the enqueue step the result ingestor calls. Delivery itself runs in
// the dispatcher worker.
type Service struct {
	repo    repository.AlertRepository
	auditor *audit.Service
	emitter *event.Emitter
	logger  *logger.Logger
}

func NewService(repo repository.AlertRepository, auditor *audit.Service, emitter *event.Emitter, logger *logger.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, emitter: emitter, logger: logger}
}

// EnqueueForResult queues delivery for a critical result. A still
// active alert for the same result is reset to a fresh delivery cycle
// instead of duplicated.
func (s *Service) EnqueueForResult(ctx context.Context, result *model.Result, recipientID string) (*model.Alert, error) {
	now := time.Now().UTC()
	alert := &model.Alert{
		ID:          uuid.New(),
		ResultID:    result.ID,
		OrderID:     result.OrderID,
		TestCode:    result.TestCode,
		RecipientID: recipientID,
		State:       model.AlertStatePendingDelivery,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, err := s.repo.EnqueueForResult(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue alert: %w", err)
	}

	s.logger.Info("critical alert queued",
		"alert_id", stored.ID.String(),
		"result_id", result.ID.String(),
		"test_code", result.TestCode,
		"recipient_id", recipientID)
	return stored, nil
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	alert, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("alert %s", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

func (s *Service) ListAlerts(ctx context.Context, filters *model.AlertFilters) ([]*model.Alert, error) {
	if filters.State != "" {
		switch filters.State {
		case model.AlertStatePendingDelivery, model.AlertStateDelivered,
			model.AlertStateAcknowledged, model.AlertStateDeliveryFailed:
		default:
			return nil, apperrors.NewValidation(fmt.Sprintf("unknown alert state %q", filters.State), nil)
		}
	}
	filters.Normalize(50, 500)

	alerts, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Acknowledge marks the alert seen by userID. Repeating the call with
// the same user returns the settled alert unchanged; a different user
// is rejected so "who saw this" stays unambiguous.
func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, userID string) (*model.Alert, error) {
	alert, performed, err := s.repo.Acknowledge(ctx, id, userID, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("alert %s", id), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	if !performed {
		if alert.AcknowledgedBy != nil && *alert.AcknowledgedBy == userID {
			return alert, nil
		}
		ackedBy := ""
		if alert.AcknowledgedBy != nil {
			ackedBy = *alert.AcknowledgedBy
		}
		return nil, apperrors.NewAlreadyAcknowledged(ackedBy)
	}

	s.auditor.Log(ctx, userID, model.AuditActionAlertAcknowledge, model.AuditEntityAlert, id.String(), &audit.LogOptions{
		Detail: map[string]interface{}{
			"result_id": alert.ResultID,
			"test_code": alert.TestCode,
		},
	})
	s.emitter.Emit(ctx, model.EventAlertAcknowledged, alert)
	s.logger.Info("alert acknowledged", "alert_id", id.String(), "user_id", userID)
	return alert, nil
}
