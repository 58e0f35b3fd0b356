package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

// Service derives the dashboard snapshot. It is a pure projection over
// the order and alert stores: no state of its own, recomputed from
// ground truth on every read.
type Service struct {
	orderRepo repository.OrderRepository
	alertRepo repository.AlertRepository
	location  *time.Location
}

// NewService resolves the timezone that decides which calendar day
// "completed today" refers to.
func NewService(orderRepo repository.OrderRepository, alertRepo repository.AlertRepository, timezone string) (*Service, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats timezone %q: %w", timezone, err)
	}
	return &Service{
		orderRepo: orderRepo,
		alertRepo: alertRepo,
		location:  location,
	}, nil
}

func (s *Service) Snapshot(ctx context.Context) (*model.StatsSnapshot, error) {
	counts, err := s.orderRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	now := time.Now().In(s.location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	completedToday, err := s.orderRepo.CountCompletedBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to count completed orders: %w", err)
	}

	outstanding, err := s.alertRepo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active alerts: %w", err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &model.StatsSnapshot{
		Total:               total,
		Pending:             counts[model.OrderStatusPending],
		InProgress:          counts[model.OrderStatusInProgress],
		CompletedToday:      completedToday,
		OutstandingCritical: outstanding,
	}, nil
}
