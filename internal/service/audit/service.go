package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/logger"
)

// Service appends audit records for state-changing operations. Writes
// are best-effort: a failed append is logged and never fails the
// business operation it describes.
type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type LogOptions struct {
	Detail    interface{}
	IPAddress string
}

// Log records one action. An empty actorID falls back to the request's
// bearer actor, then to the system actor for worker-originated writes.
func (s *Service) Log(ctx context.Context, actorID, action, entityType, entityID string, opts *LogOptions) {
	var detail json.RawMessage
	var ipAddress string

	if opts != nil {
		if opts.Detail != nil {
			marshaled, err := json.Marshal(opts.Detail)
			if err != nil {
				s.logger.Error(err, "failed to marshal audit detail", "action", action)
			} else {
				detail = marshaled
			}
		}
		ipAddress = opts.IPAddress
	}

	if actorID == "" {
		actorID = auth.ActorFromContext(ctx)
	}
	if gc, ok := ctx.(*gin.Context); ok && ipAddress == "" {
		ipAddress = gc.ClientIP()
	}
	if actorID == "" {
		actorID = model.ActorSystem
	}

	record := &model.AuditLog{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		IPAddress:  ipAddress,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error(err, "failed to write audit record",
			"action", action, "entity_type", entityType, "entity_id", entityID)
	}
}

func (s *Service) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	filters.Normalize(50, 500)

	logs, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return logs, nil
}
