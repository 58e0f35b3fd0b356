package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/service/audit"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/validator"
)

const (
	cacheTTL     = 30 * time.Second
	cacheCleanup = time.Minute
)

// Service owns the orderable-test reference data. Reads on the result
// submission hot path go through a short TTL cache; upserts invalidate
// the cached code so new submissions score against the fresh range.
type Service struct {
	repo    repository.TestCatalogRepository
	cache   *cache.Cache
	auditor *audit.Service
	logger  *logger.Logger
}

func NewService(repo repository.TestCatalogRepository, auditor *audit.Service, logger *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache.New(cacheTTL, cacheCleanup),
		auditor: auditor,
		logger:  logger,
	}
}

func (s *Service) ListTests(ctx context.Context) ([]*model.TestCatalogEntry, error) {
	entries, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return entries, nil
}

// GetActiveTest returns the latest active version of a test.
func (s *Service) GetActiveTest(ctx context.Context, code string) (*model.TestCatalogEntry, error) {
	if cached, found := s.cache.Get(code); found {
		return cached.(*model.TestCatalogEntry), nil
	}

	entry, err := s.repo.GetActiveByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("test %s", code), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test %s: %w", code, err)
	}

	s.cache.Set(code, entry, cache.DefaultExpiration)
	return entry, nil
}

// GetTestVersion returns one historical version, active or retired.
func (s *Service) GetTestVersion(ctx context.Context, code string, version int) (*model.TestCatalogEntry, error) {
	entry, err := s.repo.GetVersion(ctx, code, version)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("test %s version %d", code, version), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test %s version %d: %w", code, version, err)
	}
	return entry, nil
}

// UpsertTest publishes a new version of the entry for code, retiring
// the current active one. Results scored against earlier versions keep
// their recorded version.
func (s *Service) UpsertTest(ctx context.Context, code string, req *model.UpsertTestRequest) (*model.TestCatalogEntry, error) {
	entry := &model.TestCatalogEntry{
		ID:            uuid.New(),
		Code:          code,
		Name:          req.Name,
		Category:      req.Category,
		Unit:          req.Unit,
		Kind:          model.TestKind(req.Kind),
		CriticalLow:   req.CriticalLow,
		CriticalHigh:  req.CriticalHigh,
		AllowedValues: req.AllowedValues,
		CreatedAt:     time.Now().UTC(),
	}

	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	stored, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert test %s: %w", code, err)
	}
	s.cache.Delete(code)

	s.auditor.Log(ctx, "", model.AuditActionCatalogUpsert, model.AuditEntityCatalog, code, &audit.LogOptions{
		Detail: stored,
	})
	s.logger.Info("catalog entry published", "code", stored.Code, "version", stored.Version)
	return stored, nil
}

func validateEntry(entry *model.TestCatalogEntry) error {
	if !validator.ValidTestCode(entry.Code) {
		return apperrors.NewValidation(fmt.Sprintf("invalid test code %q", entry.Code), nil)
	}
	if entry.Name == "" {
		return apperrors.NewValidation("test name is required", nil)
	}

	switch entry.Kind {
	case model.TestKindNumeric:
		if entry.Unit == "" {
			return apperrors.NewValidation("numeric tests require a unit", nil)
		}
		if entry.CriticalLow == nil && entry.CriticalHigh == nil {
			return apperrors.NewValidation("numeric tests require at least one critical bound", nil)
		}
		if entry.CriticalLow != nil && entry.CriticalHigh != nil && *entry.CriticalLow > *entry.CriticalHigh {
			return apperrors.NewValidation("critical_low must not exceed critical_high", nil)
		}
	case model.TestKindQualitative:
		if len(entry.AllowedValues) == 0 {
			return apperrors.NewValidation("qualitative tests require at least one allowed value", nil)
		}
	default:
		return apperrors.NewValidation(fmt.Sprintf("unknown test kind %q", entry.Kind), nil)
	}
	return nil
}
