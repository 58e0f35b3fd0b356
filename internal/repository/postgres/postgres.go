package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lab-api/internal/repository"
)

type orderRepository struct {
	BaseRepository
}

type resultRepository struct {
	BaseRepository
}

type alertRepository struct {
	BaseRepository
}

type testCatalogRepository struct {
	BaseRepository
}

type auditRepository struct {
	BaseRepository
}

func NewOrderRepository(db *sqlx.DB) repository.OrderRepository {
	return &orderRepository{NewBaseRepository(db)}
}

func NewResultRepository(db *sqlx.DB) repository.ResultRepository {
	return &resultRepository{NewBaseRepository(db)}
}

func NewAlertRepository(db *sqlx.DB) repository.AlertRepository {
	return &alertRepository{NewBaseRepository(db)}
}

func NewTestCatalogRepository(db *sqlx.DB) repository.TestCatalogRepository {
	return &testCatalogRepository{NewBaseRepository(db)}
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{NewBaseRepository(db)}
}
