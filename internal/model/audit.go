package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ActorID    string          `json:"actor_id" db:"actor_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   string          `json:"entity_id" db:"entity_id"`
	Detail     json.RawMessage `json:"detail,omitempty" db:"detail"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionOrderCreate      = "order.create"
	AuditActionOrderTransition  = "order.transition"
	AuditActionResultSubmit     = "result.submit"
	AuditActionAlertAcknowledge = "alert.acknowledge"
	AuditActionCatalogUpsert    = "catalog.upsert"

	// Entity types
	AuditEntityOrder   = "order"
	AuditEntityResult  = "result"
	AuditEntityAlert   = "alert"
	AuditEntityCatalog = "test_catalog"
)

// ActorSystem attributes writes originating from background workers.
const ActorSystem = "system"

type AuditFilters struct {
	EntityType string
	EntityID   string
	ActorID    string
	Pagination
}
