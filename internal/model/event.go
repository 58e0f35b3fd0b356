package model

// Broker channels for lifecycle events. Publishing is best-effort; no
// core contract depends on a subscriber being present.
const (
	EventOrderCreated       = "lab.order.created"
	EventOrderStatusChanged = "lab.order.status_changed"
	EventResultSubmitted    = "lab.result.submitted"
	EventAlertAcknowledged  = "lab.alert.acknowledged"
	EventAlertEscalated     = "lab.alert.escalated"
)
