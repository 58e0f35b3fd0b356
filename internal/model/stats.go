package model

// StatsSnapshot is the dashboard projection. It is recomputed from the
// order and alert stores on every read and holds no state of its own.
type StatsSnapshot struct {
	Total               int64 `db:"total" json:"total"`
	Pending             int64 `db:"pending" json:"pending"`
	InProgress          int64 `db:"in_progress" json:"in_progress"`
	CompletedToday      int64 `db:"completed_today" json:"completed_today"`
	OutstandingCritical int64 `db:"outstanding_critical" json:"outstanding_critical"`
}
