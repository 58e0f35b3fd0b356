package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/model"
)

func snapshot(t *testing.T, srv *testServer) model.StatsSnapshot {
	t.Helper()

	status, env := srv.do(t, "GET", "/api/v1/stats/snapshot", nil, "")
	require.Equal(t, 200, status, "message: %s", env.Message)

	var snap model.StatsSnapshot
	unmarshalData(t, env, &snap)
	return snap
}

func TestStatsSnapshot(t *testing.T) {
	srv := newTestServer(t)

	empty := snapshot(t, srv)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.OutstandingCritical)

	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)
	srv.seedNumericTest(t, "GLU", "Glucose", "mg/dL", 40, 500)

	srv.createOrder(t, "pat-a", "dr-chen", []string{"K"}, "routine")

	completed := srv.createOrder(t, "pat-b", "dr-chen", []string{"K"}, "routine")
	srv.submitResult(t, completed.ID, "K", "4.2", "mmol/L")

	flagged := srv.createOrder(t, "pat-c", "dr-reynolds", []string{"K", "GLU"}, "stat")
	srv.submitResult(t, flagged.ID, "K", "7.5", "mmol/L")

	snap := snapshot(t, srv)
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, int64(1), snap.Pending)
	assert.Equal(t, int64(1), snap.InProgress)
	assert.Equal(t, int64(1), snap.CompletedToday)
	assert.Equal(t, int64(1), snap.OutstandingCritical)

	// Outstanding tracks acknowledgment, not delivery.
	alerts := srv.listAlerts(t, "order_id="+flagged.ID.String())
	require.Len(t, alerts, 1)
	status, _ := srv.do(t, "POST", "/api/v1/alerts/"+alerts[0].ID.String()+"/acknowledge", map[string]interface{}{
		"user_id": "dr-reynolds",
	}, "")
	require.Equal(t, 200, status)

	snap = snapshot(t, srv)
	assert.Zero(t, snap.OutstandingCritical)
	assert.Equal(t, int64(3), snap.Total)
}

func listAudit(t *testing.T, srv *testServer, query string) []*model.AuditLog {
	t.Helper()

	path := "/api/v1/audit"
	if query != "" {
		path += "?" + query
	}
	status, env := srv.do(t, "GET", path, nil, "")
	require.Equal(t, 200, status, "message: %s", env.Message)

	var records []*model.AuditLog
	unmarshalData(t, env, &records)
	return records
}

func TestAuditTrail(t *testing.T) {
	srv := newTestServer(t)
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)
	srv.seedNumericTest(t, "GLU", "Glucose", "mg/dL", 40, 500)

	order := srv.createOrder(t, "pat-1", "dr-reynolds", []string{"K", "GLU"}, "stat")

	status, _ := srv.do(t, "POST", "/api/v1/orders/"+order.ID.String()+"/transition", map[string]interface{}{
		"expected_version": 1,
		"status":           "in_progress",
	}, "")
	require.Equal(t, 200, status)

	srv.submitResult(t, order.ID, "K", "7.5", "mmol/L")

	alerts := srv.listAlerts(t, "order_id="+order.ID.String())
	require.Len(t, alerts, 1)
	status, _ = srv.do(t, "POST", "/api/v1/alerts/"+alerts[0].ID.String()+"/acknowledge", map[string]interface{}{
		"user_id": "dr-reynolds",
	}, "")
	require.Equal(t, 200, status)

	t.Run("orders leave create and transition entries", func(t *testing.T) {
		records := listAudit(t, srv, "entity_type=order&entity_id="+order.ID.String())
		require.Len(t, records, 2)
		// Newest first.
		assert.Equal(t, model.AuditActionOrderTransition, records[0].Action)
		assert.Equal(t, model.AuditActionOrderCreate, records[1].Action)
	})

	t.Run("acknowledgment records the acting user", func(t *testing.T) {
		records := listAudit(t, srv, "actor_id=dr-reynolds")
		require.Len(t, records, 1)
		assert.Equal(t, model.AuditActionAlertAcknowledge, records[0].Action)
		assert.Equal(t, model.AuditEntityAlert, records[0].EntityType)
	})

	t.Run("catalog upserts are recorded", func(t *testing.T) {
		records := listAudit(t, srv, "entity_type=test_catalog")
		require.Len(t, records, 2)
		assert.Equal(t, model.AuditActionCatalogUpsert, records[0].Action)
	})

	t.Run("result submissions are recorded", func(t *testing.T) {
		records := listAudit(t, srv, "entity_type=result")
		require.Len(t, records, 1)
	})
}

func TestAuditActorAttribution(t *testing.T) {
	srv := newTestServer(t)
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)

	// Anonymous writes attribute to the system actor.
	anon := srv.createOrder(t, "pat-1", "dr-chen", []string{"K"}, "routine")
	records := listAudit(t, srv, "entity_type=order&entity_id="+anon.ID.String())
	require.Len(t, records, 1)
	assert.Equal(t, model.ActorSystem, records[0].ActorID)

	// A bearer token pins the write to its subject.
	token := signToken(t, "dr-rivera")
	status, env := srv.do(t, "POST", "/api/v1/orders", map[string]interface{}{
		"patient_id":  "pat-2",
		"provider_id": "dr-chen",
		"tests":       []string{"K"},
		"priority":    "routine",
	}, token)
	require.Equal(t, 201, status, "message: %s", env.Message)

	var authed model.Order
	unmarshalData(t, env, &authed)
	records = listAudit(t, srv, "entity_type=order&entity_id="+authed.ID.String())
	require.Len(t, records, 1)
	assert.Equal(t, "dr-rivera", records[0].ActorID)

	// A garbage token is ignored rather than rejected; the write goes
	// through anonymously.
	status, env = srv.do(t, "POST", "/api/v1/orders", map[string]interface{}{
		"patient_id":  "pat-3",
		"provider_id": "dr-chen",
		"tests":       []string{"K"},
		"priority":    "routine",
	}, "not-a-jwt")
	require.Equal(t, 201, status, "message: %s", env.Message)

	var garbage model.Order
	unmarshalData(t, env, &garbage)
	records = listAudit(t, srv, "entity_type=order&entity_id="+garbage.ID.String())
	require.Len(t, records, 1)
	assert.Equal(t, model.ActorSystem, records[0].ActorID)
}
