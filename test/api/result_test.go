package api_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/model"
)

func TestSubmitResultDrivesOrderLifecycle(t *testing.T) {
	srv := newTestServer(t)
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)
	srv.seedNumericTest(t, "GLU", "Glucose", "mg/dL", 40, 500)
	order := srv.createOrder(t, "pat-1", "dr-chen", []string{"K", "GLU"}, "routine")

	first := srv.submitResult(t, order.ID, "K", "4.2", "mmol/L")
	assert.False(t, first.IsCritical)
	assert.Equal(t, "pat-1", first.PatientID)
	assert.Equal(t, 1, first.CatalogVersion)

	// The first result walks the order out of pending on its own.
	detail := srv.getOrder(t, order.ID)
	assert.Equal(t, model.OrderStatusInProgress, detail.Status)
	assert.Equal(t, int64(2), detail.Version)

	srv.submitResult(t, order.ID, "GLU", "98", "mg/dL")

	// Every ordered test has a result now, so completion fires without
	// any external transition call.
	detail = srv.getOrder(t, order.ID)
	assert.Equal(t, model.OrderStatusCompleted, detail.Status)
	require.Len(t, detail.Results, 2)

	t.Run("completed order rejects further results", func(t *testing.T) {
		status, env := srv.do(t, "POST", "/api/v1/orders/"+order.ID.String()+"/results", map[string]interface{}{
			"test_code": "K",
			"value":     "4.5",
		}, "")
		assert.Equal(t, 400, status)
		assert.Equal(t, "error", env.Status)
	})
}

func TestSubmitResultValidation(t *testing.T) {
	srv := newTestServer(t)
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)
	order := srv.createOrder(t, "pat-1", "dr-chen", []string{"K"}, "routine")

	t.Run("test not on the order", func(t *testing.T) {
		status, _ := srv.do(t, "POST", "/api/v1/orders/"+order.ID.String()+"/results", map[string]interface{}{
			"test_code": "GLU",
			"value":     "98",
		}, "")
		assert.Equal(t, 400, status)
	})

	t.Run("non-numeric value for numeric test", func(t *testing.T) {
		status, env := srv.do(t, "POST", "/api/v1/orders/"+order.ID.String()+"/results", map[string]interface{}{
			"test_code": "K",
			"value":     "high",
		}, "")
		assert.Equal(t, 400, status)
		assert.Contains(t, env.Message, "numeric")
	})

	t.Run("missing value", func(t *testing.T) {
		status, _ := srv.do(t, "POST", "/api/v1/orders/"+order.ID.String()+"/results", map[string]interface{}{
			"test_code": "K",
		}, "")
		assert.Equal(t, 400, status)
	})

	t.Run("unknown order", func(t *testing.T) {
		status, _ := srv.do(t, "POST", "/api/v1/orders/"+uuid.NewString()+"/results", map[string]interface{}{
			"test_code": "K",
			"value":     "4.2",
		}, "")
		assert.Equal(t, 404, status)
	})

	t.Run("cancelled order rejects results", func(t *testing.T) {
		cancelled := srv.createOrder(t, "pat-2", "dr-chen", []string{"K"}, "routine")
		status, _ := srv.do(t, "POST", "/api/v1/orders/"+cancelled.ID.String()+"/transition", map[string]interface{}{
			"expected_version": 1,
			"status":           "cancelled",
		}, "")
		require.Equal(t, 200, status)

		status, _ = srv.do(t, "POST", "/api/v1/orders/"+cancelled.ID.String()+"/results", map[string]interface{}{
			"test_code": "K",
			"value":     "4.2",
		}, "")
		assert.Equal(t, 400, status)
	})
}

func TestCriticalityBoundaries(t *testing.T) {
	srv := newTestServer(t)
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)
	srv.seedNumericTest(t, "GLU", "Glucose", "mg/dL", 40, 500)
	// GLU stays unsubmitted so the order keeps accepting
	// resubmissions.
	order := srv.createOrder(t, "pat-1", "dr-chen", []string{"K", "GLU"}, "routine")

	tests := []struct {
		value    string
		critical bool
	}{
		{"2.8", false},
		{"6.2", false},
		{"4.5", false},
		{"2.79", true},
		{"6.21", true},
		{" 7.0 ", true},
	}

	for _, tt := range tests {
		got := srv.submitResult(t, order.ID, "K", tt.value, "mmol/L")
		assert.Equal(t, tt.critical, got.IsCritical, "value %q", tt.value)
	}

	// Resubmissions replaced the row in place.
	detail := srv.getOrder(t, order.ID)
	require.Len(t, detail.Results, 1)
	assert.Equal(t, " 7.0 ", detail.Results[0].Value)
}

func TestQualitativeCriticality(t *testing.T) {
	srv := newTestServer(t)
	srv.seedQualitativeTest(t, "BLOOD-CX", "Blood Culture", "negative", "no growth")

	normal := srv.createOrder(t, "pat-1", "dr-chen", []string{"BLOOD-CX"}, "routine")
	got := srv.submitResult(t, normal.ID, "BLOOD-CX", " Negative ", "")
	assert.False(t, got.IsCritical, "allowed values match after trimming and case folding")

	flagged := srv.createOrder(t, "pat-2", "dr-chen", []string{"BLOOD-CX"}, "routine")
	got = srv.submitResult(t, flagged.ID, "BLOOD-CX", "POSITIVE", "")
	assert.True(t, got.IsCritical)

	alerts := srv.listAlerts(t, "order_id="+flagged.ID.String())
	require.Len(t, alerts, 1)
	assert.Equal(t, "BLOOD-CX", alerts[0].TestCode)
}

func TestCriticalResultQueuesAlert(t *testing.T) {
	srv := newTestServer(t)
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)
	srv.seedNumericTest(t, "GLU", "Glucose", "mg/dL", 40, 500)
	order := srv.createOrder(t, "pat-1", "dr-reynolds", []string{"K", "GLU"}, "stat")

	critical := srv.submitResult(t, order.ID, "K", "7.5", "mmol/L")
	require.True(t, critical.IsCritical)

	alerts := srv.listAlerts(t, "order_id="+order.ID.String())
	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, critical.ID, alert.ResultID)
	assert.Equal(t, order.ID, alert.OrderID)
	assert.Equal(t, "K", alert.TestCode)
	assert.Equal(t, "dr-reynolds", alert.RecipientID, "alert goes to the ordering provider")
	assert.Equal(t, model.AlertStatePendingDelivery, alert.State)
	assert.Zero(t, alert.Attempts)

	t.Run("still-critical resubmission resets the cycle, not a duplicate", func(t *testing.T) {
		srv.submitResult(t, order.ID, "K", "8.1", "mmol/L")

		alerts := srv.listAlerts(t, "order_id="+order.ID.String())
		require.Len(t, alerts, 1)
		assert.Equal(t, alert.ID, alerts[0].ID)
		assert.Equal(t, model.AlertStatePendingDelivery, alerts[0].State)
	})

	t.Run("normal resubmission leaves the alert outstanding", func(t *testing.T) {
		got := srv.submitResult(t, order.ID, "K", "4.0", "mmol/L")
		require.False(t, got.IsCritical)

		alerts := srv.listAlerts(t, "order_id="+order.ID.String())
		require.Len(t, alerts, 1)
		assert.Equal(t, model.AlertStatePendingDelivery, alerts[0].State,
			"a clinician must still acknowledge the earlier critical report")
	})
}

func TestResultsPinCatalogVersion(t *testing.T) {
	srv := newTestServer(t)
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 6.2)
	srv.seedNumericTest(t, "GLU", "Glucose", "mg/dL", 40, 500)
	order := srv.createOrder(t, "pat-1", "dr-chen", []string{"K", "GLU"}, "routine")

	got := srv.submitResult(t, order.ID, "K", "7.0", "mmol/L")
	assert.True(t, got.IsCritical)
	assert.Equal(t, 1, got.CatalogVersion)

	// Widen the range; the next submission scores against version 2.
	srv.seedNumericTest(t, "K", "Potassium", "mmol/L", 2.8, 8.0)

	got = srv.submitResult(t, order.ID, "K", "7.0", "mmol/L")
	assert.False(t, got.IsCritical)
	assert.Equal(t, 2, got.CatalogVersion)
}
