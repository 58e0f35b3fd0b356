// Package api_test exercises the assembled HTTP surface end to end:
// real router, real middleware chain, real services, in-memory store.
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/handler"
	alertHandler "github.com/jwalitptl/lab-api/internal/handler/alert"
	auditHandler "github.com/jwalitptl/lab-api/internal/handler/audit"
	catalogHandler "github.com/jwalitptl/lab-api/internal/handler/catalog"
	orderHandler "github.com/jwalitptl/lab-api/internal/handler/order"
	statsHandler "github.com/jwalitptl/lab-api/internal/handler/stats"
	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository/memory"
	"github.com/jwalitptl/lab-api/internal/router"
	alertService "github.com/jwalitptl/lab-api/internal/service/alert"
	auditService "github.com/jwalitptl/lab-api/internal/service/audit"
	catalogService "github.com/jwalitptl/lab-api/internal/service/catalog"
	"github.com/jwalitptl/lab-api/internal/service/event"
	orderService "github.com/jwalitptl/lab-api/internal/service/order"
	resultService "github.com/jwalitptl/lab-api/internal/service/result"
	statsService "github.com/jwalitptl/lab-api/internal/service/stats"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/messaging"
	"github.com/jwalitptl/lab-api/pkg/metrics"
	"github.com/jwalitptl/lab-api/pkg/validator"
)

const testSecret = "api-test-secret"

func TestMain(m *testing.M) {
	if err := validator.RegisterBinding(); err != nil {
		fmt.Printf("failed to register validators: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// envelope mirrors the wire shape shared by success and error
// responses.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

type testServer struct {
	engine *router.Router
}

// newTestServer assembles the full stack the way cmd/api does, with
// the in-memory store in place of Postgres and a no-op broker.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore()
	orderRepo := memory.NewOrderRepository(store)
	resultRepo := memory.NewResultRepository(store)
	alertRepo := memory.NewAlertRepository(store)
	catalogRepo := memory.NewTestCatalogRepository(store)
	auditRepo := memory.NewAuditRepository(store)

	appLogger := logger.NewLogger(&logger.Config{Level: logger.FatalLevel, Output: io.Discard})
	m := metrics.New("api_e2e")
	emitter := event.NewEmitter(messaging.NewNopBroker(), appLogger, m)

	auditSvc := auditService.NewService(auditRepo, appLogger)
	catalogSvc := catalogService.NewService(catalogRepo, auditSvc, appLogger)
	alertSvc := alertService.NewService(alertRepo, auditSvc, emitter, appLogger)
	orderSvc := orderService.NewService(orderRepo, resultRepo, catalogSvc, auditSvc, emitter, appLogger)
	resultSvc := resultService.NewService(orderRepo, resultRepo, catalogSvc, alertSvc, auditSvc, emitter, appLogger)
	statsSvc, err := statsService.NewService(orderRepo, alertRepo, "UTC")
	require.NoError(t, err)

	r := router.NewRouter(
		handler.NewHandler(store),
		orderHandler.NewHandler(orderSvc, resultSvc),
		alertHandler.NewHandler(alertSvc),
		statsHandler.NewHandler(statsSvc),
		catalogHandler.NewHandler(catalogSvc),
		auditHandler.NewHandler(auditSvc),
		auth.NewTokenParser(testSecret),
		m,
		router.DefaultRouterConfig(),
	)
	r.Setup()

	return &testServer{engine: r}
}

// do runs one request through the engine and decodes the envelope.
// Endpoints that bypass the envelope (probes, metrics) go through raw.
func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (int, envelope) {
	t.Helper()

	rec := s.raw(t, method, path, body, token)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env),
			"undecodable body: %s", rec.Body.String())
	}
	return rec.Code, env
}

func (s *testServer) raw(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.engine.Engine().ServeHTTP(rec, req)
	return rec
}

func (s *testServer) rawWithHeader(t *testing.T, method, path, key, value string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(key, value)

	rec := httptest.NewRecorder()
	s.engine.Engine().ServeHTTP(rec, req)
	return rec
}

func unmarshalData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.Equal(t, "success", env.Status, "message: %s", env.Message)
	require.NotEmpty(t, env.Data)
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func (s *testServer) seedNumericTest(t *testing.T, code, name, unit string, low, high float64) {
	t.Helper()

	status, env := s.do(t, "PUT", "/api/v1/catalog/tests/"+code, map[string]interface{}{
		"name":          name,
		"unit":          unit,
		"kind":          "numeric",
		"critical_low":  low,
		"critical_high": high,
	}, "")
	require.Equal(t, 200, status, "message: %s", env.Message)
}

func (s *testServer) seedQualitativeTest(t *testing.T, code, name string, allowed ...string) {
	t.Helper()

	status, env := s.do(t, "PUT", "/api/v1/catalog/tests/"+code, map[string]interface{}{
		"name":           name,
		"kind":           "qualitative",
		"allowed_values": allowed,
	}, "")
	require.Equal(t, 200, status, "message: %s", env.Message)
}

func (s *testServer) createOrder(t *testing.T, patientID, providerID string, tests []string, priority string) model.Order {
	t.Helper()

	status, env := s.do(t, "POST", "/api/v1/orders", map[string]interface{}{
		"patient_id":  patientID,
		"provider_id": providerID,
		"tests":       tests,
		"priority":    priority,
	}, "")
	require.Equal(t, 201, status, "message: %s", env.Message)

	var order model.Order
	unmarshalData(t, env, &order)
	return order
}

func (s *testServer) submitResult(t *testing.T, orderID uuid.UUID, code, value, unit string) model.Result {
	t.Helper()

	status, env := s.do(t, "POST", "/api/v1/orders/"+orderID.String()+"/results", map[string]interface{}{
		"test_code": code,
		"value":     value,
		"unit":      unit,
	}, "")
	require.Equal(t, 201, status, "message: %s", env.Message)

	var result model.Result
	unmarshalData(t, env, &result)
	return result
}

func (s *testServer) getOrder(t *testing.T, id uuid.UUID) model.OrderWithResults {
	t.Helper()

	status, env := s.do(t, "GET", "/api/v1/orders/"+id.String(), nil, "")
	require.Equal(t, 200, status, "message: %s", env.Message)

	var detail model.OrderWithResults
	unmarshalData(t, env, &detail)
	return detail
}

func (s *testServer) listAlerts(t *testing.T, query string) []*model.Alert {
	t.Helper()

	path := "/api/v1/alerts"
	if query != "" {
		path += "?" + query
	}
	status, env := s.do(t, "GET", path, nil, "")
	require.Equal(t, 200, status, "message: %s", env.Message)

	var alerts []*model.Alert
	unmarshalData(t, env, &alerts)
	return alerts
}

func signToken(t *testing.T, userID string) string {
	t.Helper()

	claims := auth.ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}
