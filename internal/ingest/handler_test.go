package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregator/internal/consumer"
	"aggregator/internal/ledger"
	"aggregator/internal/logger"
	"aggregator/pkg/health"
)

type harness struct {
	router   *gin.Engine
	store    *ledger.Store
	consumer *consumer.Consumer
}

func newHarness(t *testing.T, withAdmin bool) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), logger.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := consumer.New(store, consumer.NewSimulatedProcessor(time.Millisecond, logger.NopLogger()), logger.NopLogger())
	go func() { _ = c.Start(context.Background()) }()
	t.Cleanup(c.Stop)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewStorageChecker("ledger", store))

	var admin Admin
	if withAdmin {
		admin = store
	}

	router := gin.New()
	NewHandler(c, admin, healthRegistry, logger.NopLogger()).RegisterRoutes(router)

	return &harness{router: router, store: store, consumer: c}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) waitDrained(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		stats, err := h.consumer.Stats(context.Background())
		if err != nil {
			return false
		}
		return h.consumer.QueueDepth() == 0 &&
			stats.UniqueProcessed+stats.DuplicateDropped == stats.Received
	}, 5*time.Second, 5*time.Millisecond)
}

func validEvent() map[string]interface{} {
	return map[string]interface{}{
		"topic":     "user.login",
		"event_id":  "evt-12345",
		"timestamp": "2025-10-22T10:30:00Z",
		"source":    "auth-service",
		"payload":   map[string]interface{}{"user_id": 123, "ip": "192.168.1.1"},
	}
}

func TestPublish_Accepted(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(t, http.MethodPost, "/publish", validEvent())
	require.Equal(t, http.StatusOK, w.Code)

	var resp PublishResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "evt-12345", resp.EventID)
	assert.NotEmpty(t, resp.ReceivedAt)
}

func TestPublish_DuplicateStillAccepted(t *testing.T) {
	h := newHarness(t, false)

	for i := 0; i < 2; i++ {
		w := h.do(t, http.MethodPost, "/publish", validEvent())
		assert.Equal(t, http.StatusOK, w.Code, "acceptance is independent of duplicate status")
	}

	h.waitDrained(t)

	stats, err := h.consumer.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Received)
	assert.Equal(t, int64(1), stats.UniqueProcessed)
	assert.Equal(t, int64(1), stats.DuplicateDropped)
}

func TestPublish_MissingFieldRejected(t *testing.T) {
	h := newHarness(t, false)

	for _, field := range []string{"topic", "event_id", "source", "timestamp"} {
		ev := validEvent()
		delete(ev, field)

		w := h.do(t, http.MethodPost, "/publish", ev)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "missing %s", field)
	}

	stats, err := h.consumer.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Received, "rejected events never enter the core")
}

func TestPublish_MalformedTimestampRejected(t *testing.T) {
	h := newHarness(t, false)

	ev := validEvent()
	ev["timestamp"] = "yesterday at noon"

	w := h.do(t, http.MethodPost, "/publish", ev)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPublish_MalformedBodyRejected(t *testing.T) {
	h := newHarness(t, false)

	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListEvents_FilterAndDefault(t *testing.T) {
	h := newHarness(t, false)

	for _, ev := range []map[string]interface{}{
		{"topic": "topic.a", "event_id": "evt-1"},
		{"topic": "topic.a", "event_id": "evt-2"},
		{"topic": "topic.b", "event_id": "evt-1"},
	} {
		body := validEvent()
		body["topic"] = ev["topic"]
		body["event_id"] = ev["event_id"]
		require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/publish", body).Code)
	}
	h.waitDrained(t)

	w := h.do(t, http.MethodGet, "/events?topic=topic.a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp EventListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "topic.a", resp.Topic)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "evt-2", resp.Events[0].EventID, "newest first")

	w = h.do(t, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
}

func TestListEvents_LimitValidation(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(t, http.MethodGet, "/events?limit=abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Out-of-range limits are clamped, not rejected.
	w = h.do(t, http.MethodGet, "/events?limit=0", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/events?limit=99999", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetStats(t *testing.T) {
	h := newHarness(t, false)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/publish", validEvent()).Code)
	h.waitDrained(t)

	w := h.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, float64(1), stats["received"])
	assert.Equal(t, float64(1), stats["unique_processed"])
	assert.Equal(t, float64(0), stats["duplicate_dropped"])
	assert.Equal(t, []interface{}{"user.login"}, stats["topics"])
	assert.GreaterOrEqual(t, stats["uptime"], 0.0)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestRoot(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info ServiceInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "running", info.Status)
	assert.Contains(t, info.Endpoints, "publish")
}

func TestReset_AdminDisabled(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(t, http.MethodPost, "/admin/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "reset is not routed unless enabled")
}

func TestReset_WipesLedger(t *testing.T) {
	h := newHarness(t, true)

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/publish", validEvent()).Code)
	h.waitDrained(t)

	w := h.do(t, http.MethodPost, "/admin/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	found, err := h.store.Contains(context.Background(), "user.login", "evt-12345")
	require.NoError(t, err)
	assert.False(t, found)
}
