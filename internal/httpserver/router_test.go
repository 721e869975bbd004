package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pennywise/internal/recurring"
	"pennywise/internal/repository/sqlite"
	"pennywise/internal/service"
	"pennywise/pkg/trace"
)

var clock = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

type testServer struct {
	router *Router
	ready  error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop()
	rules := sqlite.NewRuleStore(db)
	txs := sqlite.NewTransactionStore(db)
	engine := recurring.NewEngine(rules, txs, nil, log, recurring.WithClock(func() time.Time { return clock }))
	svc := recurring.NewService(rules, engine, txs, nil, log)
	auth := service.NewAuthService(sqlite.NewUserStore(db), "test-secret", log)

	ts := &testServer{}
	ts.router = NewRouter(
		NewAuthHandler(auth, log),
		NewRecurringHandler(svc, log),
		auth,
		func(ctx context.Context) error { return ts.ready },
		log,
	)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.Engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	creds := map[string]string{"email": email, "password": "s3cret-pass"}
	w, _ := ts.do(t, http.MethodPost, "/register", "", creds)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, body := ts.do(t, http.MethodPost, "/login", "", creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["data"].(map[string]any)["token"].(string)
}

func rentBody() map[string]any {
	return map[string]any{
		"amount":      "1200",
		"kind":        "expense",
		"category":    "Housing",
		"description": "Rent",
		"frequency":   "monthly",
		"next_due_at": "2026-01-01T00:00:00Z",
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])

	ts.ready = errors.New("no db")
	w, _ = ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodGet, "/recurring", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["success"])

	w, _ = ts.do(t, http.MethodGet, "/recurring", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := ts.login(t, "a@example.com")

	w, _ = ts.do(t, http.MethodPost, "/register", "", map[string]string{"email": "a@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/login", "", map[string]string{"email": "a@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/recurring", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecurringLifecycle(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login(t, "alice@example.com")
	bob := ts.login(t, "bob@example.com")

	w, body := ts.do(t, http.MethodPost, "/recurring", alice, rentBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rule := body["data"].(map[string]any)
	id := rule["id"].(string)
	assert.Equal(t, "1200", rule["amount"])
	assert.Equal(t, true, rule["active"])

	t.Run("other owner sees nothing", func(t *testing.T) {
		w, body := ts.do(t, http.MethodGet, "/recurring/"+id, bob, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

		w, _ = ts.do(t, http.MethodPost, "/recurring/"+id+"/execute-now", bob, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list envelope", func(t *testing.T) {
		w, body := ts.do(t, http.MethodGet, "/recurring?limit=10", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["success"])
		assert.EqualValues(t, 1, body["total"])
		assert.EqualValues(t, 1, body["count"])
		assert.EqualValues(t, 1, body["pages"])
		assert.EqualValues(t, 1, body["page"])
		assert.EqualValues(t, 10, body["limit"])
		assert.Len(t, body["data"], 1)
	})

	t.Run("execute now", func(t *testing.T) {
		w, body := ts.do(t, http.MethodPost, "/recurring/"+id+"/execute-now", alice, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		rec := body["data"].(map[string]any)
		assert.Equal(t, "succeeded", rec["outcome"])
		assert.Equal(t, "2026-01-31T00:00:00Z", rec["next_due_at"])
		assert.NotEmpty(t, rec["transaction_id"])

		w, body = ts.do(t, http.MethodGet, "/recurring/"+id+"/transactions", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, body["total"])
		tx := body["data"].([]any)[0].(map[string]any)
		assert.Equal(t, rec["transaction_id"], tx["id"])
		assert.Equal(t, id, tx["recurring_rule_id"])
	})

	t.Run("update", func(t *testing.T) {
		w, body := ts.do(t, http.MethodPut, "/recurring/"+id, alice, map[string]any{"description": "Rent + parking"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Rent + parking", body["data"].(map[string]any)["description"])

		w, _ = ts.do(t, http.MethodPut, "/recurring/"+id, alice, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete deactivates", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodDelete, "/recurring/"+id, alice, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w, body := ts.do(t, http.MethodGet, "/recurring/"+id, alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, body["data"].(map[string]any)["active"])

		w, body = ts.do(t, http.MethodGet, "/recurring", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 0, body["total"])

		w, body = ts.do(t, http.MethodGet, "/recurring?active_only=false", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, body["total"])

		w, _ = ts.do(t, http.MethodPost, "/recurring/"+id+"/execute-now", alice, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRecurringValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "v@example.com")

	bad := rentBody()
	bad["amount"] = "0"
	w, body := ts.do(t, http.MethodPost, "/recurring", token, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])

	bad = rentBody()
	bad["frequency"] = "hourly"
	w, _ = ts.do(t, http.MethodPost, "/recurring", token, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/recurring?page=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/recurring?limit=1000", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/recurring?active_only=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTraceHeader(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "trace-from-client")
	w := httptest.NewRecorder()
	ts.router.Engine.ServeHTTP(w, req)
	assert.Equal(t, "trace-from-client", w.Header().Get(trace.HeaderName))

	w, _ = ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))
}
