package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executionservice "robopay/internal/execution/service"
	lockrepository "robopay/internal/locks/repository"
	"robopay/internal/payments/service"
	"robopay/internal/payments/validator"
	robotserrors "robopay/internal/robots/errors"
	robothandler "robopay/internal/robots/handler"
	robotservice "robopay/internal/robots/service"
	sessionrepository "robopay/internal/sessions/repository"
	settlementerrors "robopay/internal/settlement/errors"
	"robopay/internal/settlement/verifier"
	"robopay/pkg/auth"
	"robopay/pkg/config"
	"robopay/pkg/events"
	"robopay/pkg/logger"
	"robopay/pkg/model"
	"robopay/pkg/money"
	"robopay/pkg/x402"
)

type robotRepo struct{ robot *model.Robot }

func (r *robotRepo) FindByID(ctx context.Context, id string) (*model.Robot, error) {
	if id == r.robot.ID {
		return r.robot, nil
	}
	return nil, robotserrors.ErrNotFound
}

type acceptingVerifier struct{}

func (acceptingVerifier) Verify(ctx context.Context, exp verifier.Expectation) verifier.Outcome {
	return verifier.Outcome{Verified: true}
}

type settlements struct {
	mu   sync.Mutex
	seen map[string]string
}

func (s *settlements) Record(ctx context.Context, st *model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.seen[st.Signature]; ok && session != st.SessionID {
		return settlementerrors.ErrSignatureUsed
	}
	s.seen[st.Signature] = st.SessionID
	return nil
}

func (s *settlements) FindBySignature(ctx context.Context, signature string) (*model.Settlement, error) {
	return nil, settlementerrors.ErrTransactionNotFound
}

func (s *settlements) Release(ctx context.Context, signature, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.seen[signature]; ok && session == sessionID {
		delete(s.seen, signature)
	}
	return nil
}

type executions struct {
	mu      sync.Mutex
	metrics model.ResourceMetrics
}

func (e *executions) Record(ctx context.Context, rec *model.ExecutionRecord, price money.Amount) (*model.ResourceMetrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = e.metrics.Record(rec.Status == model.ExecutionStatusSuccess, rec.ResponseTime, price)
	out := e.metrics
	return &out, nil
}

type gateway struct {
	router *httprouter.Router
	mr     *miniredis.Miniredis
	exec   *executions
}

func newGateway(t *testing.T, robotEndpoint string) *gateway {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Discard()
	cfg := &config.Config{Log: log, SolanaNetwork: "solana-devnet", DefaultLockDuration: 10 * time.Minute}

	robot := &model.Robot{
		ID:            "robot-1",
		OwnerID:       "owner-1",
		Name:          "Arm",
		Price:         money.FromUnits(5),
		Currency:      "USDC",
		WalletAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Endpoint:      robotEndpoint,
		Status:        model.RobotStatusActive,
	}

	sessions := sessionrepository.NewRedisSessionRepository(rdb, 15*time.Minute)
	locks := lockrepository.NewRedisLockRepository(rdb)
	robots := robotservice.NewRobotService(&robotRepo{robot: robot}, locks, cfg)
	exec := &executions{}
	executor := executionservice.NewExecutor(exec, 5*time.Second, events.Nop{}, log)

	payments := service.NewPaymentService(robots, sessions, locks, acceptingVerifier{},
		&settlements{seen: map[string]string{}}, executor, events.Nop{}, validator.NewPaymentValidator(log), cfg)

	router := httprouter.New()
	NewPaymentHandler(payments, log).RegisterRoutes(router)
	robothandler.NewRobotHandler(robots, log).RegisterRoutes(router)

	return &gateway{router: router, mr: mr, exec: exec}
}

func (g *gateway) do(t *testing.T, method, path, payer string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if payer != "" {
		req = req.WithContext(auth.WithPayer(req.Context(), payer))
	}

	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	return rec
}

func signature() string {
	var sig solana.Signature
	for i := range sig {
		sig[i] = byte(i * 3)
	}
	return sig.String()
}

// A caller is challenged, pays, holds the robot for the default ten minutes
// and then runs the task with the paid session.
func TestPayToExecuteFlow(t *testing.T) {
	robot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"done": payload["service"], "session": r.Header.Get(x402.HeaderSessionID)})
	}))
	defer robot.Close()

	g := newGateway(t, robot.URL)
	task := map[string]any{"service": "pick", "parameters": map[string]any{"item": "cup"}}

	rec := g.do(t, http.MethodPost, "/api/v1/robots/robot-1/execute", "user-1", task, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	challenge, ok := x402.Decode(rec.Header())
	require.True(t, ok)
	assert.Equal(t, money.FromUnits(5), challenge.Amount)
	assert.Equal(t, "solana-devnet", challenge.Network)

	var body x402.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, challenge.SessionID, body.SessionID)
	assert.Equal(t, "pick", body.Service)
	assert.Equal(t, "robot-1", body.RobotID)

	rec = g.do(t, http.MethodPost, "/api/v1/payments/verify", "user-1",
		model.VerifyRequest{SessionID: challenge.SessionID, TxSignature: signature()}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var verified model.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.True(t, verified.Verified)
	assert.Equal(t, 10*time.Minute, g.mr.TTL("robot_lock:robot-1"))

	rec = g.do(t, http.MethodGet, "/api/v1/robots/robot-1/availability", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var availability map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &availability))
	assert.Equal(t, false, availability["available"])
	assert.Equal(t, "busy", availability["status"])
	assert.Equal(t, "user-1", availability["locked_by_user_id"])
	assert.Equal(t, 10.0, availability["time_remaining_minutes"])

	// Another user is turned away while the robot is held.
	rec = g.do(t, http.MethodPost, "/api/v1/robots/robot-1/execute", "user-2", task, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = g.do(t, http.MethodPost, "/api/v1/robots/robot-1/execute", "user-1", task,
		map[string]string{x402.HeaderSessionID: challenge.SessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result service.ExecutionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, challenge.SessionID, result.SessionID)
	assert.Equal(t, map[string]any{"done": "pick", "session": challenge.SessionID}, result.Data)

	assert.Equal(t, int64(1), g.exec.metrics.ExecutionCount)
	assert.Equal(t, money.FromUnits(5), g.exec.metrics.TotalRevenue)

	rec = g.do(t, http.MethodGet, "/api/v1/payments/sessions/"+challenge.SessionID, "user-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "paid", status["status"])
	assert.NotNil(t, status["paid_at"])
}

func TestExecute_RobotFailureIsBadGateway(t *testing.T) {
	robot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "jammed", http.StatusInternalServerError)
	}))
	defer robot.Close()

	g := newGateway(t, robot.URL)
	task := map[string]any{"service": "pick"}

	rec := g.do(t, http.MethodPost, "/api/v1/robots/robot-1/execute", "user-1", task, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	sessionID := rec.Header().Get(x402.HeaderSessionID)

	rec = g.do(t, http.MethodPost, "/api/v1/payments/verify", "user-1",
		model.VerifyRequest{SessionID: sessionID, TxSignature: signature()}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(t, http.MethodPost, "/api/v1/robots/robot-1/execute", "user-1", task,
		map[string]string{x402.HeaderSessionID: sessionID})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var result service.ExecutionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "500")
	assert.InDelta(t, 0.0, g.exec.metrics.SuccessRate, 1e-9)
}

func TestHandlers_RequireAuthentication(t *testing.T) {
	g := newGateway(t, "http://127.0.0.1:1")

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/robots/robot-1/execute"},
		{http.MethodPost, "/api/v1/payments/verify"},
		{http.MethodGet, "/api/v1/payments/sessions/abc"},
		{http.MethodDelete, "/api/v1/payments/sessions/abc"},
		{http.MethodGet, "/api/v1/robots/robot-1/metrics"},
	} {
		rec := g.do(t, tc.method, tc.path, "", map[string]any{}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestExecute_InvalidBody(t *testing.T) {
	g := newGateway(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/robots/robot-1/execute", strings.NewReader("{"))
	req = req.WithContext(auth.WithPayer(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelSession_NoContent(t *testing.T) {
	g := newGateway(t, "http://127.0.0.1:1")

	rec := g.do(t, http.MethodPost, "/api/v1/robots/robot-1/execute", "user-1", map[string]any{"service": "pick"}, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	sessionID := rec.Header().Get(x402.HeaderSessionID)

	rec = g.do(t, http.MethodDelete, "/api/v1/payments/sessions/"+sessionID, "user-1", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/payments/sessions/"+sessionID, "user-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRobotMetrics_OwnerOnly(t *testing.T) {
	g := newGateway(t, "http://127.0.0.1:1")

	rec := g.do(t, http.MethodGet, "/api/v1/robots/robot-1/metrics", "owner-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, "Arm", metrics["name"])
	assert.Equal(t, "active", metrics["status"])

	rec = g.do(t, http.MethodGet, "/api/v1/robots/robot-1/metrics", "user-1", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
