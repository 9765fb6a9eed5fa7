package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalGuard/internal/coalesce"
	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
	"SignalGuard/internal/integrity"
	"SignalGuard/internal/repository"
	"SignalGuard/internal/risk"
	"SignalGuard/internal/service/datasource"
	"SignalGuard/internal/usecase"
	"SignalGuard/internal/weights"
	"SignalGuard/pkg/cache"
	xhttp "SignalGuard/pkg/http"
	xlogger "SignalGuard/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newEcho(handlers ...xhttp.Handler) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = xhttp.ErrorHandler
	for _, h := range handlers {
		h.RegisterRoutes(e)
	}
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func newMonitor(t *testing.T) *risk.Monitor {
	t.Helper()
	m, err := risk.NewMonitor(risk.Config{
		MaxDrawdownPct:    2,
		DailyLossLimitPct: 5,
		InitialCapital:    25000,
		CheckInterval:     5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestRiskEquityHaltAndReset(t *testing.T) {
	m := newMonitor(t)
	e := newEcho(NewRiskHandler(xlogger.Nop(), m))

	rec, env := do(t, e, http.MethodPost, "/api/risk/equity", `{"equity":24490}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var st risk.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, models.RiskBreach, st.Level)
	assert.True(t, st.Halted)

	rec, _ = do(t, e, http.MethodPost, "/api/risk/reset-halt", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	do(t, e, http.MethodPost, "/api/risk/equity", `{"equity":24900}`)
	rec, env = do(t, e, http.MethodPost, "/api/risk/reset-halt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.Halted)

	rec, _ = do(t, e, http.MethodGet, "/api/risk/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRiskEquityValidation(t *testing.T) {
	e := newEcho(NewRiskHandler(xlogger.Nop(), newMonitor(t)))

	rec, _ := do(t, e, http.MethodPost, "/api/risk/equity", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/api/risk/equity", `{"equity":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiskSamplesLimit(t *testing.T) {
	m := newMonitor(t)
	m.Start()
	require.Eventually(t, func() bool { return len(m.Samples(0)) >= 5 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	e := newEcho(NewRiskHandler(xlogger.Nop(), m))
	rec, env := do(t, e, http.MethodGet, "/api/risk/samples?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.EquitySample `json:"rows"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Rows, 3)
	assert.True(t, !list.Rows[0].Timestamp.After(list.Rows[2].Timestamp))

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	_, env = do(t, e, http.MethodGet, "/api/risk/samples?since="+future, "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list.Rows)
}

func TestWeightsEndpoints(t *testing.T) {
	mgr, err := weights.NewManager(weights.Config{Sources: []string{"alpha", "beta"}, MinWeight: 0.1, MaxWeight: 0.9})
	require.NoError(t, err)
	e := newEcho(NewWeightsHandler(xlogger.Nop(), mgr))

	for i := 0; i < 10; i++ {
		rec, _ := do(t, e, http.MethodPost, "/api/weights/outcomes", `{"source_id":"alpha","correct":true,"confidence":70}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		rec, _ = do(t, e, http.MethodPost, "/api/weights/outcomes", `{"source_id":"beta","correct":false,"confidence":70}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, _ := do(t, e, http.MethodPost, "/api/weights/outcomes", `{"source_id":"gamma","correct":true,"confidence":70}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/api/weights/outcomes", `{"source_id":"alpha","confidence":70}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := do(t, e, http.MethodPost, "/api/weights/adjust", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Weights      map[string]float64 `json:"weights"`
		LastAdjusted *time.Time         `json:"last_adjusted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Greater(t, view.Weights["alpha"], view.Weights["beta"])
	assert.InDelta(t, 1.0, view.Weights["alpha"]+view.Weights["beta"], 1e-9)
	assert.NotNil(t, view.LastAdjusted)

	rec, _ = do(t, e, http.MethodGet, "/api/weights/report", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func newSignalsHandler(t *testing.T, gate usecase.TradeGate) (*SignalsHandler, *integrity.Verifier) {
	t.Helper()
	v := integrity.NewVerifier()
	opts := []usecase.EmitterOption{}
	if gate != nil {
		opts = append(opts, usecase.WithTradeGate(gate))
	}
	em := usecase.NewSignalEmitter(v, repository.NewMemorySignalStore(100), opts...)
	return NewSignalsHandler(xlogger.Nop(), v, em), v
}

func TestSignalsEmitVerifyStoredAndTamper(t *testing.T) {
	h, v := newSignalsHandler(t, nil)
	e := newEcho(h)

	rec, env := do(t, e, http.MethodPost, "/api/signals",
		`{"symbol":"AAPL","action":"BUY","entry_price":105.25,"stop_loss":101.1,"take_profit":112,"confidence":72.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s models.Signal
	require.NoError(t, json.Unmarshal(env.Data, &s))
	require.NotEmpty(t, s.ID)
	assert.True(t, v.Verify(s).IsValid)

	rec, env = do(t, e, http.MethodGet, "/api/signals/"+s.ID+"/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.VerificationResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.IsValid)

	rec, _ = do(t, e, http.MethodGet, "/api/signals/missing/verify", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.StopLoss = 95
	body, _ := json.Marshal(s)
	rec, env = do(t, e, http.MethodPost, "/api/signals/verify", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.IsValid)
	assert.Equal(t, integrity.ReasonMismatch, res.Error)

	rec, env = do(t, e, http.MethodGet, "/api/signals?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":1`)
}

func TestSignalsHashAndBatch(t *testing.T) {
	h, v := newSignalsHandler(t, nil)
	e := newEcho(h)

	raw := `{"id":"01HZX3J8Q4W9K2M7N5P6R0S1T2","symbol":"AAPL","action":"BUY","entry_price":105.25,"stop_loss":101.1,"take_profit":112,"confidence":72.5,"timestamp":"2026-01-15T14:30:00.123Z"}`
	rec, env := do(t, e, http.MethodPost, "/api/signals/hash", raw)
	require.Equal(t, http.StatusOK, rec.Code)
	var hr models.HashResponse
	require.NoError(t, json.Unmarshal(env.Data, &hr))
	assert.Equal(t, "0aad218baad7d7b660f435581fe5dc55801a390ba4cac43ae604ac8560cad98e", hr.Hash)
	assert.Equal(t, integrity.CurrentVersion, hr.HashVersion)

	withHash := strings.TrimSuffix(raw, "}") + `,"integrity_hash":"` + hr.Hash + `"}`
	rec, env = do(t, e, http.MethodPost, "/api/signals/verify", withHash)
	require.Equal(t, http.StatusOK, rec.Code)
	var vr models.VerificationResult
	require.NoError(t, json.Unmarshal(env.Data, &vr))
	assert.True(t, vr.IsValid, vr.Error)

	rec, _ = do(t, e, http.MethodPost, "/api/signals/hash", `{"symbol":"AAPL"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var sigs []models.Signal
	for i := 0; i < 3; i++ {
		s, err := v.Seal(models.Signal{ID: string(rune('a' + i)), Symbol: "X", Action: models.ActionBuy, Timestamp: time.Unix(int64(i+1), 0).UTC()})
		require.NoError(t, err)
		sigs = append(sigs, s)
	}
	sigs[1].Confidence = 99
	body, _ := json.Marshal(models.VerifyBatchRequest{Signals: sigs})
	rec, env = do(t, e, http.MethodPost, "/api/signals/verify-batch", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var br models.VerifyBatchResponse
	require.NoError(t, json.Unmarshal(env.Data, &br))
	assert.Equal(t, 2, br.Valid)
	assert.Equal(t, 1, br.Invalid)
	assert.False(t, br.Results[1].IsValid)

	rec, _ = do(t, e, http.MethodPost, "/api/signals/verify-batch", `{"signals":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignalsEmitWhileHalted(t *testing.T) {
	m := newMonitor(t)
	_, err := m.UpdateEquity(20000)
	require.NoError(t, err)

	h, _ := newSignalsHandler(t, m)
	e := newEcho(h)
	rec, _ := do(t, e, http.MethodPost, "/api/signals", `{"symbol":"AAPL","action":"SELL","confidence":50}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = do(t, e, http.MethodPost, "/api/signals", `{"symbol":"AAPL","action":"SHORT","confidence":50}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubSource struct {
	name string
	err  error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) FetchQuote(_ context.Context, symbol string) (models.Quote, error) {
	if s.err != nil {
		return models.Quote{}, s.err
	}
	return models.Quote{Source: s.name, Symbol: symbol, Price: 42, Timestamp: time.Unix(1, 0).UTC()}, nil
}

func TestSourcesQuote(t *testing.T) {
	reg := datasource.NewRegistry(
		stubSource{name: "alpha"},
		stubSource{name: "beta", err: datasource.ErrNoQuote},
		stubSource{name: "gamma", err: context.DeadlineExceeded},
	)
	store := cache.NewMemoryStore()
	defer store.Close()
	gw := usecase.NewSourceGateway(reg, coalesce.NewCachedFetcher(store, coalesce.New[models.Quote](), time.Minute, nil))
	e := newEcho(NewSourcesHandler(xlogger.Nop(), gw, reg))

	rec, env := do(t, e, http.MethodGet, "/api/sources/alpha/quote?symbol=eth", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var q models.Quote
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, "ETH", q.Symbol)
	assert.Equal(t, 42.0, q.Price)

	rec, _ = do(t, e, http.MethodGet, "/api/sources/alpha/quote", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/sources/delta/quote?symbol=ETH", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/sources/beta/quote?symbol=ETH", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/sources/gamma/quote?symbol=ETH", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec, env = do(t, e, http.MethodGet, "/api/sources/quotes?symbol=ETH", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Quotes map[string]models.Quote `json:"quotes"`
		Errors map[string]string       `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all.Quotes, 1)
	assert.Len(t, all.Errors, 2)

	rec, env = do(t, e, http.MethodGet, "/api/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"alpha","beta","gamma"`)
}

func TestSourcesRefreshDropsCachedQuote(t *testing.T) {
	reg := datasource.NewRegistry(stubSource{name: "alpha"})
	store := cache.NewMemoryStore()
	defer store.Close()
	gw := usecase.NewSourceGateway(reg, coalesce.NewCachedFetcher(store, coalesce.New[models.Quote](), time.Minute, nil))
	e := newEcho(NewSourcesHandler(xlogger.Nop(), gw, reg))

	rec, _ := do(t, e, http.MethodGet, "/api/sources/alpha/quote?symbol=eth", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, store.Len())

	rec, env := do(t, e, http.MethodDelete, "/api/sources/alpha/quote?symbol=eth", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"symbol":"ETH"`)
	assert.Equal(t, 0, store.Len())

	rec, _ = do(t, e, http.MethodDelete, "/api/sources/delta/quote?symbol=eth", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, e, http.MethodDelete, "/api/sources/alpha/quote", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReady(t *testing.T) {
	failing := false
	e := newEcho(NewHealthHandler(map[string]HealthCheck{
		"store": func(context.Context) error {
			if failing {
				return domrepo.ErrNotFound
			}
			return nil
		},
	}))
	rec, _ := do(t, e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	failing = true
	rec, _ = do(t, e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRiskHubBroadcasts(t *testing.T) {
	hub := NewRiskHub(xlogger.Nop(), func() interface{} { return map[string]string{"level": "NORMAL"} })
	srv := httptest.NewServer(newEcho(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/risk", nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.PublishRiskEvent(context.Background(), models.RiskEvent{
		Previous: models.RiskWarning, Current: models.RiskBreach, Halted: true,
	}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "risk_event", msg.Type)
	var evt models.RiskEvent
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	assert.Equal(t, models.RiskBreach, evt.Current)
	assert.True(t, evt.Halted)

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())
}
