// Package api_test provides tests for the HTTP API server.
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/api"
	"github.com/stockpulse/trading-backend/internal/autotrade"
	"github.com/stockpulse/trading-backend/internal/backtest"
	"github.com/stockpulse/trading-backend/internal/risk"
	"github.com/stockpulse/trading-backend/internal/signals"
	"github.com/stockpulse/trading-backend/internal/store"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*api.Server, *store.PriceStore) {
	t.Helper()
	logger := zap.NewNop()

	prices := store.NewPriceStore()
	signalStore := store.NewSignalStore()
	configStore := store.NewConfigStore()
	audit := store.NewAuditLog()
	ledger := store.NewLedger()
	backtests := store.NewBacktestStore()

	classifier := signals.NewClassifier(logger)
	evaluator := risk.NewEvaluator(logger)
	engine := backtest.NewEngine(prices, backtests, configStore, classifier, logger)
	pipeline := autotrade.NewPipeline(prices, signalStore, configStore, audit, ledger, nil, evaluator, logger)
	orchestrator := autotrade.NewOrchestrator(pipeline, store.NewLockStore(), logger)

	server := api.NewServer(logger, types.DefaultServerConfig(), api.Deps{
		Prices:       prices,
		Signals:      signalStore,
		Config:       configStore,
		Audit:        audit,
		Ledger:       ledger,
		Backtests:    backtests,
		Classifier:   classifier,
		Evaluator:    evaluator,
		Engine:       engine,
		Orchestrator: orchestrator,
	})
	return server, prices
}

func doJSON(t *testing.T, server *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestPriceIngestRefreshesSignal(t *testing.T) {
	server, _ := newTestServer(t)

	bars := make([]types.PriceBar, 30)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := decimal.NewFromInt(int64(100 + i))
		bars[i] = types.PriceBar{
			Date: start.AddDate(0, 0, i),
			Open: price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/prices/7203", bars)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/signals/7203", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signal status = %d, want 200", rec.Code)
	}
	var record types.SignalRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if record.Security != "7203" {
		t.Errorf("security = %s, want 7203", record.Security)
	}
}

func TestRiskRulesUpdate(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPut, "/api/v1/risk/rules", map[string]any{
		"maxOpenPositions": 8,
		"unknownKey":       true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rules types.RiskRules
	if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	if rules.MaxOpenPositions != 8 {
		t.Errorf("maxOpenPositions = %d, want 8", rules.MaxOpenPositions)
	}
}

func TestBacktestValidation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/backtests", map[string]any{
		"securities":     []string{},
		"initialCapital": "100000",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty securities should be rejected, got %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/backtests/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown run = %d, want 404", rec.Code)
	}
}

func TestManualTransactionValidation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/transactions", map[string]any{
		"security": "7203",
		"side":     "hold",
		"quantity": 10,
		"price":    "1000",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid side = %d, want 400", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/transactions", map[string]any{
		"security": "7203",
		"side":     "buy",
		"quantity": 10,
		"price":    "1000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid transaction = %d, want 200", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/portfolio", nil)
	var state types.PortfolioState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode portfolio: %v", err)
	}
	if state.ActivePositions != 1 {
		t.Errorf("active positions = %d, want 1", state.ActivePositions)
	}
}
