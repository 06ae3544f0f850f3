// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/autotrade"
	"github.com/stockpulse/trading-backend/internal/backtest"
	"github.com/stockpulse/trading-backend/internal/indicators"
	"github.com/stockpulse/trading-backend/internal/portfolio"
	"github.com/stockpulse/trading-backend/internal/risk"
	"github.com/stockpulse/trading-backend/internal/signals"
	"github.com/stockpulse/trading-backend/internal/store"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

// Server is the HTTP/WebSocket API server
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	cfg        *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*Client
	metrics    *Metrics

	prices       *store.PriceStore
	signals      *store.SignalStore
	config       *store.ConfigStore
	audit        *store.AuditLog
	ledger       *store.Ledger
	backtests    *store.BacktestStore
	classifier   *signals.Classifier
	evaluator    *risk.Evaluator
	engine       *backtest.Engine
	orchestrator *autotrade.Orchestrator
}

// Deps bundles the server's collaborators.
type Deps struct {
	Prices       *store.PriceStore
	Signals      *store.SignalStore
	Config       *store.ConfigStore
	Audit        *store.AuditLog
	Ledger       *store.Ledger
	Backtests    *store.BacktestStore
	Classifier   *signals.Classifier
	Evaluator    *risk.Evaluator
	Engine       *backtest.Engine
	Orchestrator *autotrade.Orchestrator
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, cfg *types.ServerConfig, deps Deps) *Server {
	server := &Server{
		logger:       logger,
		cfg:          cfg,
		router:       mux.NewRouter(),
		clients:      make(map[string]*Client),
		metrics:      NewMetrics(),
		prices:       deps.Prices,
		signals:      deps.Signals,
		config:       deps.Config,
		audit:        deps.Audit,
		ledger:       deps.Ledger,
		backtests:    deps.Backtests,
		classifier:   deps.Classifier,
		evaluator:    deps.Evaluator,
		engine:       deps.Engine,
		orchestrator: deps.Orchestrator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.countRequests)

	// Health check
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	// Price data
	s.router.HandleFunc("/api/v1/securities", s.handleListSecurities).Methods("GET")
	s.router.HandleFunc("/api/v1/prices/{security}", s.handleGetPrices).Methods("GET")
	s.router.HandleFunc("/api/v1/prices/{security}", s.handleUpsertPrices).Methods("POST")

	// Signals
	s.router.HandleFunc("/api/v1/signals/refresh", s.handleRefreshSignals).Methods("POST")
	s.router.HandleFunc("/api/v1/signals/{security}", s.handleGetSignal).Methods("GET")
	s.router.HandleFunc("/api/v1/recommendations", s.handleRecommendations).Methods("GET")

	// Risk
	s.router.HandleFunc("/api/v1/risk/rules", s.handleGetRiskRules).Methods("GET")
	s.router.HandleFunc("/api/v1/risk/rules", s.handleUpdateRiskRules).Methods("PUT")
	s.router.HandleFunc("/api/v1/risk/evaluate", s.handleEvaluateTrade).Methods("POST")
	s.router.HandleFunc("/api/v1/risk/checklist/{security}", s.handleChecklist).Methods("GET")
	s.router.HandleFunc("/api/v1/risk/prices/{security}", s.handleSuggestPrices).Methods("GET")

	// Auto-trade
	s.router.HandleFunc("/api/v1/auto-trade/config", s.handleGetAutoTradeConfig).Methods("GET")
	s.router.HandleFunc("/api/v1/auto-trade/config", s.handleUpdateAutoTradeConfig).Methods("PUT")
	s.router.HandleFunc("/api/v1/auto-trade/securities", s.handleSetAutoTradeSecurities).Methods("PUT")
	s.router.HandleFunc("/api/v1/auto-trade/logs", s.handleAutoTradeLogs).Methods("GET")
	s.router.HandleFunc("/api/v1/auto-trade/run", s.handleRunAutoTrade).Methods("POST")

	// Settings
	s.router.HandleFunc("/api/v1/settings", s.handleGetSettings).Methods("GET")
	s.router.HandleFunc("/api/v1/settings", s.handleUpdateSettings).Methods("PUT")

	// Portfolio and transactions
	s.router.HandleFunc("/api/v1/portfolio", s.handleGetPortfolio).Methods("GET")
	s.router.HandleFunc("/api/v1/transactions", s.handleListTransactions).Methods("GET")
	s.router.HandleFunc("/api/v1/transactions", s.handleRecordTransaction).Methods("POST")

	// Backtests
	s.router.HandleFunc("/api/v1/backtests", s.handleCreateBacktest).Methods("POST")
	s.router.HandleFunc("/api/v1/backtests", s.handleListBacktests).Methods("GET")
	s.router.HandleFunc("/api/v1/backtests/{id}", s.handleGetBacktest).Methods("GET")
	s.router.HandleFunc("/api/v1/backtests/{id}", s.handleDeleteBacktest).Methods("DELETE")

	if s.cfg.EnableMetrics {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	}

	// WebSocket
	s.router.HandleFunc(s.cfg.WebSocketPath, s.handleWebSocket)
}

// countRequests increments the per-route request counter.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		s.metrics.requestsTotal.WithLabelValues(route, r.Method).Inc()
		next.ServeHTTP(w, r)
	})
}

// Router exposes the underlying router for route registration and tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.mu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// handleListSecurities returns every security with stored bars
func (s *Server) handleListSecurities(w http.ResponseWriter, r *http.Request) {
	securities := s.prices.Securities()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"securities": securities,
		"count":      len(securities),
	})
}

// handleGetPrices returns stored bars for a security
func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	security := mux.Vars(r)["security"]

	start := time.Time{}
	end := time.Now().AddDate(100, 0, 0)
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			end = t
		}
	}

	bars := s.prices.BarsBetween(security, start, end)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"security": security,
		"bars":     bars,
		"count":    len(bars),
	})
}

// handleUpsertPrices ingests bars for a security and refreshes its signal
func (s *Server) handleUpsertPrices(w http.ResponseWriter, r *http.Request) {
	security := mux.Vars(r)["security"]

	var bars []types.PriceBar
	if err := json.NewDecoder(r.Body).Decode(&bars); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.prices.UpsertBars(security, bars)
	record := s.refreshSignal(security)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"security": security,
		"stored":   len(bars),
		"signal":   record,
	})
}

// refreshSignal reclassifies one security from its full stored series.
func (s *Server) refreshSignal(security string) types.SignalRecord {
	settings := s.config.SignalSettings()
	bars := s.prices.Bars(security)
	frames := indicators.Compute(bars, settings.Periods)
	record := s.classifier.Classify(security, bars, frames, settings)
	s.signals.Put(record)
	return record
}

// handleRefreshSignals reclassifies every stored security
func (s *Server) handleRefreshSignals(w http.ResponseWriter, r *http.Request) {
	records := make(map[string]types.SignalRecord)
	for _, security := range s.prices.Securities() {
		records[security] = s.refreshSignal(security)
	}

	s.broadcast(&Message{
		ID:        uuid.New().String(),
		Type:      "event",
		Method:    "signals:updated",
		Payload:   map[string]interface{}{"count": len(records)},
		Timestamp: time.Now().UnixMilli(),
	})

	json.NewEncoder(w).Encode(map[string]interface{}{
		"signals": records,
		"count":   len(records),
	})
}

// handleGetSignal returns the latest signal for a security
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	security := mux.Vars(r)["security"]

	if r.URL.Query().Get("history") == "true" {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"security": security,
			"signals":  s.signals.History(security),
		})
		return
	}

	record, ok := s.signals.Latest(security)
	if !ok {
		http.Error(w, "No signal for security", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(record)
}

// handleRecommendations returns ranked buy/sell suggestions
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var quotes []signals.Quote
	for _, security := range s.prices.Securities() {
		record, ok := s.signals.Latest(security)
		if !ok {
			continue
		}
		price, ok := s.prices.LatestClose(security)
		if !ok {
			continue
		}
		quotes = append(quotes, signals.Quote{
			Security: security,
			Price:    price,
			Signal:   &record,
		})
	}
	budget := s.config.SignalSettings().InvestmentBudget
	json.NewEncoder(w).Encode(signals.Recommend(quotes, budget))
}

// handleGetRiskRules returns the current risk rules
func (s *Server) handleGetRiskRules(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.config.RiskRules())
}

// handleUpdateRiskRules merges a partial update into the risk rules
func (s *Server) handleUpdateRiskRules(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(s.config.MergeRiskRules(patch))
}

// handleEvaluateTrade runs the risk evaluator on a proposed trade
func (s *Server) handleEvaluateTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Security string          `json:"security"`
		Side     types.OrderSide `json:"side"`
		Quantity int64           `json:"quantity"`
		Price    decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var stopLoss *decimal.Decimal
	if record, ok := s.signals.Latest(req.Security); ok {
		stopLoss = record.StopLossPrice
	}
	state := portfolio.Derive(s.ledger.All(), s.prices.LatestClose)
	report := s.evaluator.Evaluate(risk.Proposal{
		Security:      req.Security,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopLossPrice: stopLoss,
	}, s.config.RiskRules(), state)
	json.NewEncoder(w).Encode(report)
}

// handleChecklist returns the pre-trade checklist for a security
func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request) {
	security := mux.Vars(r)["security"]
	var record *types.SignalRecord
	if rec, ok := s.signals.Latest(security); ok {
		record = &rec
	}
	var latest *decimal.Decimal
	if close, ok := s.prices.LatestClose(security); ok {
		latest = &close
	}
	json.NewEncoder(w).Encode(s.evaluator.BuildChecklist(security, "", record, latest, s.config.RiskRules()))
}

// handleSuggestPrices returns suggested limit/stop prices for a security
func (s *Server) handleSuggestPrices(w http.ResponseWriter, r *http.Request) {
	security := mux.Vars(r)["security"]
	var record *types.SignalRecord
	if rec, ok := s.signals.Latest(security); ok {
		record = &rec
	}
	var latest *decimal.Decimal
	if close, ok := s.prices.LatestClose(security); ok {
		latest = &close
	}
	json.NewEncoder(w).Encode(s.evaluator.SuggestPrices(security, "", record, latest))
}

// handleGetAutoTradeConfig returns the auto-trade configuration and status
func (s *Server) handleGetAutoTradeConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.AutoTrade()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"config":          cfg,
		"securities":      s.config.EnabledSecurities(),
		"tradesUsedToday": s.audit.CountTradesOn(time.Now()),
	})
}

// handleUpdateAutoTradeConfig merges a partial update into the auto-trade config
func (s *Server) handleUpdateAutoTradeConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(s.config.MergeAutoTrade(patch))
}

// handleSetAutoTradeSecurities replaces the auto-trade allowlist
func (s *Server) handleSetAutoTradeSecurities(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Securities []string `json:"securities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.config.SetEnabledSecurities(req.Securities)
	json.NewEncoder(w).Encode(map[string]interface{}{"securities": req.Securities})
}

// handleAutoTradeLogs returns recent decision outcomes, newest first
func (s *Server) handleAutoTradeLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	outcomes := s.audit.Recent(limit)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"logs":  outcomes,
		"count": len(outcomes),
	})
}

// handleRunAutoTrade triggers one orchestrator invocation
func (s *Server) handleRunAutoTrade(w http.ResponseWriter, r *http.Request) {
	outcomes := s.orchestrator.RunOnce(r.Context(), time.Now())
	for _, outcome := range outcomes {
		s.metrics.decisionsTotal.WithLabelValues(string(outcome.Status)).Inc()
		if outcome.Status == types.DecisionExecuted {
			s.metrics.ordersSubmitted.Inc()
		}
	}

	s.broadcastToSubscribers("autotrade", &Message{
		ID:        uuid.New().String(),
		Type:      "event",
		Method:    "autotrade:complete",
		Payload:   map[string]interface{}{"outcomes": len(outcomes)},
		Timestamp: time.Now().UnixMilli(),
	})

	json.NewEncoder(w).Encode(map[string]interface{}{
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// handleGetSettings returns the signal settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.config.SignalSettings())
}

// handleUpdateSettings merges a partial update into the signal settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(s.config.MergeSignalSettings(patch))
}

// handleGetPortfolio returns the portfolio state derived from the ledger
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	state := portfolio.Derive(s.ledger.All(), s.prices.LatestClose)
	json.NewEncoder(w).Encode(state)
}

// handleListTransactions returns the full ledger
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions := s.ledger.All()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// handleRecordTransaction appends a manually executed trade to the ledger
func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var tx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if tx.Security == "" || tx.Quantity <= 0 || !tx.Price.IsPositive() {
		http.Error(w, "security, quantity and price are required", http.StatusBadRequest)
		return
	}
	if tx.Side != types.OrderSideBuy && tx.Side != types.OrderSideSell {
		http.Error(w, "side must be buy or sell", http.StatusBadRequest)
		return
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.ExecutedAt.IsZero() {
		tx.ExecutedAt = time.Now()
	}
	s.ledger.Append(tx)
	json.NewEncoder(w).Encode(tx)
}

// handleCreateBacktest creates a run and executes it in the background
func (s *Server) handleCreateBacktest(w http.ResponseWriter, r *http.Request) {
	var cfg types.BacktestConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(cfg.Securities) == 0 || !cfg.InitialCapital.IsPositive() {
		http.Error(w, "securities and a positive initialCapital are required", http.StatusBadRequest)
		return
	}

	run := s.engine.Create(cfg)

	go func() {
		finished, err := s.engine.Execute(run.ID)
		if err != nil {
			s.logger.Error("Backtest execution failed", zap.String("id", run.ID), zap.Error(err))
			return
		}
		s.metrics.backtestsTotal.WithLabelValues(string(finished.Status)).Inc()
		s.broadcast(&Message{
			ID:        uuid.New().String(),
			Type:      "event",
			Method:    "backtest:complete",
			Payload:   map[string]interface{}{"id": run.ID, "status": finished.Status},
			Timestamp: time.Now().UnixMilli(),
		})
	}()

	json.NewEncoder(w).Encode(run)
}

// handleListBacktests returns all runs, newest first
func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	runs := s.backtests.List()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"backtests": runs,
		"count":     len(runs),
	})
}

// handleGetBacktest returns one run with its result
func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, ok := s.backtests.Get(id)
	if !ok {
		http.Error(w, "Backtest not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(run)
}

// handleDeleteBacktest removes a run
func (s *Server) handleDeleteBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.backtests.Delete(id) {
		http.Error(w, "Backtest not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "deleted": true})
}
