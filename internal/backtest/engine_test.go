// Package backtest_test provides tests for the backtest replay engine.
package backtest_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/backtest"
	"github.com/stockpulse/trading-backend/internal/signals"
	"github.com/stockpulse/trading-backend/internal/store"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

var windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// vShapedBars declines 2 points per day for 26 bars, then rises 6 per day.
// The decline drives RSI to the floor (a buy), the rise pushes it over the
// sell threshold eight bars after the turn.
func vShapedBars(total int) []types.PriceBar {
	bars := make([]types.PriceBar, total)
	for i := range bars {
		var close float64
		if i <= 25 {
			close = 500 - 2*float64(i)
		} else {
			close = 450 + 6*float64(i-25)
		}
		price := decimal.NewFromFloat(close)
		bars[i] = types.PriceBar{
			Date: windowStart.AddDate(0, 0, i),
			Open: price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}
	return bars
}

func newEngine(t *testing.T) (*backtest.Engine, *store.PriceStore, *store.BacktestStore) {
	t.Helper()
	prices := store.NewPriceStore()
	runs := store.NewBacktestStore()
	config := store.NewConfigStore()
	classifier := signals.NewClassifier(zap.NewNop())
	engine := backtest.NewEngine(prices, runs, config, classifier, zap.NewNop())
	return engine, prices, runs
}

func TestBacktestEndToEnd(t *testing.T) {
	engine, prices, _ := newEngine(t)
	prices.UpsertBars("7203", vShapedBars(40))

	run := engine.Create(types.BacktestConfig{
		Name:           "v-shape",
		StartDate:      windowStart,
		EndDate:        windowStart.AddDate(0, 0, 60),
		InitialCapital: decimal.NewFromInt(100000),
		Securities:     []string{"7203"},
	})

	finished, err := engine.Execute(run.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if finished.Status != types.BacktestCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", finished.Status, finished.Error)
	}

	result := finished.Result
	if len(result.Trades) != 2 {
		t.Fatalf("trades = %d, want exactly one buy and one sell", len(result.Trades))
	}
	buy, sell := result.Trades[0], result.Trades[1]
	if buy.Side != types.OrderSideBuy || sell.Side != types.OrderSideSell {
		t.Fatalf("trade order = %s, %s, want buy then sell", buy.Side, sell.Side)
	}
	if !buy.Price.Equal(decimal.NewFromInt(450)) {
		t.Errorf("buy price = %s, want 450 at the bottom of the decline", buy.Price)
	}
	if !sell.Price.Equal(decimal.NewFromInt(498)) {
		t.Errorf("sell price = %s, want 498 when RSI crosses the sell threshold", sell.Price)
	}
	if sell.PnL == nil || !sell.PnL.IsPositive() {
		t.Errorf("sell PnL = %v, want positive", sell.PnL)
	}

	if len(result.EquityCurve) != 40 {
		t.Errorf("equity points = %d, want one per date", len(result.EquityCurve))
	}

	// Nearly the full capital rides the single security, so the run's return
	// tracks the trade's price return.
	want := sell.Price.Sub(buy.Price).Div(buy.Price).Mul(decimal.NewFromInt(100))
	got := result.Summary.TotalReturnPercent
	if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.5)) {
		t.Errorf("totalReturnPercent = %s, want about %s", got, want.Round(2))
	}
	if !result.Summary.WinRate.Equal(decimal.NewFromInt(100)) {
		t.Errorf("winRate = %s, want 100", result.Summary.WinRate)
	}
	if !result.Summary.ProfitFactor.Equal(decimal.NewFromFloat(999.99)) {
		t.Errorf("profitFactor = %s, want the no-loss sentinel", result.Summary.ProfitFactor)
	}
}

func TestBacktestDeterminism(t *testing.T) {
	engine, prices, _ := newEngine(t)
	prices.UpsertBars("7203", vShapedBars(40))

	cfg := types.BacktestConfig{
		Name:           "repeat",
		StartDate:      windowStart,
		EndDate:        windowStart.AddDate(0, 0, 60),
		InitialCapital: decimal.NewFromInt(100000),
		Securities:     []string{"7203"},
	}

	first, err := engine.Execute(engine.Create(cfg).ID)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := engine.Execute(engine.Create(cfg).ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	a, b := first.Result, second.Result
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if !a.Trades[i].Price.Equal(b.Trades[i].Price) || a.Trades[i].Quantity != b.Trades[i].Quantity {
			t.Errorf("trade %d differs between runs", i)
		}
	}
	if !a.Summary.FinalValue.Equal(b.Summary.FinalValue) {
		t.Errorf("final values differ: %s vs %s", a.Summary.FinalValue, b.Summary.FinalValue)
	}
	if len(a.EquityCurve) != len(b.EquityCurve) {
		t.Fatalf("equity curve lengths differ")
	}
	for i := range a.EquityCurve {
		if !a.EquityCurve[i].PortfolioValue.Equal(b.EquityCurve[i].PortfolioValue) {
			t.Errorf("equity point %d differs between runs", i)
		}
	}
}

func TestBacktestExcludesShortHistory(t *testing.T) {
	engine, prices, _ := newEngine(t)
	prices.UpsertBars("7203", vShapedBars(40))
	prices.UpsertBars("9984", vShapedBars(10)) // too little history

	run := engine.Create(types.BacktestConfig{
		StartDate:      windowStart,
		EndDate:        windowStart.AddDate(0, 0, 60),
		InitialCapital: decimal.NewFromInt(100000),
		Securities:     []string{"7203", "9984"},
	})
	finished, err := engine.Execute(run.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, trade := range finished.Result.Trades {
		if trade.Security == "9984" {
			t.Error("excluded security must not trade")
		}
	}
}

func TestBacktestAllocatesAcrossRequestedSecurities(t *testing.T) {
	engine, prices, _ := newEngine(t)
	prices.UpsertBars("AAAA", vShapedBars(40))
	prices.UpsertBars("BBBB", vShapedBars(10)) // too little history to trade

	run := engine.Create(types.BacktestConfig{
		StartDate:      windowStart,
		EndDate:        windowStart.AddDate(0, 0, 60),
		InitialCapital: decimal.NewFromInt(100000),
		Securities:     []string{"AAAA", "BBBB"},
	})
	finished, err := engine.Execute(run.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(finished.Result.Trades) == 0 {
		t.Fatal("expected at least one trade")
	}

	// Capital splits across both requested securities even though BBBB never
	// qualifies: 100000 / 2 / 450 floors to 111 shares.
	buy := finished.Result.Trades[0]
	if buy.Side != types.OrderSideBuy || !buy.Price.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("first trade = %s at %s, want a buy at 450", buy.Side, buy.Price)
	}
	if buy.Quantity != 111 {
		t.Errorf("buy quantity = %d, want 111 (half the capital)", buy.Quantity)
	}
}

func TestBacktestFailsWithNoUsableData(t *testing.T) {
	engine, prices, _ := newEngine(t)
	prices.UpsertBars("9984", vShapedBars(10))

	run := engine.Create(types.BacktestConfig{
		StartDate:      windowStart,
		EndDate:        windowStart.AddDate(0, 0, 60),
		InitialCapital: decimal.NewFromInt(100000),
		Securities:     []string{"9984"},
	})
	finished, err := engine.Execute(run.ID)
	if err != nil {
		t.Fatalf("Execute should not propagate simulation errors, got %v", err)
	}
	if finished.Status != types.BacktestFailed {
		t.Errorf("status = %s, want failed when nothing in the window is usable", finished.Status)
	}
	if finished.Error == "" {
		t.Error("failed run should carry the error message")
	}
}

func TestBacktestFailureIsCaptured(t *testing.T) {
	engine, _, runs := newEngine(t)

	run := engine.Create(types.BacktestConfig{
		StartDate:      windowStart,
		EndDate:        windowStart.AddDate(0, 0, 60),
		InitialCapital: decimal.Zero,
		Securities:     []string{"7203"},
	})
	finished, err := engine.Execute(run.ID)
	if err != nil {
		t.Fatalf("Execute should not propagate simulation errors, got %v", err)
	}
	if finished.Status != types.BacktestFailed {
		t.Errorf("status = %s, want failed", finished.Status)
	}
	if finished.Error == "" {
		t.Error("failed run should carry the error message")
	}

	stored, ok := runs.Get(run.ID)
	if !ok || stored.Status != types.BacktestFailed {
		t.Error("failure status should be persisted")
	}
}
