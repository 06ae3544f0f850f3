// Package portfolio_test provides tests for ledger-derived portfolio state.
package portfolio_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/portfolio"
	"github.com/stockpulse/trading-backend/pkg/types"
)

func tx(security string, side types.OrderSide, qty int64, price float64) types.Transaction {
	return types.Transaction{
		Security:   security,
		Side:       side,
		Quantity:   qty,
		Price:      decimal.NewFromFloat(price),
		ExecutedAt: time.Now(),
	}
}

func TestDeriveNetsBuysAndSells(t *testing.T) {
	ledger := []types.Transaction{
		tx("7203", types.OrderSideBuy, 100, 1000),
		tx("7203", types.OrderSideBuy, 100, 1200),
		tx("7203", types.OrderSideSell, 50, 1300),
		tx("9984", types.OrderSideBuy, 10, 5000),
		tx("9984", types.OrderSideSell, 10, 5500), // fully closed
	}
	lookup := func(security string) (decimal.Decimal, bool) {
		if security == "7203" {
			return decimal.NewFromInt(1250), true
		}
		return decimal.Zero, false
	}

	state := portfolio.Derive(ledger, lookup)
	if state.ActivePositions != 1 {
		t.Fatalf("active positions = %d, want 1 (closed positions drop out)", state.ActivePositions)
	}
	holding := state.Holdings["7203"]
	if holding == nil {
		t.Fatal("expected a 7203 holding")
	}
	if holding.Quantity != 150 {
		t.Errorf("quantity = %d, want 150", holding.Quantity)
	}
	// Average cost weights the gross buys: (100*1000 + 100*1200) / 200.
	if !holding.AvgCost.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("avgCost = %s, want 1100", holding.AvgCost)
	}
	if !holding.Value.Equal(decimal.NewFromInt(187500)) {
		t.Errorf("value = %s, want 150 x 1250", holding.Value)
	}
	if !state.TotalCost.Equal(decimal.NewFromInt(165000)) {
		t.Errorf("totalCost = %s, want 150 x 1100", state.TotalCost)
	}
}

func TestHoldingQuantityFloorsAtZero(t *testing.T) {
	ledger := []types.Transaction{
		tx("7203", types.OrderSideBuy, 100, 1000),
		tx("7203", types.OrderSideSell, 150, 1000),
	}
	if got := portfolio.HoldingQuantity(ledger, "7203"); got != 0 {
		t.Errorf("oversold holding = %d, want floor at 0", got)
	}
	if got := portfolio.HoldingQuantity(ledger, "9984"); got != 0 {
		t.Errorf("unknown security = %d, want 0", got)
	}
}
