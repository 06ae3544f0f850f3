// Package portfolio derives portfolio state from the transaction ledger.
//
// State is always recomputed from the full ledger: holdings are the net of
// buy and sell quantities per security, average cost is the weighted cost of
// the gross buy quantity, and current value uses the latest close.
package portfolio

import (
	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/pkg/types"
)

// PriceLookup resolves the latest close for a security. The second return is
// false when no bar exists, in which case the holding is valued at zero.
type PriceLookup func(security string) (decimal.Decimal, bool)

// Derive computes the current portfolio state from the ledger.
func Derive(ledger []types.Transaction, latestClose PriceLookup) types.PortfolioState {
	type tally struct {
		buyQty   int64
		buyTotal decimal.Decimal
		sellQty  int64
	}
	tallies := make(map[string]*tally)
	for _, tx := range ledger {
		t, ok := tallies[tx.Security]
		if !ok {
			t = &tally{}
			tallies[tx.Security] = t
		}
		if tx.Side == types.OrderSideBuy {
			t.buyQty += tx.Quantity
			t.buyTotal = t.buyTotal.Add(tx.Price.Mul(decimal.NewFromInt(tx.Quantity)))
		} else {
			t.sellQty += tx.Quantity
		}
	}

	state := types.PortfolioState{Holdings: make(map[string]*types.Holding)}
	for security, t := range tallies {
		qty := t.buyQty - t.sellQty
		if qty <= 0 {
			continue
		}
		avgCost := decimal.Zero
		if t.buyQty > 0 {
			avgCost = t.buyTotal.Div(decimal.NewFromInt(t.buyQty))
		}
		holding := &types.Holding{
			Security: security,
			Quantity: qty,
			AvgCost:  avgCost,
		}
		if close, ok := latestClose(security); ok {
			holding.Value = close.Mul(decimal.NewFromInt(qty))
		}
		state.Holdings[security] = holding
		state.ActivePositions++
		state.TotalValue = state.TotalValue.Add(holding.Value)
		state.TotalCost = state.TotalCost.Add(avgCost.Mul(decimal.NewFromInt(qty)))
	}
	return state
}

// HoldingQuantity returns the current net holding in one security, floored at
// zero.
func HoldingQuantity(ledger []types.Transaction, security string) int64 {
	var qty int64
	for _, tx := range ledger {
		if tx.Security != security {
			continue
		}
		if tx.Side == types.OrderSideBuy {
			qty += tx.Quantity
		} else {
			qty -= tx.Quantity
		}
	}
	if qty < 0 {
		return 0
	}
	return qty
}
