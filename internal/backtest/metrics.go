package backtest

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/pkg/types"
)

// profitFactorCap stands in for an infinite profit factor when a run closed
// profitable trades and no losing ones.
var profitFactorCap = decimal.NewFromFloat(999.99)

// dailyRiskFree is the daily risk-free rate used by the Sharpe ratio, an
// annualized 0.1%.
const dailyRiskFree = 0.001 / 252

// summarize derives performance metrics from a completed run's trade ledger
// and equity curve.
func summarize(initialCapital decimal.Decimal, trades []types.BacktestTrade, curve []types.EquityPoint) *types.BacktestSummary {
	finalValue := initialCapital
	if len(curve) > 0 {
		finalValue = curve[len(curve)-1].PortfolioValue
	}
	totalReturn := finalValue.Sub(initialCapital)
	totalReturnPct := decimal.Zero
	if initialCapital.IsPositive() {
		totalReturnPct = totalReturn.Div(initialCapital).Mul(decimal.NewFromInt(100))
	}

	// Max drawdown from the running peak, seeded with the starting capital.
	peak := initialCapital
	maxDrawdown := decimal.Zero
	for _, point := range curve {
		if point.PortfolioValue.GreaterThan(peak) {
			peak = point.PortfolioValue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(point.PortfolioValue).Div(peak).Mul(decimal.NewFromInt(100))
		if dd.GreaterThan(maxDrawdown) {
			maxDrawdown = dd
		}
	}

	var wins, closed int
	grossProfit, grossLoss := decimal.Zero, decimal.Zero
	for _, trade := range trades {
		if trade.Side != types.OrderSideSell || trade.PnL == nil {
			continue
		}
		closed++
		if trade.PnL.IsPositive() {
			wins++
			grossProfit = grossProfit.Add(*trade.PnL)
		} else if trade.PnL.IsNegative() {
			grossLoss = grossLoss.Add(trade.PnL.Abs())
		}
	}
	winRate := decimal.Zero
	if closed > 0 {
		winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(closed))).Mul(decimal.NewFromInt(100))
	}
	profitFactor := decimal.Zero
	switch {
	case grossLoss.IsPositive():
		profitFactor = grossProfit.Div(grossLoss)
		if profitFactor.GreaterThan(profitFactorCap) {
			profitFactor = profitFactorCap
		}
	case grossProfit.IsPositive():
		profitFactor = profitFactorCap
	}

	return &types.BacktestSummary{
		TotalReturn:        totalReturn.Round(2),
		TotalReturnPercent: totalReturnPct.Round(2),
		FinalValue:         finalValue.Round(2),
		MaxDrawdown:        maxDrawdown.Round(2),
		WinRate:            winRate.Round(1),
		TotalTrades:        len(trades),
		ProfitFactor:       profitFactor.Round(2),
		SharpeRatio:        decimal.NewFromFloat(sharpeRatio(curve)).Round(2),
	}
}

// sharpeRatio annualizes the mean excess day-over-day return of the equity
// curve. Fewer than two snapshots or a flat curve yield zero.
func sharpeRatio(curve []types.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].PortfolioValue.InexactFloat64()
		if prev == 0 {
			return 0
		}
		cur := curve[i].PortfolioValue.InexactFloat64()
		returns = append(returns, (cur-prev)/prev)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return (mean - dailyRiskFree) / stdDev * math.Sqrt(252)
}
