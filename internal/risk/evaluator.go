// Package risk evaluates proposed trades against configured risk rules.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Evaluator runs pre-trade risk checks. It never returns an error: a check
// whose inputs are absent is skipped rather than failed.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger.Named("risk")}
}

// Proposal describes the trade under evaluation. StopLossPrice comes from the
// security's latest signal record and may be nil.
type Proposal struct {
	Security      string
	Side          types.OrderSide
	Quantity      int64
	Price         decimal.Decimal
	StopLossPrice *decimal.Decimal
}

// Evaluate checks a proposed trade against the rules and the current
// portfolio state. Sell-side trades always pass: selling reduces risk. All
// applicable checks run; any single failure fails the whole evaluation.
func (e *Evaluator) Evaluate(p Proposal, rules types.RiskRules, state types.PortfolioState) types.RiskReport {
	tradeAmount := p.Price.Mul(decimal.NewFromInt(p.Quantity))
	report := types.RiskReport{
		Passed:          true,
		Warnings:        []types.RiskWarning{},
		TradeAmount:     tradeAmount,
		PortfolioValue:  state.TotalValue.Round(2),
		ActivePositions: state.ActivePositions,
	}
	if p.Side != types.OrderSideBuy {
		return report
	}

	// Open-position count: only new positions consume a slot.
	holding, held := state.Holdings[p.Security]
	isNewPosition := !held || holding.Quantity <= 0
	if isNewPosition && state.ActivePositions >= rules.MaxOpenPositions {
		report.Passed = false
		report.Warnings = append(report.Warnings, types.RiskWarning{
			Level: types.WarningLevelError,
			Message: fmt.Sprintf("open positions at limit (%d of %d)",
				state.ActivePositions, rules.MaxOpenPositions),
		})
	}

	// Position size as a share of the post-trade portfolio.
	if state.TotalValue.IsPositive() {
		positionPct := tradeAmount.Div(state.TotalValue.Add(tradeAmount)).Mul(hundred)
		if positionPct.GreaterThan(rules.MaxPositionPercent) {
			report.Passed = false
			report.Warnings = append(report.Warnings, types.RiskWarning{
				Level: types.WarningLevelError,
				Message: fmt.Sprintf("trade would be %s%% of the portfolio (limit %s%%)",
					positionPct.Round(1), rules.MaxPositionPercent.Round(0)),
			})
		}
	}

	// Loss to the stop-loss line.
	if p.StopLossPrice != nil && p.Price.IsPositive() {
		lossPct := p.Price.Sub(*p.StopLossPrice).Div(p.Price).Mul(hundred)
		if lossPct.GreaterThan(rules.MaxLossPerTrade) {
			report.Passed = false
			report.Warnings = append(report.Warnings, types.RiskWarning{
				Level: types.WarningLevelError,
				Message: fmt.Sprintf("loss to stop-loss line is %s%% (limit %s%%)",
					lossPct.Round(1), rules.MaxLossPerTrade.Round(0)),
			})
		}
	}

	// Portfolio-wide drawdown against cost basis.
	if state.TotalCost.IsPositive() {
		drawdownPct := state.TotalCost.Sub(state.TotalValue).Div(state.TotalCost).Mul(hundred)
		if drawdownPct.GreaterThan(rules.MaxPortfolioLoss) {
			report.Passed = false
			report.Warnings = append(report.Warnings, types.RiskWarning{
				Level: types.WarningLevelError,
				Message: fmt.Sprintf("portfolio drawdown is %s%% (limit %s%%)",
					drawdownPct.Round(1), rules.MaxPortfolioLoss.Round(0)),
			})
		}
	}

	if !report.Passed {
		e.logger.Warn("trade rejected",
			zap.String("security", p.Security),
			zap.Int("warnings", len(report.Warnings)))
	}
	return report
}
