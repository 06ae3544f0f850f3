// Package autotrade runs the live trading decision pipeline and its
// orchestrator.
package autotrade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/indicators"
	"github.com/stockpulse/trading-backend/internal/portfolio"
	"github.com/stockpulse/trading-backend/internal/risk"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

// volumeLookback is the trailing window for the volume-confirmation gate.
const volumeLookback = 20

// volumeRatio is the minimum multiple of average volume required to trade.
var volumeRatio = decimal.NewFromFloat(1.2)

// sizingDivisor splits the investment budget across buy opportunities.
var sizingDivisor = decimal.NewFromInt(5)

// PriceSource supplies stored price bars.
type PriceSource interface {
	Bars(security string) []types.PriceBar
	LatestBar(security string) (types.PriceBar, bool)
	LatestClose(security string) (decimal.Decimal, bool)
}

// SignalSource supplies stored signal records.
type SignalSource interface {
	Latest(security string) (types.SignalRecord, bool)
	Previous(security string, before time.Time) (types.SignalRecord, bool)
}

// ConfigSource supplies the latest committed configuration. It is consulted at
// the start of every invocation and never cached.
type ConfigSource interface {
	AutoTrade() types.AutoTradeConfig
	RiskRules() types.RiskRules
	SignalSettings() types.SignalSettings
	EnabledSecurities() []string
}

// AuditSink is the append-only consumer of decision outcomes.
type AuditSink interface {
	Append(outcome types.DecisionOutcome)
	CountTradesOn(day time.Time) int
}

// TransactionLedger records executed trades and backs portfolio derivation.
type TransactionLedger interface {
	Append(tx types.Transaction)
	All() []types.Transaction
}

// OrderSubmitter submits orders to the brokerage. One attempt, no retry.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order types.Order) (string, error)
}

// Pipeline is the sequential gate chain that turns stored signals into orders.
type Pipeline struct {
	prices  PriceSource
	signals SignalSource
	config  ConfigSource
	audit   AuditSink
	ledger  TransactionLedger
	broker  OrderSubmitter
	risk    *risk.Evaluator
	logger  *zap.Logger
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(prices PriceSource, signals SignalSource, config ConfigSource,
	audit AuditSink, ledger TransactionLedger, broker OrderSubmitter,
	evaluator *risk.Evaluator, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		prices:  prices,
		signals: signals,
		config:  config,
		audit:   audit,
		ledger:  ledger,
		broker:  broker,
		risk:    evaluator,
		logger:  logger.Named("pipeline"),
	}
}

// Process runs one pass over the enabled securities. Every terminal outcome is
// appended to the audit sink, including the global-disabled and daily-cap
// cases where no security is evaluated.
func (p *Pipeline) Process(ctx context.Context, now time.Time) []types.DecisionOutcome {
	cfg := p.config.AutoTrade()

	if !cfg.Enabled {
		outcome := p.record(types.DecisionOutcome{
			Status: types.DecisionSkipped,
			Reason: "auto-trading disabled",
		}, now)
		return []types.DecisionOutcome{outcome}
	}

	capacity := cfg.MaxTradesPerDay - p.audit.CountTradesOn(now)
	if capacity <= 0 {
		outcome := p.record(types.DecisionOutcome{
			Status: types.DecisionSkipped,
			Reason: "daily trade cap reached",
		}, now)
		return []types.DecisionOutcome{outcome}
	}

	var outcomes []types.DecisionOutcome
	for _, security := range p.config.EnabledSecurities() {
		if capacity <= 0 {
			outcomes = append(outcomes, p.record(types.DecisionOutcome{
				Security: security,
				Status:   types.DecisionSkipped,
				Reason:   "daily trade capacity exhausted",
			}, now))
			continue
		}
		outcome := p.evaluateSecurity(ctx, security, cfg, now)
		if outcome.Status == types.DecisionExecuted || outcome.Status == types.DecisionDryRun {
			capacity--
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// evaluateSecurity walks one security through the gate chain and returns its
// audited terminal outcome.
func (p *Pipeline) evaluateSecurity(ctx context.Context, security string, cfg types.AutoTradeConfig, now time.Time) types.DecisionOutcome {
	skip := func(reason string, signal *types.SignalRecord) types.DecisionOutcome {
		o := types.DecisionOutcome{
			Security: security,
			Status:   types.DecisionSkipped,
			Reason:   reason,
		}
		if signal != nil {
			o.SignalType = signal.Type
			o.SignalStrength = signal.Strength
			o.ActiveSignals = signal.ActiveSignals
		}
		return p.record(o, now)
	}

	signal, haveSignal := p.signals.Latest(security)
	bar, haveBar := p.prices.LatestBar(security)
	if !haveSignal || !haveBar {
		return skip("no signal or price data", nil)
	}
	price := bar.Close

	if signal.Type == types.SignalHold {
		if note := p.profitTakingAdvisory(security, price); note != "" {
			p.logger.Info("profit-taking opportunity",
				zap.String("security", security), zap.String("note", note))
			return skip("hold signal ("+note+")", &signal)
		}
		return skip("hold signal", &signal)
	}

	prev, havePrev := p.signals.Previous(security, signal.Date)
	if !havePrev || prev.Type != signal.Type {
		return skip("insufficient persistence", &signal)
	}

	if !p.volumeConfirmed(security, bar) {
		return skip("volume below confirmation threshold", &signal)
	}

	if reason, ok := p.trendFilter(signal, price); !ok {
		return skip(reason, &signal)
	}

	if signal.Strength < cfg.MinSignalStrength {
		return skip(fmt.Sprintf("signal strength %d below minimum %d",
			signal.Strength, cfg.MinSignalStrength), &signal)
	}

	side := types.OrderSideBuy
	if signal.Type == types.SignalSell {
		side = types.OrderSideSell
	}
	quantity := p.sizeOrder(security, side, price)
	if quantity <= 0 {
		return skip("computed quantity is zero", &signal)
	}

	state := portfolio.Derive(p.ledger.All(), p.prices.LatestClose)
	report := p.risk.Evaluate(risk.Proposal{
		Security:      security,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		StopLossPrice: signal.StopLossPrice,
	}, p.config.RiskRules(), state)
	if !report.Passed {
		return p.record(types.DecisionOutcome{
			Security:       security,
			Status:         types.DecisionRiskBlocked,
			Reason:         "risk evaluation failed",
			SignalType:     signal.Type,
			SignalStrength: signal.Strength,
			ActiveSignals:  signal.ActiveSignals,
			OrderPrice:     price,
			Quantity:       quantity,
			RiskWarnings:   report.Warnings,
		}, now)
	}

	order := types.Order{
		ID:        uuid.New().String(),
		Security:  security,
		Side:      side,
		Type:      cfg.OrderType,
		Quantity:  quantity,
		Price:     price,
		CreatedAt: now,
	}
	outcome := types.DecisionOutcome{
		Security:       security,
		SignalType:     signal.Type,
		SignalStrength: signal.Strength,
		ActiveSignals:  signal.ActiveSignals,
		OrderType:      order.Type,
		OrderPrice:     order.Price,
		Quantity:       order.Quantity,
		RiskPassed:     true,
		DryRun:         cfg.DryRun,
	}

	if cfg.DryRun {
		outcome.Status = types.DecisionDryRun
		outcome.Reason = "dry run, order not sent"
		return p.record(outcome, now)
	}

	brokerageID, err := p.broker.SubmitOrder(ctx, order)
	if err != nil {
		p.logger.Error("order submission failed",
			zap.String("security", security), zap.Error(err))
		outcome.Status = types.DecisionFailed
		outcome.Reason = err.Error()
		return p.record(outcome, now)
	}

	tx := types.Transaction{
		ID:         uuid.New().String(),
		Security:   security,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Memo:       "auto trade",
		ExecutedAt: now,
	}
	p.ledger.Append(tx)

	outcome.Status = types.DecisionExecuted
	outcome.TransactionID = tx.ID
	outcome.BrokerageOrderID = brokerageID
	return p.record(outcome, now)
}

// profitTakingAdvisory reports an unrealized gain of 5% or more with the two
// most recent closes declining. Empty when no advisory applies.
func (p *Pipeline) profitTakingAdvisory(security string, price decimal.Decimal) string {
	held := portfolio.HoldingQuantity(p.ledger.All(), security)
	if held <= 0 {
		return ""
	}
	state := portfolio.Derive(p.ledger.All(), p.prices.LatestClose)
	holding, ok := state.Holdings[security]
	if !ok || !holding.AvgCost.IsPositive() {
		return ""
	}
	gain := price.Sub(holding.AvgCost).Div(holding.AvgCost).Mul(decimal.NewFromInt(100))
	if gain.LessThan(decimal.NewFromInt(5)) {
		return ""
	}
	bars := p.prices.Bars(security)
	if len(bars) < 3 {
		return ""
	}
	last, prev := bars[len(bars)-1].Close, bars[len(bars)-2].Close
	if last.GreaterThanOrEqual(prev) {
		return ""
	}
	return fmt.Sprintf("unrealized gain %s%% with price declining, consider taking profit", gain.Round(1))
}

// volumeConfirmed requires today's volume to reach volumeRatio times the
// trailing average over up to volumeLookback prior bars.
func (p *Pipeline) volumeConfirmed(security string, today types.PriceBar) bool {
	bars := p.prices.Bars(security)
	if len(bars) < 2 {
		return false
	}
	prior := bars[:len(bars)-1]
	if len(prior) > volumeLookback {
		prior = prior[len(prior)-volumeLookback:]
	}
	var sum int64
	for _, b := range prior {
		sum += b.Volume
	}
	if sum <= 0 {
		return false
	}
	average := decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(prior))))
	return decimal.NewFromInt(today.Volume).GreaterThanOrEqual(average.Mul(volumeRatio))
}

// trendFilter requires buys above and sells below the long SMA, with RSI
// extremes overriding the requirement. An undefined or non-positive long SMA
// fails the gate.
func (p *Pipeline) trendFilter(signal types.SignalRecord, price decimal.Decimal) (string, bool) {
	smaLong := signal.Indicators.SMALong
	if !indicators.Defined(smaLong) || smaLong <= 0 {
		return "long trend average unavailable", false
	}
	sma := decimal.NewFromFloat(smaLong)
	rsi := signal.Indicators.RSI
	switch signal.Type {
	case types.SignalBuy:
		if price.GreaterThanOrEqual(sma) || (indicators.Defined(rsi) && rsi < 25) {
			return "", true
		}
		return "price below long trend average", false
	case types.SignalSell:
		if price.LessThanOrEqual(sma) || (indicators.Defined(rsi) && rsi > 75) {
			return "", true
		}
		return "price above long trend average", false
	}
	return "", true
}

// sizeOrder computes the trade quantity: a fifth of the investment budget for
// buys, the full net holding for sells.
func (p *Pipeline) sizeOrder(security string, side types.OrderSide, price decimal.Decimal) int64 {
	if side == types.OrderSideSell {
		return portfolio.HoldingQuantity(p.ledger.All(), security)
	}
	if !price.IsPositive() {
		return 0
	}
	budget := p.config.SignalSettings().InvestmentBudget.Div(sizingDivisor)
	return budget.Div(price).IntPart()
}

// record stamps, audits and returns one terminal outcome.
func (p *Pipeline) record(outcome types.DecisionOutcome, now time.Time) types.DecisionOutcome {
	outcome.ID = uuid.New().String()
	outcome.CreatedAt = now
	p.audit.Append(outcome)
	p.logger.Debug("decision",
		zap.String("security", outcome.Security),
		zap.String("status", string(outcome.Status)),
		zap.String("reason", outcome.Reason))
	return outcome
}
