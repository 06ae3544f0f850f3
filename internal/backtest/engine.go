// Package backtest replays stored price history through the signal classifier
// to simulate a simple long-only strategy.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/indicators"
	"github.com/stockpulse/trading-backend/internal/signals"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

// BarSource supplies historical bars restricted to a window.
type BarSource interface {
	BarsBetween(security string, start, end time.Time) []types.PriceBar
}

// RunStore persists backtest runs across status transitions.
type RunStore interface {
	Put(run types.BacktestRun)
	Get(id string) (types.BacktestRun, bool)
}

// SettingsSource supplies the classifier settings for a run.
type SettingsSource interface {
	SignalSettings() types.SignalSettings
}

// Engine creates and executes backtest runs. Runs are independent: all
// simulation state is scoped to a single Execute call.
type Engine struct {
	bars       BarSource
	runs       RunStore
	settings   SettingsSource
	classifier *signals.Classifier
	logger     *zap.Logger
}

// NewEngine wires a backtest engine.
func NewEngine(bars BarSource, runs RunStore, settings SettingsSource, classifier *signals.Classifier, logger *zap.Logger) *Engine {
	return &Engine{
		bars:       bars,
		runs:       runs,
		settings:   settings,
		classifier: classifier,
		logger:     logger.Named("backtest"),
	}
}

// Create stores a new pending run.
func (e *Engine) Create(cfg types.BacktestConfig) types.BacktestRun {
	run := types.BacktestRun{
		ID:             uuid.New().String(),
		Name:           cfg.Name,
		StartDate:      cfg.StartDate,
		EndDate:        cfg.EndDate,
		InitialCapital: cfg.InitialCapital,
		Securities:     append([]string(nil), cfg.Securities...),
		Status:         types.BacktestPending,
		CreatedAt:      time.Now(),
	}
	e.runs.Put(run)
	return run
}

// Execute runs a stored simulation to completion. A simulation error marks
// the run failed with the message captured; it never propagates.
func (e *Engine) Execute(id string) (types.BacktestRun, error) {
	run, ok := e.runs.Get(id)
	if !ok {
		return types.BacktestRun{}, fmt.Errorf("backtest %s not found", id)
	}
	run.Status = types.BacktestRunning
	e.runs.Put(run)

	result, err := e.simulate(run)
	now := time.Now()
	run.CompletedAt = &now
	if err != nil {
		run.Status = types.BacktestFailed
		run.Error = err.Error()
		e.logger.Error("run failed", zap.String("id", id), zap.Error(err))
	} else {
		run.Status = types.BacktestCompleted
		run.Result = result
		e.logger.Info("run completed",
			zap.String("id", id),
			zap.Int("trades", len(result.Trades)),
			zap.String("finalValue", result.Summary.FinalValue.String()))
	}
	e.runs.Put(run)
	return run, nil
}

// position is one open lot during simulation.
type position struct {
	quantity int64
	avgCost  decimal.Decimal
}

func (e *Engine) simulate(run types.BacktestRun) (result *types.BacktestResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("simulation panic: %v", r)
		}
	}()

	if !run.InitialCapital.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive")
	}

	settings := e.settings.SignalSettings()
	minBars := indicators.MinBars(settings.Periods)

	// Securities with too little history in the window are excluded from the
	// run entirely, but not from cash allocation.
	series := make(map[string][]types.PriceBar)
	barIndex := make(map[string]map[time.Time]int)
	var included []string
	for _, security := range run.Securities {
		bars := e.bars.BarsBetween(security, run.StartDate, run.EndDate)
		if len(bars) < minBars {
			e.logger.Debug("security excluded, insufficient history",
				zap.String("security", security), zap.Int("bars", len(bars)))
			continue
		}
		series[security] = bars
		index := make(map[time.Time]int, len(bars))
		for i, b := range bars {
			index[b.Date] = i
		}
		barIndex[security] = index
		included = append(included, security)
	}
	sort.Strings(included)
	if len(included) == 0 {
		return nil, fmt.Errorf("no price data in the requested window")
	}

	dateSet := make(map[time.Time]struct{})
	for _, security := range included {
		for _, b := range series[security] {
			dateSet[b.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cash := run.InitialCapital
	positions := make(map[string]*position)
	trades := []types.BacktestTrade{}
	curve := []types.EquityPoint{}

	for _, date := range dates {
		for _, security := range included {
			idx, ok := barIndex[security][date]
			if !ok {
				continue
			}
			// Classification sees only the bars up to and including this
			// date; nothing later leaks in.
			visible := series[security][:idx+1]
			frames := indicators.Compute(visible, settings.Periods)
			record := e.classifier.Classify(security, visible, frames, settings)
			price := visible[idx].Close

			switch record.Type {
			case types.SignalBuy:
				if _, held := positions[security]; held || !price.IsPositive() {
					continue
				}
				// The allocation denominator spans every requested security
				// that is not held, not just the ones with enough history.
				notHeld := 0
				for _, s := range run.Securities {
					if _, held := positions[s]; !held {
						notHeld++
					}
				}
				if notHeld < 1 {
					notHeld = 1
				}
				budget := cash.Div(decimal.NewFromInt(int64(notHeld)))
				quantity := budget.Div(price).IntPart()
				if quantity <= 0 {
					continue
				}
				cost := price.Mul(decimal.NewFromInt(quantity))
				cash = cash.Sub(cost)
				positions[security] = &position{quantity: quantity, avgCost: price}
				trades = append(trades, types.BacktestTrade{
					Security: security,
					Side:     types.OrderSideBuy,
					Quantity: quantity,
					Price:    price,
					Date:     date,
				})

			case types.SignalSell:
				pos, held := positions[security]
				if !held {
					continue
				}
				proceeds := price.Mul(decimal.NewFromInt(pos.quantity))
				cash = cash.Add(proceeds)
				pnl := proceeds.Sub(pos.avgCost.Mul(decimal.NewFromInt(pos.quantity))).Round(2)
				trades = append(trades, types.BacktestTrade{
					Security: security,
					Side:     types.OrderSideSell,
					Quantity: pos.quantity,
					Price:    price,
					Date:     date,
					PnL:      &pnl,
				})
				delete(positions, security)
			}
		}

		// Open positions are marked at the day's close when a bar exists,
		// otherwise carried at cost.
		value := cash
		for security, pos := range positions {
			mark := pos.avgCost
			if idx, ok := barIndex[security][date]; ok {
				mark = series[security][idx].Close
			}
			value = value.Add(mark.Mul(decimal.NewFromInt(pos.quantity)))
		}
		curve = append(curve, types.EquityPoint{
			Date:           date,
			PortfolioValue: value.Round(2),
			Cash:           cash.Round(2),
		})
	}

	return &types.BacktestResult{
		Trades:      trades,
		EquityCurve: curve,
		Summary:     summarize(run.InitialCapital, trades, curve),
	}, nil
}
