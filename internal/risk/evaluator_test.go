// Package risk_test provides tests for the risk evaluator.
package risk_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/risk"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

func emptyState() types.PortfolioState {
	return types.PortfolioState{Holdings: map[string]*types.Holding{}}
}

func TestEvaluateSellAlwaysPasses(t *testing.T) {
	evaluator := risk.NewEvaluator(zap.NewNop())
	state := emptyState()
	state.ActivePositions = 99
	state.TotalCost = decimal.NewFromInt(1000000)
	state.TotalValue = decimal.NewFromInt(1)

	report := evaluator.Evaluate(risk.Proposal{
		Security: "7203",
		Side:     types.OrderSideSell,
		Quantity: 1000,
		Price:    decimal.NewFromInt(500),
	}, types.DefaultRiskRules(), state)

	if !report.Passed {
		t.Error("sell-side trades must always pass")
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", report.Warnings)
	}
}

func TestEvaluatePositionSizeLimit(t *testing.T) {
	evaluator := risk.NewEvaluator(zap.NewNop())
	state := emptyState()
	state.TotalValue = decimal.NewFromInt(100000)

	// 100000 / (100000 + 100000) = 50% of the post-trade portfolio.
	report := evaluator.Evaluate(risk.Proposal{
		Security: "7203",
		Side:     types.OrderSideBuy,
		Quantity: 100,
		Price:    decimal.NewFromInt(1000),
	}, types.DefaultRiskRules(), state)

	if report.Passed {
		t.Fatal("trade above maxPositionPercent must fail")
	}
	found := false
	for _, w := range report.Warnings {
		if w.Level == types.WarningLevelError && strings.Contains(w.Message, "50") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want an error mentioning the 50%% position size", report.Warnings)
	}
}

func TestEvaluateOpenPositionLimit(t *testing.T) {
	evaluator := risk.NewEvaluator(zap.NewNop())
	rules := types.DefaultRiskRules()
	state := emptyState()
	state.ActivePositions = rules.MaxOpenPositions

	report := evaluator.Evaluate(risk.Proposal{
		Security: "9999",
		Side:     types.OrderSideBuy,
		Quantity: 1,
		Price:    decimal.NewFromInt(100),
	}, rules, state)
	if report.Passed {
		t.Error("a new position at the open-position limit must fail")
	}

	// Adding to an existing position does not consume a slot.
	state.Holdings["9999"] = &types.Holding{Security: "9999", Quantity: 100}
	report = evaluator.Evaluate(risk.Proposal{
		Security: "9999",
		Side:     types.OrderSideBuy,
		Quantity: 1,
		Price:    decimal.NewFromInt(100),
	}, rules, state)
	if !report.Passed {
		t.Errorf("adding to a held security should pass, got %v", report.Warnings)
	}
}

func TestEvaluateStopLossExposure(t *testing.T) {
	evaluator := risk.NewEvaluator(zap.NewNop())
	stop := decimal.NewFromInt(90)

	report := evaluator.Evaluate(risk.Proposal{
		Security:      "7203",
		Side:          types.OrderSideBuy,
		Quantity:      10,
		Price:         decimal.NewFromInt(100),
		StopLossPrice: &stop,
	}, types.DefaultRiskRules(), emptyState())

	// Loss to the stop line is 10%, above the 5% limit.
	if report.Passed {
		t.Error("stop-loss exposure above maxLossPerTrade must fail")
	}
}

func TestEvaluatePortfolioDrawdown(t *testing.T) {
	evaluator := risk.NewEvaluator(zap.NewNop())
	state := emptyState()
	state.ActivePositions = 1
	state.Holdings["7203"] = &types.Holding{Security: "7203", Quantity: 100}
	state.TotalCost = decimal.NewFromInt(100000)
	state.TotalValue = decimal.NewFromInt(85000)

	report := evaluator.Evaluate(risk.Proposal{
		Security: "7203",
		Side:     types.OrderSideBuy,
		Quantity: 1,
		Price:    decimal.NewFromInt(100),
	}, types.DefaultRiskRules(), state)

	// Drawdown is 15%, above the 10% limit.
	if report.Passed {
		t.Error("portfolio drawdown above maxPortfolioLoss must fail")
	}
}

func TestChecklistAndSuggestions(t *testing.T) {
	evaluator := risk.NewEvaluator(zap.NewNop())
	target := decimal.NewFromInt(110)
	stop := decimal.NewFromInt(97)
	support := decimal.NewFromInt(95)
	price := decimal.NewFromInt(100)

	signal := &types.SignalRecord{
		Security:      "7203",
		Type:          types.SignalBuy,
		Strength:      2,
		TargetPrice:   &target,
		StopLossPrice: &stop,
		SupportPrice:  &support,
	}
	signal.Indicators.RSI = 25
	signal.Indicators.MACD = 1.2
	signal.Indicators.MACDSignal = 0.8

	checklist := evaluator.BuildChecklist("7203", "", signal, &price, types.DefaultRiskRules())
	// Signal, RSI, MACD, target, stop-loss and the rules item.
	if len(checklist.Items) != 6 {
		t.Fatalf("checklist items = %d, want 6", len(checklist.Items))
	}

	suggestions := evaluator.SuggestPrices("7203", "", signal, &price)
	if len(suggestions.Suggestions) != 5 {
		t.Fatalf("suggestions = %d, want 5", len(suggestions.Suggestions))
	}
	for _, sg := range suggestions.Suggestions {
		if sg.Type == risk.SuggestionTrailingStop && !sg.Price.Equal(decimal.NewFromInt(95)) {
			t.Errorf("trailing stop = %s, want 95", sg.Price)
		}
	}
}
