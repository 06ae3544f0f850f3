package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/pkg/types"
)

// ChecklistStatus grades one checklist item.
type ChecklistStatus string

// Checklist item statuses.
const (
	ChecklistOK      ChecklistStatus = "ok"
	ChecklistWarning ChecklistStatus = "warning"
	ChecklistNeutral ChecklistStatus = "neutral"
)

// ChecklistItem is one line of the pre-trade checklist.
type ChecklistItem struct {
	Label  string          `json:"label"`
	Status ChecklistStatus `json:"status"`
	Detail string          `json:"detail"`
}

// Checklist is the pre-trade review for one security.
type Checklist struct {
	Security string          `json:"security"`
	Name     string          `json:"name,omitempty"`
	Items    []ChecklistItem `json:"items"`
}

// SuggestionType labels a price suggestion.
type SuggestionType string

// Price suggestion types.
const (
	SuggestionLimitBuy     SuggestionType = "limit_buy"
	SuggestionStopLoss     SuggestionType = "stop_loss"
	SuggestionTakeProfit   SuggestionType = "take_profit"
	SuggestionTrailingStop SuggestionType = "trailing_stop"
)

// PriceSuggestion is one suggested limit or stop price.
type PriceSuggestion struct {
	Type   SuggestionType  `json:"type"`
	Label  string          `json:"label"`
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason"`
}

// PriceSuggestions groups the suggested order prices for one security.
type PriceSuggestions struct {
	Security     string            `json:"security"`
	Name         string            `json:"name,omitempty"`
	CurrentPrice decimal.Decimal   `json:"currentPrice"`
	Suggestions  []PriceSuggestion `json:"suggestions"`
}

// BuildChecklist assembles the pre-trade checklist from the latest signal and
// close. Missing inputs drop their items rather than failing the call.
func (e *Evaluator) BuildChecklist(security, name string, signal *types.SignalRecord, latestClose *decimal.Decimal, rules types.RiskRules) Checklist {
	cl := Checklist{Security: security, Name: name, Items: []ChecklistItem{}}

	if signal != nil {
		status := ChecklistWarning
		if signal.Type == types.SignalBuy || signal.Type == types.SignalSell {
			status = ChecklistOK
		}
		cl.Items = append(cl.Items, ChecklistItem{
			Label:  fmt.Sprintf("current signal: %s", signal.Type),
			Status: status,
			Detail: fmt.Sprintf("strength %d/3", signal.Strength),
		})

		if rsi := signal.Indicators.RSI; !isNaN(rsi) {
			item := ChecklistItem{Label: fmt.Sprintf("RSI: %.1f", rsi)}
			switch {
			case rsi <= 30:
				item.Status = ChecklistOK
				item.Detail = "oversold zone, favors buying"
			case rsi >= 70:
				item.Status = ChecklistWarning
				item.Detail = "overbought zone, consider selling"
			default:
				item.Status = ChecklistNeutral
				item.Detail = "neutral zone"
			}
			cl.Items = append(cl.Items, item)
		}

		if macd, sig := signal.Indicators.MACD, signal.Indicators.MACDSignal; !isNaN(macd) && !isNaN(sig) {
			item := ChecklistItem{
				Detail: fmt.Sprintf("MACD=%.2f / signal=%.2f", macd, sig),
			}
			if macd > sig {
				item.Label = "MACD above signal line"
				item.Status = ChecklistOK
			} else {
				item.Label = "MACD below signal line"
				item.Status = ChecklistWarning
			}
			cl.Items = append(cl.Items, item)
		}

		if signal.TargetPrice != nil && latestClose != nil && latestClose.IsPositive() {
			upside := signal.TargetPrice.Sub(*latestClose).Div(*latestClose).Mul(hundred)
			status := ChecklistWarning
			if upside.IsPositive() {
				status = ChecklistOK
			}
			cl.Items = append(cl.Items, ChecklistItem{
				Label:  fmt.Sprintf("target price: %s", signal.TargetPrice.Round(0)),
				Status: status,
				Detail: fmt.Sprintf("upside %s%%", upside.Round(1)),
			})
		}

		if signal.StopLossPrice != nil && latestClose != nil && latestClose.IsPositive() {
			downside := signal.StopLossPrice.Sub(*latestClose).Div(*latestClose).Mul(hundred)
			status := ChecklistWarning
			if downside.Abs().LessThanOrEqual(decimal.NewFromInt(5)) {
				status = ChecklistOK
			}
			cl.Items = append(cl.Items, ChecklistItem{
				Label:  fmt.Sprintf("stop-loss line: %s", signal.StopLossPrice.Round(0)),
				Status: status,
				Detail: fmt.Sprintf("downside risk %s%%", downside.Round(1)),
			})
		}
	}

	cl.Items = append(cl.Items, ChecklistItem{
		Label:  fmt.Sprintf("max open positions: %d", rules.MaxOpenPositions),
		Status: ChecklistNeutral,
		Detail: "from risk rules",
	})
	return cl
}

// SuggestPrices proposes limit and stop order prices around the latest close.
// Without a latest close no suggestions are made.
func (e *Evaluator) SuggestPrices(security, name string, signal *types.SignalRecord, latestClose *decimal.Decimal) PriceSuggestions {
	ps := PriceSuggestions{Security: security, Name: name, Suggestions: []PriceSuggestion{}}
	if latestClose == nil {
		return ps
	}
	current := *latestClose
	ps.CurrentPrice = current
	if signal == nil {
		return ps
	}

	if signal.SupportPrice != nil {
		ps.Suggestions = append(ps.Suggestions, PriceSuggestion{
			Type:   SuggestionLimitBuy,
			Label:  "limit buy near support",
			Price:  signal.SupportPrice.Mul(decimal.NewFromFloat(1.005)).Round(1),
			Reason: fmt.Sprintf("just above the support line at %s", signal.SupportPrice.Round(0)),
		})
	}
	ps.Suggestions = append(ps.Suggestions, PriceSuggestion{
		Type:   SuggestionLimitBuy,
		Label:  "limit buy at current -2%",
		Price:  current.Mul(decimal.NewFromFloat(0.98)).Round(1),
		Reason: "buy on a 2% dip from the current price",
	})
	if signal.StopLossPrice != nil {
		ps.Suggestions = append(ps.Suggestions, PriceSuggestion{
			Type:   SuggestionStopLoss,
			Label:  "stop-loss",
			Price:  signal.StopLossPrice.Round(1),
			Reason: "stop-loss line from technical analysis",
		})
	}
	if signal.TargetPrice != nil {
		ps.Suggestions = append(ps.Suggestions, PriceSuggestion{
			Type:   SuggestionTakeProfit,
			Label:  "take-profit limit",
			Price:  signal.TargetPrice.Round(1),
			Reason: "target price from technical analysis",
		})
	}
	ps.Suggestions = append(ps.Suggestions, PriceSuggestion{
		Type:   SuggestionTrailingStop,
		Label:  "stop at current -5%",
		Price:  current.Mul(decimal.NewFromFloat(0.95)).Round(1),
		Reason: "cut losses 5% below the current price",
	})
	return ps
}

func isNaN(v float64) bool { return v != v }
