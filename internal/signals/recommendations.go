package signals

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/pkg/types"
)

// maxBuyCandidates caps how many buy recommendations share the budget.
const maxBuyCandidates = 3

// Quote pairs a security's latest close with its latest signal record.
type Quote struct {
	Security string
	Name     string
	Price    decimal.Decimal
	Signal   *types.SignalRecord
}

// Recommendation is one actionable suggestion derived from a signal.
type Recommendation struct {
	Security              string           `json:"security"`
	Name                  string           `json:"name,omitempty"`
	CurrentPrice          decimal.Decimal  `json:"currentPrice"`
	Signal                types.SignalType `json:"signal"`
	SignalStrength        int              `json:"signalStrength"`
	ActiveSignals         []types.SubSignal `json:"activeSignals"`
	TargetPrice           *decimal.Decimal `json:"targetPrice,omitempty"`
	StopLossPrice         *decimal.Decimal `json:"stopLossPrice,omitempty"`
	SuggestedQuantity     int64            `json:"suggestedQuantity,omitempty"`
	SuggestedAmount       decimal.Decimal  `json:"suggestedAmount,omitempty"`
	ExpectedProfit        *decimal.Decimal `json:"expectedProfit,omitempty"`
	ExpectedProfitPercent *decimal.Decimal `json:"expectedProfitPercent,omitempty"`
	RiskAmount            *decimal.Decimal `json:"riskAmount,omitempty"`
}

// Recommendations groups ranked buy and sell suggestions.
type Recommendations struct {
	Buy              []Recommendation `json:"buyRecommendations"`
	Sell             []Recommendation `json:"sellRecommendations"`
	InvestmentBudget decimal.Decimal  `json:"investmentBudget"`
}

// Recommend builds ranked recommendations from the latest quotes. The
// investment budget is split evenly across at most maxBuyCandidates buy
// candidates; sell suggestions carry no sizing.
func Recommend(quotes []Quote, budget decimal.Decimal) Recommendations {
	recs := Recommendations{
		Buy:              []Recommendation{},
		Sell:             []Recommendation{},
		InvestmentBudget: budget,
	}

	buyCount := 0
	for _, q := range quotes {
		if q.Signal != nil && q.Signal.Type == types.SignalBuy && q.Price.IsPositive() {
			buyCount++
		}
	}
	if buyCount > maxBuyCandidates {
		buyCount = maxBuyCandidates
	}

	for _, q := range quotes {
		if q.Signal == nil {
			continue
		}
		switch q.Signal.Type {
		case types.SignalBuy:
			if !q.Price.IsPositive() {
				continue
			}
			perStock := budget
			if buyCount > 0 {
				perStock = budget.Div(decimal.NewFromInt(int64(buyCount)))
			}
			quantity := perStock.Div(q.Price).IntPart()
			amount := q.Price.Mul(decimal.NewFromInt(quantity)).Round(0)

			rec := Recommendation{
				Security:          q.Security,
				Name:              q.Name,
				CurrentPrice:      q.Price,
				Signal:            types.SignalBuy,
				SignalStrength:    q.Signal.Strength,
				ActiveSignals:     q.Signal.ActiveSignals,
				TargetPrice:       q.Signal.TargetPrice,
				StopLossPrice:     q.Signal.StopLossPrice,
				SuggestedQuantity: quantity,
				SuggestedAmount:   amount,
			}
			qty := decimal.NewFromInt(quantity)
			if q.Signal.TargetPrice != nil && quantity > 0 {
				profit := q.Signal.TargetPrice.Sub(q.Price).Mul(qty).Round(1)
				pct := q.Signal.TargetPrice.Sub(q.Price).Div(q.Price).Mul(decimal.NewFromInt(100)).Round(1)
				rec.ExpectedProfit = &profit
				rec.ExpectedProfitPercent = &pct
			}
			if q.Signal.StopLossPrice != nil && quantity > 0 {
				risk := q.Price.Sub(*q.Signal.StopLossPrice).Mul(qty).Round(1)
				rec.RiskAmount = &risk
			}
			recs.Buy = append(recs.Buy, rec)

		case types.SignalSell:
			recs.Sell = append(recs.Sell, Recommendation{
				Security:       q.Security,
				Name:           q.Name,
				CurrentPrice:   q.Price,
				Signal:         types.SignalSell,
				SignalStrength: q.Signal.Strength,
				ActiveSignals:  q.Signal.ActiveSignals,
				TargetPrice:    q.Signal.TargetPrice,
				StopLossPrice:  q.Signal.StopLossPrice,
			})
		}
	}

	sort.SliceStable(recs.Buy, func(i, j int) bool {
		return recs.Buy[i].SignalStrength > recs.Buy[j].SignalStrength
	})
	sort.SliceStable(recs.Sell, func(i, j int) bool {
		return recs.Sell[i].SignalStrength > recs.Sell[j].SignalStrength
	})
	if len(recs.Buy) > maxBuyCandidates {
		recs.Buy = recs.Buy[:maxBuyCandidates]
	}
	return recs
}
