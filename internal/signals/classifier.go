// Package signals classifies indicator series into trading signals.
package signals

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/indicators"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

// supportLookback is the trailing window used for support/resistance levels.
const supportLookback = 25

// Classifier derives a SignalRecord for the latest bar of a series.
type Classifier struct {
	logger *zap.Logger
}

// NewClassifier creates a new classifier.
func NewClassifier(logger *zap.Logger) *Classifier {
	return &Classifier{logger: logger.Named("classifier")}
}

// Classify evaluates the last bar of the series against the previous bar's
// indicator values. Sub-signals fire independently on defined values only;
// undefined inputs contribute nothing. When buy and sell sub-signals fire on
// the same bar, buy wins.
func (c *Classifier) Classify(security string, bars []types.PriceBar, frames []types.IndicatorFrame, settings types.SignalSettings) types.SignalRecord {
	record := types.SignalRecord{
		Security:      security,
		Type:          types.SignalHold,
		ActiveSignals: []types.SubSignal{},
	}
	if len(bars) == 0 {
		return record
	}
	last := len(bars) - 1
	record.Date = bars[last].Date
	record.Indicators = frames[last]

	if len(bars) < 2 {
		return record
	}

	cur := frames[last]
	prev := frames[last-1]
	currentClose := bars[last].Close

	var buySignals, sellSignals []types.SubSignal

	if indicators.Defined(cur.RSI) {
		if cur.RSI <= settings.RSIBuyThreshold {
			buySignals = append(buySignals, types.SubSignalRSI)
		}
		if cur.RSI >= settings.RSISellThreshold {
			sellSignals = append(sellSignals, types.SubSignalRSI)
		}
	}

	if defined(cur.MACD, cur.MACDSignal, prev.MACD, prev.MACDSignal) {
		if prev.MACD <= prev.MACDSignal && cur.MACD > cur.MACDSignal {
			buySignals = append(buySignals, types.SubSignalMACD)
		}
		if prev.MACD >= prev.MACDSignal && cur.MACD < cur.MACDSignal {
			sellSignals = append(sellSignals, types.SubSignalMACD)
		}
	}

	if defined(cur.SMAShort, cur.SMAMid, prev.SMAShort, prev.SMAMid) {
		if prev.SMAShort <= prev.SMAMid && cur.SMAShort > cur.SMAMid {
			buySignals = append(buySignals, types.SubSignalGoldenCross)
		}
		if prev.SMAShort >= prev.SMAMid && cur.SMAShort < cur.SMAMid {
			sellSignals = append(sellSignals, types.SubSignalDeadCross)
		}
	}

	support, resistance := supportResistance(bars)
	record.SupportPrice = roundedPtr(support)
	record.Resistance = roundedPtr(resistance)

	switch {
	case len(buySignals) > 0:
		record.Type = types.SignalBuy
		record.ActiveSignals = buySignals

		// Target: the highest of resistance, the long SMA when it sits
		// above the close, and close +10%.
		target := resistance
		if indicators.Defined(cur.SMALong) {
			smaLong := decimal.NewFromFloat(cur.SMALong)
			if smaLong.GreaterThan(currentClose) && smaLong.GreaterThan(target) {
				target = smaLong
			}
		}
		tenUp := currentClose.Mul(decimal.NewFromFloat(1.10))
		if tenUp.GreaterThan(target) {
			target = tenUp
		}
		stop := decimal.Max(support, currentClose.Mul(decimal.NewFromFloat(0.95)))
		record.TargetPrice = roundedPtr(target)
		record.StopLossPrice = roundedPtr(stop)

	case len(sellSignals) > 0:
		record.Type = types.SignalSell
		record.ActiveSignals = sellSignals
		record.TargetPrice = roundedPtr(support)
		record.StopLossPrice = roundedPtr(resistance)
	}

	record.Strength = len(record.ActiveSignals)

	c.logger.Debug("classified",
		zap.String("security", security),
		zap.String("signal", string(record.Type)),
		zap.Int("strength", record.Strength))

	return record
}

// supportResistance returns min(low) and max(high) over the trailing window,
// or over the whole series when shorter.
func supportResistance(bars []types.PriceBar) (support, resistance decimal.Decimal) {
	start := len(bars) - supportLookback
	if start < 0 {
		start = 0
	}
	support = bars[start].Low
	resistance = bars[start].High
	for _, b := range bars[start+1:] {
		if b.Low.LessThan(support) {
			support = b.Low
		}
		if b.High.GreaterThan(resistance) {
			resistance = b.High
		}
	}
	return support, resistance
}

func roundedPtr(d decimal.Decimal) *decimal.Decimal {
	r := d.Round(1)
	return &r
}

func defined(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
