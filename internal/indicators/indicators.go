// Package indicators computes technical indicators over daily price-bar series.
//
// The numeric kernels come from go-talib. talib zero-fills each series'
// lookback region, so the wrappers here restore NaN for values that carry no
// data; callers test them with Defined. A frame series is recomputed on demand
// from the bars and the configured periods, and a security with fewer than the
// MACD slow period of bars is not yet classifiable.
package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/stockpulse/trading-backend/pkg/types"
)

// Defined reports whether an indicator value carries data.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// MinBars returns the minimum series length below which every indicator field
// is undefined for every bar.
func MinBars(p types.IndicatorPeriods) int {
	return p.MACDSlow
}

// Compute derives an IndicatorFrame series aligned one-to-one with bars.
// Series shorter than MinBars produce all-NaN frames.
func Compute(bars []types.PriceBar, p types.IndicatorPeriods) []types.IndicatorFrame {
	frames := make([]types.IndicatorFrame, len(bars))
	for i := range frames {
		frames[i] = nanFrame()
	}
	if len(bars) < MinBars(p) {
		return frames
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
	}

	rsi := RSI(closes, p.RSIPeriod)
	macd, signal, hist := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignalPeriod)
	smaShort := SMA(closes, p.SMAShort)
	smaMid := SMA(closes, p.SMAMid)
	smaLong := SMA(closes, p.SMALong)

	for i := range frames {
		frames[i] = types.IndicatorFrame{
			RSI:           rsi[i],
			MACD:          macd[i],
			MACDSignal:    signal[i],
			MACDHistogram: hist[i],
			SMAShort:      smaShort[i],
			SMAMid:        smaMid[i],
			SMALong:       smaLong[i],
		}
	}
	return frames
}

// RSI computes the Wilder-smoothed relative strength index, defined from
// index period onward. talib reports 0 while every close so far is unchanged;
// a still-flat series reads as the neutral 50 here instead.
func RSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period < 2 || len(closes) <= period {
		return out
	}
	raw := talib.Rsi(closes, period)

	flatThrough := 0
	for flatThrough+1 < len(closes) && closes[flatThrough+1] == closes[flatThrough] {
		flatThrough++
	}
	for i := period; i < len(closes); i++ {
		if i <= flatThrough {
			out[i] = 50
		} else {
			out[i] = raw[i]
		}
	}
	return out
}

// MACD computes the MACD line (fast EMA minus slow EMA), its signal line and
// the histogram. The line is composed from two EMAs rather than taken from
// talib.Macd, which withholds it until the signal lookback: the line here is
// defined from slow-1, the signal and histogram from slow-1+signalPeriod-1.
func MACD(closes []float64, fast, slow, signalPeriod int) (macd, signal, hist []float64) {
	macd = nanSeries(len(closes))
	signal = nanSeries(len(closes))
	hist = nanSeries(len(closes))

	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	for i := range closes {
		if Defined(emaFast[i]) && Defined(emaSlow[i]) {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}

	// Signal line is an EMA of the defined portion of the MACD line.
	start := -1
	for i, v := range macd {
		if Defined(v) {
			start = i
			break
		}
	}
	if start < 0 {
		return macd, signal, hist
	}
	sigTail := EMA(macd[start:], signalPeriod)
	for i, v := range sigTail {
		signal[start+i] = v
	}
	for i := range closes {
		if Defined(macd[i]) && Defined(signal[i]) {
			hist[i] = macd[i] - signal[i]
		}
	}
	return macd, signal, hist
}

// EMA computes an exponential moving average seeded with the simple mean of
// the first period values, defined from index period-1 onward.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	raw := talib.Ema(values, period)
	copy(out[period-1:], raw[period-1:])
	return out
}

// SMA computes a simple moving average over the given window.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	raw := talib.Sma(values, period)
	copy(out[period-1:], raw[period-1:])
	return out
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func nanFrame() types.IndicatorFrame {
	nan := math.NaN()
	return types.IndicatorFrame{
		RSI:           nan,
		MACD:          nan,
		MACDSignal:    nan,
		MACDHistogram: nan,
		SMAShort:      nan,
		SMAMid:        nan,
		SMALong:       nan,
	}
}
