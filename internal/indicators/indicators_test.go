// Package indicators_test provides tests for the indicator engine.
package indicators_test

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/internal/indicators"
	"github.com/stockpulse/trading-backend/pkg/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := indicators.SMA(values, 3)

	if indicators.Defined(out[0]) || indicators.Defined(out[1]) {
		t.Error("SMA should be undefined before a full window")
	}
	for i, want := range map[int]float64{2: 2, 3: 3, 4: 4} {
		if !almostEqual(out[i], want) {
			t.Errorf("SMA[%d] = %v, want %v", i, out[i], want)
		}
	}
}

func TestEMA(t *testing.T) {
	values := []float64{2, 4, 6, 8}
	out := indicators.EMA(values, 3)

	if !almostEqual(out[2], 4) {
		t.Errorf("EMA seed = %v, want 4", out[2])
	}
	// k = 0.5 with period 3
	if !almostEqual(out[3], 6) {
		t.Errorf("EMA[3] = %v, want 6", out[3])
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	closes := []float64{10, 11, 10, 11}
	out := indicators.RSI(closes, 2)

	if indicators.Defined(out[1]) {
		t.Error("RSI should be undefined before the first full period")
	}
	if !almostEqual(out[2], 50) {
		t.Errorf("RSI[2] = %v, want 50", out[2])
	}
	// avgGain = (0.5*1 + 1)/2 = 0.75, avgLoss = 0.5/2 = 0.25
	if !almostEqual(out[3], 75) {
		t.Errorf("RSI[3] = %v, want 75", out[3])
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5, 6}
	out := indicators.RSI(rising, 3)
	if !almostEqual(out[len(out)-1], 100) {
		t.Errorf("all-gain RSI = %v, want 100", out[len(out)-1])
	}

	flat := []float64{5, 5, 5, 5, 5}
	out = indicators.RSI(flat, 3)
	if !almostEqual(out[len(out)-1], 50) {
		t.Errorf("flat RSI = %v, want 50", out[len(out)-1])
	}
}

func TestLookbackRegionIsUndefined(t *testing.T) {
	values := []float64{5, 6, 7, 8, 9}
	if out := indicators.EMA(values, 3); indicators.Defined(out[1]) {
		t.Errorf("EMA[1] = %v, want NaN during the lookback, not zero", out[1])
	}
	if out := indicators.RSI(values, 3); indicators.Defined(out[2]) {
		t.Errorf("RSI[2] = %v, want NaN during the lookback, not zero", out[2])
	}
	if out := indicators.SMA(values, 3); indicators.Defined(out[0]) {
		t.Errorf("SMA[0] = %v, want NaN during the lookback, not zero", out[0])
	}
}

func TestMACDAlignment(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	macd, signal, hist := indicators.MACD(closes, 12, 26, 9)

	if indicators.Defined(macd[24]) {
		t.Error("MACD should be undefined before the slow period")
	}
	if !indicators.Defined(macd[25]) {
		t.Error("MACD should be defined at the slow period boundary")
	}
	if indicators.Defined(signal[32]) {
		t.Error("signal line defined too early")
	}
	if !indicators.Defined(signal[33]) {
		t.Error("signal line should be defined after its own lookback")
	}
	if macd[30] <= 0 {
		t.Errorf("rising series should give positive MACD, got %v", macd[30])
	}
	if !indicators.Defined(hist[33]) {
		t.Error("histogram should be defined once both lines are")
	}
}

func TestComputeShortSeries(t *testing.T) {
	periods := types.DefaultIndicatorPeriods()
	if got := indicators.MinBars(periods); got != 26 {
		t.Fatalf("MinBars = %d, want 26", got)
	}

	bars := makeBars(25, 100)
	frames := indicators.Compute(bars, periods)
	if len(frames) != 25 {
		t.Fatalf("frame count = %d, want 25", len(frames))
	}
	for i, f := range frames {
		if indicators.Defined(f.RSI) || indicators.Defined(f.MACD) || indicators.Defined(f.SMAShort) {
			t.Errorf("frame %d should be fully undefined below the minimum series length", i)
		}
	}
}

func TestComputeDefinedFields(t *testing.T) {
	periods := types.DefaultIndicatorPeriods()
	bars := makeBars(30, 100)
	frames := indicators.Compute(bars, periods)

	last := frames[len(frames)-1]
	if !indicators.Defined(last.RSI) {
		t.Error("RSI should be defined with 30 bars")
	}
	if !indicators.Defined(last.SMAMid) {
		t.Error("25-day SMA should be defined with 30 bars")
	}
	if indicators.Defined(last.SMALong) {
		t.Error("75-day SMA should still be undefined with 30 bars")
	}
}

func makeBars(n int, base float64) []types.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.PriceBar, n)
	for i := range bars {
		price := decimal.NewFromFloat(base + float64(i))
		bars[i] = types.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}
