// Package types provides configuration types for the trading backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// IndicatorPeriods configures the indicator engine's lookback windows.
type IndicatorPeriods struct {
	RSIPeriod        int `json:"rsiPeriod"`
	MACDFast         int `json:"macdFast"`
	MACDSlow         int `json:"macdSlow"`
	MACDSignalPeriod int `json:"macdSignalPeriod"`
	SMAShort         int `json:"smaShortPeriod"`
	SMAMid           int `json:"smaMidPeriod"`
	SMALong          int `json:"smaLongPeriod"`
}

// DefaultIndicatorPeriods returns the standard 14 / 12-26-9 / 5-25-75 windows.
func DefaultIndicatorPeriods() IndicatorPeriods {
	return IndicatorPeriods{
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignalPeriod: 9,
		SMAShort:         5,
		SMAMid:           25,
		SMALong:          75,
	}
}

// SignalSettings configures the signal classifier and sizing budget. Values are
// merged from the key/value settings store on top of these defaults at the
// start of each invocation.
type SignalSettings struct {
	RSIBuyThreshold  float64          `json:"rsiBuyThreshold"`
	RSISellThreshold float64          `json:"rsiSellThreshold"`
	Periods          IndicatorPeriods `json:"periods"`
	InvestmentBudget decimal.Decimal  `json:"investmentBudget"`
}

// DefaultSignalSettings returns the default classifier settings.
func DefaultSignalSettings() SignalSettings {
	return SignalSettings{
		RSIBuyThreshold:  30,
		RSISellThreshold: 70,
		Periods:          DefaultIndicatorPeriods(),
		InvestmentBudget: decimal.NewFromInt(1000000),
	}
}

// RiskRules bound what the risk evaluator will approve. Percent fields are
// whole percentages (30 means 30%).
type RiskRules struct {
	MaxPositionPercent decimal.Decimal `json:"maxPositionPercent"`
	MaxLossPerTrade    decimal.Decimal `json:"maxLossPerTrade"`
	MaxPortfolioLoss   decimal.Decimal `json:"maxPortfolioLoss"`
	MaxOpenPositions   int             `json:"maxOpenPositions"`
}

// DefaultRiskRules returns the default risk limits.
func DefaultRiskRules() RiskRules {
	return RiskRules{
		MaxPositionPercent: decimal.NewFromInt(30),
		MaxLossPerTrade:    decimal.NewFromInt(5),
		MaxPortfolioLoss:   decimal.NewFromInt(10),
		MaxOpenPositions:   5,
	}
}

// AutoTradeConfig controls the live decision pipeline.
type AutoTradeConfig struct {
	Enabled           bool      `json:"enabled"`
	MinSignalStrength int       `json:"minSignalStrength"`
	MaxTradesPerDay   int       `json:"maxTradesPerDay"`
	OrderType         OrderType `json:"orderType"`
	DryRun            bool      `json:"dryRun"`
}

// DefaultAutoTradeConfig returns the default auto-trade configuration:
// disabled, dry-run, conservative caps.
func DefaultAutoTradeConfig() AutoTradeConfig {
	return AutoTradeConfig{
		Enabled:           false,
		MinSignalStrength: 2,
		MaxTradesPerDay:   3,
		OrderType:         OrderTypeMarket,
		DryRun:            true,
	}
}

// BacktestConfig describes one simulation request.
type BacktestConfig struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	InitialCapital decimal.Decimal `json:"initialCapital"`
	Securities     []string        `json:"securities"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	WebSocketPath string        `json:"websocketPath"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	EnableMetrics bool          `json:"enableMetrics"`
}

// DefaultServerConfig returns sane local defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "localhost",
		Port:          8080,
		WebSocketPath: "/ws",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		EnableMetrics: true,
	}
}
