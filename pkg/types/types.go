// Package types provides shared type definitions for the trading backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType classifies a security for one trading day.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
	SignalHold SignalType = "hold"
)

// SubSignal identifies one of the independent rules that can fire on a bar.
type SubSignal string

const (
	SubSignalRSI         SubSignal = "RSI"
	SubSignalMACD        SubSignal = "MACD"
	SubSignalGoldenCross SubSignal = "GoldenCross"
	SubSignalDeadCross   SubSignal = "DeadCross"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of order sent to the brokerage.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// PriceBar is one day's OHLCV record for a security. Immutable once recorded;
// one per (security, date).
type PriceBar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// IndicatorFrame holds per-bar indicator values aligned one-to-one with a bar
// series. Fields are NaN when insufficient history exists to define them.
type IndicatorFrame struct {
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macdSignal"`
	MACDHistogram float64 `json:"macdHistogram"`
	SMAShort      float64 `json:"smaShort"`
	SMAMid        float64 `json:"smaMid"`
	SMALong       float64 `json:"smaLong"`
}

// SignalRecord is the classification of one security for one date. Recomputing
// for the same date supersedes the previous record.
type SignalRecord struct {
	Security      string           `json:"security"`
	Date          time.Time        `json:"date"`
	Type          SignalType       `json:"signalType"`
	Strength      int              `json:"signalStrength"`
	ActiveSignals []SubSignal      `json:"activeSignals"`
	Indicators    IndicatorFrame   `json:"indicators"`
	TargetPrice   *decimal.Decimal `json:"targetPrice,omitempty"`
	StopLossPrice *decimal.Decimal `json:"stopLossPrice,omitempty"`
	SupportPrice  *decimal.Decimal `json:"supportPrice,omitempty"`
	Resistance    *decimal.Decimal `json:"resistancePrice,omitempty"`
}

// Order is an executable order produced by the decision pipeline.
type Order struct {
	ID        string          `json:"id"`
	Security  string          `json:"security"`
	Side      OrderSide       `json:"side"`
	Type      OrderType       `json:"type"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Transaction is one row of the append-only trade ledger.
type Transaction struct {
	ID         string          `json:"id"`
	Security   string          `json:"security"`
	Side       OrderSide       `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Memo       string          `json:"memo,omitempty"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// Holding is the derived net position in one security.
type Holding struct {
	Security string          `json:"security"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avgCost"`
	Value    decimal.Decimal `json:"value"`
}

// PortfolioState is derived on demand from the transaction ledger; it is never
// stored directly.
type PortfolioState struct {
	Holdings        map[string]*Holding `json:"holdings"`
	ActivePositions int                 `json:"activePositions"`
	TotalValue      decimal.Decimal     `json:"totalValue"`
	TotalCost       decimal.Decimal     `json:"totalCost"`
}

// WarningLevel grades a risk warning.
type WarningLevel string

const (
	WarningLevelInfo  WarningLevel = "info"
	WarningLevelWarn  WarningLevel = "warning"
	WarningLevelError WarningLevel = "error"
)

// RiskWarning is one itemized constraint violation.
type RiskWarning struct {
	Level   WarningLevel `json:"level"`
	Message string       `json:"message"`
}

// RiskReport is the result of evaluating a proposed trade.
type RiskReport struct {
	Passed          bool            `json:"passed"`
	Warnings        []RiskWarning   `json:"warnings"`
	TradeAmount     decimal.Decimal `json:"tradeAmount"`
	PortfolioValue  decimal.Decimal `json:"currentPortfolioValue"`
	ActivePositions int             `json:"activePositions"`
}

// DecisionStatus is the terminal status of one pipeline pass over a security.
type DecisionStatus string

const (
	DecisionExecuted    DecisionStatus = "executed"
	DecisionDryRun      DecisionStatus = "dry_run"
	DecisionSkipped     DecisionStatus = "skipped"
	DecisionRiskBlocked DecisionStatus = "risk_blocked"
	DecisionFailed      DecisionStatus = "failed"
)

// DecisionOutcome is one append-only audit record. Never mutated after creation.
type DecisionOutcome struct {
	ID               string          `json:"id"`
	Security         string          `json:"security,omitempty"`
	Status           DecisionStatus  `json:"status"`
	Reason           string          `json:"reason,omitempty"`
	SignalType       SignalType      `json:"signalType,omitempty"`
	SignalStrength   int             `json:"signalStrength,omitempty"`
	ActiveSignals    []SubSignal     `json:"activeSignals,omitempty"`
	OrderType        OrderType       `json:"orderType,omitempty"`
	OrderPrice       decimal.Decimal `json:"orderPrice,omitempty"`
	Quantity         int64           `json:"quantity,omitempty"`
	RiskPassed       bool            `json:"riskPassed"`
	RiskWarnings     []RiskWarning   `json:"riskWarnings,omitempty"`
	DryRun           bool            `json:"dryRun"`
	TransactionID    string          `json:"transactionId,omitempty"`
	BrokerageOrderID string          `json:"brokerageOrderId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// BacktestStatus tracks a run through its lifecycle.
type BacktestStatus string

const (
	BacktestPending   BacktestStatus = "pending"
	BacktestRunning   BacktestStatus = "running"
	BacktestCompleted BacktestStatus = "completed"
	BacktestFailed    BacktestStatus = "failed"
)

// BacktestTrade is one simulated trade in a run's ledger. PnL is set on
// closing (sell) trades only.
type BacktestTrade struct {
	Security string           `json:"security"`
	Side     OrderSide        `json:"side"`
	Quantity int64            `json:"quantity"`
	Price    decimal.Decimal  `json:"price"`
	Date     time.Time        `json:"date"`
	PnL      *decimal.Decimal `json:"pnl,omitempty"`
}

// EquityPoint is one snapshot on a backtest's equity curve.
type EquityPoint struct {
	Date           time.Time       `json:"date"`
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
	Cash           decimal.Decimal `json:"cash"`
}

// BacktestSummary holds performance metrics derived at run completion.
type BacktestSummary struct {
	TotalReturn        decimal.Decimal `json:"totalReturn"`
	TotalReturnPercent decimal.Decimal `json:"totalReturnPercent"`
	FinalValue         decimal.Decimal `json:"finalValue"`
	MaxDrawdown        decimal.Decimal `json:"maxDrawdown"`
	WinRate            decimal.Decimal `json:"winRate"`
	TotalTrades        int             `json:"totalTrades"`
	ProfitFactor       decimal.Decimal `json:"profitFactor"`
	SharpeRatio        decimal.Decimal `json:"sharpeRatio"`
}

// BacktestResult is the full output of one run.
type BacktestResult struct {
	Trades      []BacktestTrade  `json:"trades"`
	EquityCurve []EquityPoint    `json:"equityCurve"`
	Summary     *BacktestSummary `json:"summary,omitempty"`
}

// BacktestRun is one simulation request; immutable after completed/failed.
type BacktestRun struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	InitialCapital decimal.Decimal `json:"initialCapital"`
	Securities     []string        `json:"securities"`
	Status         BacktestStatus  `json:"status"`
	Result         *BacktestResult `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}
