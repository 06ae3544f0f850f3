// Package store provides the in-memory persistence layer. Every store is safe
// for concurrent use and hands out copies, never internal slices.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/pkg/types"
)

// PriceStore holds daily price bars per security, ascending by date.
type PriceStore struct {
	mu   sync.RWMutex
	bars map[string][]types.PriceBar
}

// NewPriceStore creates an empty price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{bars: make(map[string][]types.PriceBar)}
}

// UpsertBars merges bars into the series for a security. A bar with an
// existing date replaces the stored one; the series stays date-sorted.
func (s *PriceStore) UpsertBars(security string, bars []types.PriceBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDate := make(map[time.Time]types.PriceBar, len(s.bars[security])+len(bars))
	for _, b := range s.bars[security] {
		byDate[b.Date] = b
	}
	for _, b := range bars {
		byDate[b.Date] = b
	}
	merged := make([]types.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	s.bars[security] = merged
}

// Bars returns a copy of the full series for a security.
func (s *PriceStore) Bars(security string) []types.PriceBar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PriceBar, len(s.bars[security]))
	copy(out, s.bars[security])
	return out
}

// BarsBetween returns the bars inside [start, end], inclusive.
func (s *PriceStore) BarsBetween(security string, start, end time.Time) []types.PriceBar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.PriceBar
	for _, b := range s.bars[security] {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// LatestBar returns the most recent bar for a security.
func (s *PriceStore) LatestBar(security string) (types.PriceBar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.bars[security]
	if len(series) == 0 {
		return types.PriceBar{}, false
	}
	return series[len(series)-1], true
}

// LatestClose returns the most recent close for a security.
func (s *PriceStore) LatestClose(security string) (decimal.Decimal, bool) {
	bar, ok := s.LatestBar(security)
	if !ok {
		return decimal.Zero, false
	}
	return bar.Close, true
}

// Securities lists every security with at least one bar, sorted.
func (s *PriceStore) Securities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bars))
	for sec := range s.bars {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// SignalStore holds classified signal records per security, ascending by date.
// A record for an existing (security, date) pair supersedes the stored one.
type SignalStore struct {
	mu      sync.RWMutex
	records map[string][]types.SignalRecord
}

// NewSignalStore creates an empty signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{records: make(map[string][]types.SignalRecord)}
}

// Put stores a signal record, replacing any record with the same date.
func (s *SignalStore) Put(record types.SignalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.records[record.Security]
	for i, r := range series {
		if r.Date.Equal(record.Date) {
			series[i] = record
			return
		}
	}
	series = append(series, record)
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	s.records[record.Security] = series
}

// Latest returns the most recent signal record for a security.
func (s *SignalStore) Latest(security string) (types.SignalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.records[security]
	if len(series) == 0 {
		return types.SignalRecord{}, false
	}
	return series[len(series)-1], true
}

// Previous returns the most recent record strictly before the given date.
func (s *SignalStore) Previous(security string, before time.Time) (types.SignalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.records[security]
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Date.Before(before) {
			return series[i], true
		}
	}
	return types.SignalRecord{}, false
}

// History returns a copy of the full record series for a security.
func (s *SignalStore) History(security string) []types.SignalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SignalRecord, len(s.records[security]))
	copy(out, s.records[security])
	return out
}

// ConfigStore holds the mutable runtime configuration. Readers get copies of
// the latest committed values; nothing is cached across invocations.
type ConfigStore struct {
	mu        sync.RWMutex
	autoTrade types.AutoTradeConfig
	riskRules types.RiskRules
	signals   types.SignalSettings
	enabled   []string
}

// NewConfigStore creates a config store seeded with defaults.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		autoTrade: types.DefaultAutoTradeConfig(),
		riskRules: types.DefaultRiskRules(),
		signals:   types.DefaultSignalSettings(),
	}
}

// AutoTrade returns the current auto-trade configuration.
func (s *ConfigStore) AutoTrade() types.AutoTradeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoTrade
}

// RiskRules returns the current risk rules.
func (s *ConfigStore) RiskRules() types.RiskRules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.riskRules
}

// SignalSettings returns the current signal settings.
func (s *ConfigStore) SignalSettings() types.SignalSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signals
}

// EnabledSecurities returns the auto-trade allowlist.
func (s *ConfigStore) EnabledSecurities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.enabled))
	copy(out, s.enabled)
	return out
}

// SetEnabledSecurities replaces the auto-trade allowlist.
func (s *ConfigStore) SetEnabledSecurities(securities []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = append([]string(nil), securities...)
}

// MergeAutoTrade applies the known keys of a patch onto the stored
// configuration and returns the result. Unknown keys are ignored.
func (s *ConfigStore) MergeAutoTrade(patch map[string]any) types.AutoTradeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range patch {
		switch key {
		case "enabled":
			if v, ok := value.(bool); ok {
				s.autoTrade.Enabled = v
			}
		case "minSignalStrength":
			if v, ok := toInt(value); ok {
				s.autoTrade.MinSignalStrength = v
			}
		case "maxTradesPerDay":
			if v, ok := toInt(value); ok {
				s.autoTrade.MaxTradesPerDay = v
			}
		case "orderType":
			if v, ok := value.(string); ok {
				s.autoTrade.OrderType = types.OrderType(v)
			}
		case "dryRun":
			if v, ok := value.(bool); ok {
				s.autoTrade.DryRun = v
			}
		}
	}
	return s.autoTrade
}

// MergeRiskRules applies the known keys of a patch onto the stored rules and
// returns the result. Unknown keys are ignored.
func (s *ConfigStore) MergeRiskRules(patch map[string]any) types.RiskRules {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range patch {
		switch key {
		case "maxPositionPercent":
			if v, ok := toDecimal(value); ok {
				s.riskRules.MaxPositionPercent = v
			}
		case "maxLossPerTrade":
			if v, ok := toDecimal(value); ok {
				s.riskRules.MaxLossPerTrade = v
			}
		case "maxPortfolioLoss":
			if v, ok := toDecimal(value); ok {
				s.riskRules.MaxPortfolioLoss = v
			}
		case "maxOpenPositions":
			if v, ok := toInt(value); ok {
				s.riskRules.MaxOpenPositions = v
			}
		}
	}
	return s.riskRules
}

// MergeSignalSettings applies the known keys of a patch onto the stored
// settings and returns the result. Unknown keys are ignored.
func (s *ConfigStore) MergeSignalSettings(patch map[string]any) types.SignalSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range patch {
		switch key {
		case "rsiBuyThreshold":
			if v, ok := toFloat(value); ok {
				s.signals.RSIBuyThreshold = v
			}
		case "rsiSellThreshold":
			if v, ok := toFloat(value); ok {
				s.signals.RSISellThreshold = v
			}
		case "investmentBudget":
			if v, ok := toDecimal(value); ok {
				s.signals.InvestmentBudget = v
			}
		}
	}
	return s.signals
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	return int(f), ok
}

func toDecimal(v any) (decimal.Decimal, bool) {
	f, ok := toFloat(v)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// LockStore implements the check-and-insert invocation lock.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewLockStore creates an empty lock store.
func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[string]time.Time)}
}

// Acquire inserts a lock under key if none exists and reports whether the
// caller won it. The check and the insert are one atomic step.
func (s *LockStore) Acquire(key string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[key]; held {
		return false, nil
	}
	s.locks[key] = at
	return true, nil
}

// PurgeBefore removes locks acquired before the cutoff.
func (s *LockStore) PurgeBefore(cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, at := range s.locks {
		if at.Before(cutoff) {
			delete(s.locks, key)
		}
	}
	return nil
}

// AuditLog is the append-only sink for decision outcomes.
type AuditLog struct {
	mu       sync.RWMutex
	outcomes []types.DecisionOutcome
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append records one terminal outcome.
func (l *AuditLog) Append(outcome types.DecisionOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcome)
}

// Recent returns up to limit outcomes, newest first.
func (l *AuditLog) Recent(limit int) []types.DecisionOutcome {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.outcomes)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.DecisionOutcome, 0, n)
	for i := len(l.outcomes) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.outcomes[i])
	}
	return out
}

// CountTradesOn counts executed outcomes on one calendar day. Only real
// executions consume daily trade capacity; dry runs hold a slot within a
// single invocation and then release it.
func (l *AuditLog) CountTradesOn(day time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	y, m, d := day.Date()
	count := 0
	for _, o := range l.outcomes {
		if o.Status != types.DecisionExecuted {
			continue
		}
		oy, om, od := o.CreatedAt.Date()
		if oy == y && om == m && od == d {
			count++
		}
	}
	return count
}

// Ledger is the append-only transaction record.
type Ledger struct {
	mu           sync.RWMutex
	transactions []types.Transaction
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records one executed transaction.
func (l *Ledger) Append(tx types.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions = append(l.transactions, tx)
}

// All returns a copy of the full ledger in insertion order.
func (l *Ledger) All() []types.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// BacktestStore holds backtest runs by ID.
type BacktestStore struct {
	mu   sync.RWMutex
	runs map[string]types.BacktestRun
	ids  []string
}

// NewBacktestStore creates an empty backtest store.
func NewBacktestStore() *BacktestStore {
	return &BacktestStore{runs: make(map[string]types.BacktestRun)}
}

// Put inserts or replaces a run.
func (s *BacktestStore) Put(run types.BacktestRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.ids = append(s.ids, run.ID)
	}
	s.runs[run.ID] = run
}

// Get returns the run with the given ID.
func (s *BacktestStore) Get(id string) (types.BacktestRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// List returns all runs, newest first.
func (s *BacktestStore) List() []types.BacktestRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.BacktestRun, 0, len(s.ids))
	for i := len(s.ids) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.ids[i]])
	}
	return out
}

// Delete removes a run.
func (s *BacktestStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	return true
}
