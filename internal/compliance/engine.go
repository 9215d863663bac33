// Package compliance is the facade the rest of the wallet talks to.
//
// An Engine owns one screening.Screener and one monitoring.Queue and
// presents the two halves as a single surface: screen an address before
// a transfer, record the transfer afterwards, read the alerts either
// side produced. Construction fails fast on incomplete credentials;
// after that every operation degrades instead of erroring where the
// caller cannot act on the failure.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilpool/compliance/internal/config"
	"github.com/veilpool/compliance/internal/health"
	"github.com/veilpool/compliance/internal/idgen"
	"github.com/veilpool/compliance/internal/monitoring"
	"github.com/veilpool/compliance/internal/screening"
)

var (
	ErrMissingEntity = errors.New("entity address is required")
	ErrInvalidAmount = errors.New("amount must be a positive decimal string")
	ErrInvalidKind   = errors.New("unknown transaction kind")
)

// Options carries the optional collaborators an Engine can be wired
// with. Everything here may be nil.
type Options struct {
	Logger          *slog.Logger
	ScreeningStore  screening.Store
	MonitoringStore monitoring.Store
	Notifier        monitoring.AlertNotifier
}

// Engine composes entity screening and transaction monitoring behind
// one API. Safe for concurrent use.
type Engine struct {
	screener    *screening.Screener
	queue       *monitoring.Queue
	logger      *slog.Logger
	flushHealth *health.Signal
}

// NewEngine builds an Engine from service configuration. It returns an
// error when the compliance provider credentials are missing; every
// other collaborator is optional.
func NewEngine(cfg *config.Config, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	flushHealth := health.NewSignal()

	screener, err := screening.NewScreener(screening.Config{
		BaseURL:      cfg.APIBaseURL,
		APIKey:       cfg.APIKey,
		MaxRiskScore: cfg.MaxRiskScore,
		Checks: screening.Checks{
			Sanctions:  cfg.SanctionsCheck,
			Laundering: cfg.LaunderingCheck,
			Fraud:      cfg.FraudCheck,
		},
		CacheEnabled:  cfg.CacheEnabled,
		CacheDuration: cfg.CacheDuration,
		OnHighRisk: func(ctx context.Context, entity string, score int, reason string) error {
			logger.Warn("high risk entity flagged",
				"entity", entity,
				"score", score,
				"reason", reason)
			return nil
		},
		Logger: logger.With("component", "screening"),
		Store:  opts.ScreeningStore,
	})
	if err != nil {
		return nil, fmt.Errorf("screening: %w", err)
	}

	queue, err := monitoring.NewQueue(monitoring.Config{
		BaseURL:    cfg.APIBaseURL,
		APIKey:     cfg.APIKey,
		FlushDelay: cfg.FlushDelay,
		Thresholds: monitoring.ParseThresholds(cfg.HighValueThresholds),
		Logger:     logger.With("component", "monitoring"),
		Store:      opts.MonitoringStore,
		Notifier:   opts.Notifier,
		Health:     flushHealth,
	})
	if err != nil {
		return nil, fmt.Errorf("monitoring: %w", err)
	}

	return &Engine{
		screener:    screener,
		queue:       queue,
		logger:      logger,
		flushHealth: flushHealth,
	}, nil
}

// CheckEntity screens an address against the configured risk policy.
// It never returns an error: when the provider is unreachable the
// screener fails closed and the result reports the entity as blocked.
func (e *Engine) CheckEntity(ctx context.Context, entity string) screening.CheckResult {
	return e.screener.CheckCompliance(ctx, entity)
}

// AssessEntity returns the full risk assessment for an address,
// served from cache when fresh.
func (e *Engine) AssessEntity(ctx context.Context, entity string) *screening.RiskAssessment {
	return e.screener.Assess(ctx, entity)
}

// IsSanctioned reports whether an address trips the sanctions
// category. False when sanctions checks are disabled.
func (e *Engine) IsSanctioned(ctx context.Context, entity string) bool {
	return e.screener.IsSanctioned(ctx, entity)
}

// RiskFactors returns the per-category findings for an address.
func (e *Engine) RiskFactors(ctx context.Context, entity string) ([]screening.RiskFactor, error) {
	return e.screener.RiskFactors(ctx, entity)
}

// TransactionInput is a transfer to be recorded for monitoring.
type TransactionInput struct {
	TxID   string          `json:"txId"`
	Kind   monitoring.Kind `json:"kind"`
	Amount string          `json:"amount"`
	Asset  string          `json:"asset"`
	From   string          `json:"from"`
	To     string          `json:"to"`

	// Screen requests a risk assessment of the counterparty before
	// recording; the resulting score is attached to the entry.
	Screen bool `json:"screen"`
}

func (in *TransactionInput) validate() error {
	switch in.Kind {
	case monitoring.KindDeposit, monitoring.KindWithdraw, monitoring.KindTransfer:
	default:
		return ErrInvalidKind
	}
	amt, err := decimal.NewFromString(in.Amount)
	if err != nil || amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(in.From) == "" && strings.TrimSpace(in.To) == "" {
		return ErrMissingEntity
	}
	return nil
}

// counterparty is the address worth screening for this transfer: the
// destination for outbound kinds, the source for deposits.
func (in *TransactionInput) counterparty() string {
	if in.Kind == monitoring.KindDeposit {
		return in.From
	}
	return in.To
}

// RecordTransaction validates and enqueues a transfer for monitoring.
// When input.Screen is set the counterparty is assessed first and the
// score travels with the entry. Recording itself cannot fail; only
// validation errors are returned.
func (e *Engine) RecordTransaction(ctx context.Context, in TransactionInput) (*monitoring.Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	entry := &monitoring.Entry{
		ID:        idgen.WithPrefix("txn_"),
		TxID:      in.TxID,
		Kind:      in.Kind,
		Amount:    in.Amount,
		Asset:     strings.ToUpper(in.Asset),
		From:      in.From,
		To:        in.To,
		Timestamp: time.Now().UTC(),
	}

	if in.Screen {
		if cp := in.counterparty(); cp != "" {
			assessment := e.screener.Assess(ctx, cp)
			score := assessment.Score
			entry.RiskScore = &score
		}
	}

	e.queue.Record(entry)
	return entry, nil
}

// Alerts returns alerts matching the filter, falling back to the local
// cache during a provider outage.
func (e *Engine) Alerts(ctx context.Context, filter monitoring.AlertFilter) []*monitoring.Alert {
	return e.queue.GetAlerts(ctx, filter)
}

// UpdateAlertStatus transitions an alert's workflow status. Returns
// false when the status is invalid or the provider rejects the update.
func (e *Engine) UpdateAlertStatus(ctx context.Context, id string, status monitoring.AlertStatus, notes string) bool {
	return e.queue.UpdateAlertStatus(ctx, id, status, notes)
}

// History returns the provider's recorded transactions for an address.
func (e *Engine) History(ctx context.Context, address string, limit int) ([]*monitoring.HistoryRecord, error) {
	return e.queue.History(ctx, address, limit)
}

// Flush forces an immediate upload of the pending monitoring buffer.
func (e *Engine) Flush(ctx context.Context) error {
	return e.queue.Flush(ctx)
}

// ClearScreeningCache drops all cached assessments.
func (e *Engine) ClearScreeningCache() {
	e.screener.ClearCache()
}

// PendingTransactions reports the monitoring buffer depth.
func (e *Engine) PendingTransactions() int {
	return e.queue.PendingCount()
}

// CachedAssessments reports the screening cache size.
func (e *Engine) CachedAssessments() int {
	return e.screener.CacheSize()
}

// RegisterHealth adds the engine's subsystem checkers to the service
// health registry.
func (e *Engine) RegisterHealth(r *health.Registry) {
	r.Register("monitoring_flush", e.flushHealth.Checker("monitoring_flush"))
	r.Register("monitoring_buffer", func(ctx context.Context) health.Status {
		st := health.Status{Name: "monitoring_buffer", Healthy: true}
		if n := e.queue.PendingCount(); n > 1000 {
			st.Healthy = false
			st.Detail = fmt.Sprintf("%d entries pending upload", n)
		}
		return st
	})
}

// Close flushes whatever is still buffered. Failures are logged and
// returned; the entries stay queued for a process that never comes, so
// callers treat the error as advisory.
func (e *Engine) Close(ctx context.Context) error {
	if e.queue.PendingCount() == 0 {
		return nil
	}
	if err := e.queue.Flush(ctx); err != nil {
		e.logger.Error("final flush failed, buffered entries lost", "error", err, "pending", e.queue.PendingCount())
		return err
	}
	return nil
}
