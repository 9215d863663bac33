// Package monitoring buffers completed transactions and reports them to
// a remote monitoring service in batches.
//
// Entries are flushed on a fixed cadence, or immediately when a
// high-value transfer is recorded. A failed upload re-queues the same
// entries; nothing is dropped silently. Alerts raised by the service
// are kept in a bounded, timestamp-ordered local cache that serves
// reads during outages.
package monitoring

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a reported transaction.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
	KindTransfer Kind = "transfer"
)

// Entry is one reported transaction. Never mutated after creation; a
// failed upload re-queues the same value.
type Entry struct {
	ID        string    `json:"id"`
	TxID      string    `json:"txId"`
	Kind      Kind      `json:"kind"`
	Amount    string    `json:"amount"` // decimal string, asset-defined precision
	Asset     string    `json:"asset"`
	From      string    `json:"from"` // originator entity
	To        string    `json:"to"`   // destination/pool entity
	RiskScore *int      `json:"riskScore,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Severity orders alerts from informational to critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the severity's position in the info < critical ordering.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// AlertStatus is the local workflow state of an alert.
type AlertStatus string

const (
	StatusOpen          AlertStatus = "open"
	StatusAcknowledged  AlertStatus = "acknowledged"
	StatusResolved      AlertStatus = "resolved"
	StatusFalsePositive AlertStatus = "false_positive"
)

// ValidStatus reports whether s is a known alert status.
func ValidStatus(s AlertStatus) bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// Alert is raised by the monitoring service. The service is the source
// of truth for every field except Status, which is mutated locally only
// through UpdateAlertStatus.
type Alert struct {
	ID          string      `json:"id"`
	Severity    Severity    `json:"severity"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Entities    []string    `json:"entities,omitempty"`
	TxIDs       []string    `json:"txIds,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Status      AlertStatus `json:"status"`
}

// AlertFilter selects alerts by severity and status with pagination.
// Empty slices match everything.
type AlertFilter struct {
	Severities []Severity
	Statuses   []AlertStatus
	Limit      int
	Offset     int
}

// Match reports whether a passes the severity/status predicates.
func (f AlertFilter) Match(a *Alert) bool {
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, a.Severity) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	return true
}

func containsSeverity(xs []Severity, s Severity) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func containsStatus(xs []AlertStatus, s AlertStatus) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// HistoryRecord is one transaction from the service's address history.
type HistoryRecord struct {
	TxID      string    `json:"txId"`
	Kind      Kind      `json:"kind"`
	Amount    string    `json:"amount"`
	Asset     string    `json:"asset"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists uploaded batches for audit trail.
type Store interface {
	RecordUpload(ctx context.Context, uploadID string, entries []*Entry) error
	ListByEntity(ctx context.Context, entity string, limit int) ([]*Entry, error)
}

// AlertNotifier receives alerts as they are first ingested into the
// local cache (e.g. a realtime feed). Implementations must not block.
type AlertNotifier interface {
	NotifyAlert(alert *Alert)
}

// Thresholds maps asset symbol to the high-value amount at which a
// recorded entry triggers an immediate flush.
type Thresholds map[string]decimal.Decimal

// ParseThresholds converts a string table (asset -> decimal amount) to
// Thresholds, skipping unparseable amounts.
func ParseThresholds(raw map[string]string) Thresholds {
	t := make(Thresholds, len(raw))
	for asset, amount := range raw {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			continue
		}
		t[asset] = d
	}
	return t
}

// HighValue reports whether amount meets or exceeds the asset's
// threshold. Assets missing from the table default to the conservative
// side: every entry is treated as high-value.
func (t Thresholds) HighValue(asset, amount string) bool {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return false
	}
	threshold, ok := t[asset]
	if !ok {
		return true
	}
	return amt.GreaterThanOrEqual(threshold)
}
