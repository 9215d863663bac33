// Package screening scores entities (accounts/addresses) for regulatory
// risk against a remote scoring service.
//
// Results are cached with a TTL, and concurrent lookups for the same
// entity are coalesced into a single upstream call. When the remote
// service is unreachable the screener fails closed: callers receive a
// conservative high-risk assessment instead of an error.
package screening

import (
	"context"
	"time"
)

// Risk categories reported by the scoring service.
const (
	CategoryLaundering = "laundering"
	CategorySanctions  = "sanctions"
	CategoryFraud      = "fraud"
	CategoryHighRisk   = "high_risk"
)

// Fallback assessment returned when the scoring service is unreachable.
const (
	FallbackScore  = 85
	FallbackTag    = "api_error"
	FallbackReason = "unable to assess risk"
)

// Categories holds the fixed set of per-category sub-scores (0-100 each).
type Categories struct {
	Laundering int `json:"laundering"`
	Sanctions  int `json:"sanctions"`
	Fraud      int `json:"fraud"`
	HighRisk   int `json:"highRisk"`
}

// EntityInfo carries metadata the scoring service knows about an entity.
type EntityInfo struct {
	FirstSeen time.Time `json:"firstSeen"`
	Cluster   string    `json:"cluster,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// RiskFactor is one contributing factor to an entity's overall score.
type RiskFactor struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
	Reason   string `json:"reason"`
}

// ActivityStats summarizes an entity's observed on-chain activity.
type ActivityStats struct {
	TransactionCount int    `json:"transactionCount"`
	TotalVolume      string `json:"totalVolume"`
	Counterparties   int    `json:"counterparties"`
	Assets           int    `json:"assets"`
}

// RiskAssessment is the result of scoring one entity. Immutable once
// constructed; a fresh assessment supersedes it, never mutates it.
type RiskAssessment struct {
	Entity         string         `json:"entity"`
	Score          int            `json:"score"` // 0-100, higher = riskier
	Categories     Categories     `json:"categories"`
	EntityInfo     EntityInfo     `json:"entityInfo"`
	DominantFactor *RiskFactor    `json:"dominantFactor,omitempty"`
	ActivityStats  *ActivityStats `json:"activityStats,omitempty"`
	AssessedAt     time.Time      `json:"assessedAt"`
}

// HasTag reports whether the assessment carries the given entity tag.
func (a *RiskAssessment) HasTag(tag string) bool {
	for _, t := range a.EntityInfo.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CheckResult is the outcome of a compliance check for one entity.
type CheckResult struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
	Score  int    `json:"score"`
}

// HighRiskFunc is invoked when an assessment exceeds the configured
// threshold. Errors are logged, never propagated to the assessment path.
type HighRiskFunc func(ctx context.Context, entity string, score int, reason string) error

// Store persists completed assessments for audit trail.
type Store interface {
	Record(ctx context.Context, assessment *RiskAssessment) error
	ListByEntity(ctx context.Context, entity string, limit int) ([]*RiskAssessment, error)
}

// fallbackAssessment builds the fail-closed assessment for an entity.
// Deliberately never cached so the next call retries the service.
func fallbackAssessment(entity string, now time.Time) *RiskAssessment {
	return &RiskAssessment{
		Entity: entity,
		Score:  FallbackScore,
		Categories: Categories{
			HighRisk: FallbackScore,
		},
		EntityInfo: EntityInfo{
			Tags: []string{FallbackTag},
		},
		DominantFactor: &RiskFactor{
			Category: CategoryHighRisk,
			Score:    FallbackScore,
			Reason:   FallbackReason,
		},
		AssessedAt: now,
	}
}
