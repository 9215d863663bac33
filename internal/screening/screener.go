package screening

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veilpool/compliance/internal/logging"
	"github.com/veilpool/compliance/internal/metrics"
)

// Checks holds per-category enable flags.
type Checks struct {
	Sanctions  bool
	Laundering bool
	Fraud      bool
}

// Config configures a Screener. Immutable after NewScreener.
type Config struct {
	BaseURL       string
	APIKey        string
	MaxRiskScore  int // scores above this fail CheckCompliance
	Checks        Checks
	CacheEnabled  bool
	CacheDuration time.Duration
	OnHighRisk    HighRiskFunc // optional
	Logger        *slog.Logger // optional
	Store         Store        // optional audit trail
}

// inflight is the shared handle for one outstanding upstream call.
// The result is written exactly once, then done is closed.
type inflight struct {
	done   chan struct{}
	result *RiskAssessment
}

// Screener wraps the scoring service with a TTL cache and in-flight
// request coalescing. Safe for concurrent use.
type Screener struct {
	cfg    Config
	client *Client
	logger *slog.Logger
	store  Store

	mu      sync.Mutex
	cache   map[string]*RiskAssessment
	pending map[string]*inflight

	nowFn func() time.Time
}

// NewScreener creates a screener. BaseURL and APIKey are required.
func NewScreener(cfg Config) (*Screener, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("screening: API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("screening: base URL is required")
	}
	if cfg.MaxRiskScore <= 0 {
		cfg.MaxRiskScore = 75
	}
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Screener{
		cfg:     cfg,
		client:  NewClient(cfg.BaseURL, cfg.APIKey),
		logger:  logger,
		store:   cfg.Store,
		cache:   make(map[string]*RiskAssessment),
		pending: make(map[string]*inflight),
		nowFn:   time.Now,
	}, nil
}

// Assess scores an entity. It never returns an error for a remote
// failure: callers receive the fail-closed fallback assessment instead.
//
// Lookup order: TTL cache, then the in-flight table (coalescing), then
// one upstream call whose result every concurrent caller shares.
func (s *Screener) Assess(ctx context.Context, entity string) *RiskAssessment {
	s.mu.Lock()

	if a, ok := s.cache[entity]; ok {
		if s.nowFn().Sub(a.AssessedAt) < s.cfg.CacheDuration {
			s.mu.Unlock()
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return a
		}
		// Expired entries are treated as absent.
		delete(s.cache, entity)
	}

	if f, ok := s.pending[entity]; ok {
		s.mu.Unlock()
		metrics.CacheLookupsTotal.WithLabelValues("coalesced").Inc()
		return s.await(ctx, entity, f)
	}

	f := &inflight{done: make(chan struct{})}
	s.pending[entity] = f
	s.mu.Unlock()
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	return s.fetch(ctx, entity, f)
}

// await blocks until the in-flight call owned by another caller
// completes. Cancellation fails closed with a fallback assessment.
func (s *Screener) await(ctx context.Context, entity string, f *inflight) *RiskAssessment {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		s.logger.Warn("risk assessment wait cancelled", "entity", entity, "error", ctx.Err())
		return fallbackAssessment(entity, s.nowFn())
	}
}

// fetch issues the single upstream call for entity and publishes the
// result to all waiters. The in-flight slot is cleared exactly once,
// on success or failure.
func (s *Screener) fetch(ctx context.Context, entity string, f *inflight) *RiskAssessment {
	assessment, err := s.client.Score(ctx, entity)

	s.mu.Lock()
	if err != nil {
		assessment = fallbackAssessment(entity, s.nowFn())
		// Not cached: the next call should retry the service rather
		// than freeze a degraded verdict.
	} else if s.cfg.CacheEnabled {
		s.cache[entity] = assessment
	}
	delete(s.pending, entity)
	f.result = assessment
	close(f.done)
	s.mu.Unlock()

	if err != nil {
		metrics.RiskChecksTotal.WithLabelValues("fallback").Inc()
		s.logger.Warn("risk assessment failed, using fallback", "entity", entity, "error", err)
	} else if s.store != nil {
		// Best-effort audit trail.
		go func(a *RiskAssessment) {
			if err := s.store.Record(context.Background(), a); err != nil {
				s.logger.Warn("failed to record assessment", "entity", a.Entity, "error", err)
			}
		}(assessment)
	}

	if err == nil && assessment.Score > s.cfg.MaxRiskScore && s.cfg.OnHighRisk != nil {
		s.invokeHighRisk(ctx, assessment)
	}

	return assessment
}

// invokeHighRisk runs the configured callback, awaited before Assess
// returns. Panics and errors are isolated to the logging side-channel.
func (s *Screener) invokeHighRisk(ctx context.Context, a *RiskAssessment) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in high-risk callback", "entity", a.Entity, "panic", fmt.Sprint(r))
		}
	}()

	reason := ""
	if a.DominantFactor != nil {
		reason = a.DominantFactor.Reason
	}
	if err := s.cfg.OnHighRisk(ctx, a.Entity, a.Score, reason); err != nil {
		s.logger.Warn("high-risk callback failed", "entity", a.Entity, "error", err)
	}
}

// CheckCompliance assesses an entity and gates it against the
// configured maximum score.
func (s *Screener) CheckCompliance(ctx context.Context, entity string) CheckResult {
	a := s.Assess(ctx, entity)

	if a.Score <= s.cfg.MaxRiskScore {
		metrics.RiskChecksTotal.WithLabelValues("passed").Inc()
		return CheckResult{Passed: true, Score: a.Score}
	}

	metrics.RiskChecksTotal.WithLabelValues("failed").Inc()
	reason := "risk score exceeds allowed maximum"
	if a.DominantFactor != nil && a.DominantFactor.Reason != "" {
		reason = a.DominantFactor.Reason
	}
	return CheckResult{Passed: false, Reason: reason, Score: a.Score}
}

// IsSanctioned reports whether an entity's sanctions sub-score exceeds
// the sanctions threshold. Short-circuits to false when sanctions
// checks are disabled.
func (s *Screener) IsSanctioned(ctx context.Context, entity string) bool {
	if !s.cfg.Checks.Sanctions {
		return false
	}
	a := s.Assess(ctx, entity)
	return a.Categories.Sanctions > 80
}

// RiskFactors returns the full contributing-factor list for an entity.
// Unlike Assess this surfaces remote errors, because there is no
// conservative fallback for a factor listing.
func (s *Screener) RiskFactors(ctx context.Context, entity string) ([]RiskFactor, error) {
	return s.client.RiskFactors(ctx, entity)
}

// ClearCache drops all cached assessments. In-flight requests are
// unaffected.
func (s *Screener) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]*RiskAssessment)
	s.mu.Unlock()
}

// CacheSize returns the number of cached assessments, expired or not.
func (s *Screener) CacheSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}
