package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/veilpool/compliance/internal/metrics"
	"github.com/veilpool/compliance/internal/traces"
)

// APIError is a non-2xx response from the scoring service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scoring service returned %d: %s", e.Status, e.Body)
}

// Client calls the remote risk-scoring service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a scoring service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// scoreResponse is the wire shape of the query-by-entity endpoint.
type scoreResponse struct {
	Score      int `json:"score"`
	Categories struct {
		Laundering int `json:"laundering"`
		Sanctions  int `json:"sanctions"`
		Fraud      int `json:"fraud"`
		HighRisk   int `json:"high_risk"`
	} `json:"categories"`
	Entity struct {
		FirstSeen time.Time `json:"first_seen"`
		Cluster   string    `json:"cluster"`
		Tags      []string  `json:"tags"`
	} `json:"entity"`
	Factors  []riskFactorWire `json:"factors"`
	Activity *struct {
		TransactionCount int    `json:"transaction_count"`
		TotalVolume      string `json:"total_volume"`
		Counterparties   int    `json:"counterparties"`
		Assets           int    `json:"assets"`
	} `json:"activity"`
}

type riskFactorWire struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
	Reason   string `json:"reason"`
}

// Score queries the scoring service for one entity.
func (c *Client) Score(ctx context.Context, entity string) (*RiskAssessment, error) {
	ctx, span := traces.StartSpan(ctx, "screening.score", traces.Entity(entity))
	defer span.End()

	var resp scoreResponse
	if err := c.get(ctx, "entity_score", "/v1/entities/"+url.PathEscape(entity)+"/score", &resp); err != nil {
		return nil, err
	}

	a := &RiskAssessment{
		Entity: entity,
		Score:  resp.Score,
		Categories: Categories{
			Laundering: resp.Categories.Laundering,
			Sanctions:  resp.Categories.Sanctions,
			Fraud:      resp.Categories.Fraud,
			HighRisk:   resp.Categories.HighRisk,
		},
		EntityInfo: EntityInfo{
			FirstSeen: resp.Entity.FirstSeen,
			Cluster:   resp.Entity.Cluster,
			Tags:      resp.Entity.Tags,
		},
		AssessedAt: time.Now(),
	}

	if len(resp.Factors) > 0 {
		// The service ranks factors, but don't trust ordering on the wire.
		sorted := make([]riskFactorWire, len(resp.Factors))
		copy(sorted, resp.Factors)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
		a.DominantFactor = &RiskFactor{
			Category: sorted[0].Category,
			Score:    sorted[0].Score,
			Reason:   sorted[0].Reason,
		}
	}

	if resp.Activity != nil {
		a.ActivityStats = &ActivityStats{
			TransactionCount: resp.Activity.TransactionCount,
			TotalVolume:      resp.Activity.TotalVolume,
			Counterparties:   resp.Activity.Counterparties,
			Assets:           resp.Activity.Assets,
		}
	}

	return a, nil
}

// RiskFactors queries the full factor list for one entity.
func (c *Client) RiskFactors(ctx context.Context, entity string) ([]RiskFactor, error) {
	ctx, span := traces.StartSpan(ctx, "screening.risk_factors", traces.Entity(entity))
	defer span.End()

	var resp struct {
		Factors []riskFactorWire `json:"factors"`
	}
	if err := c.get(ctx, "entity_factors", "/v1/entities/"+url.PathEscape(entity)+"/factors", &resp); err != nil {
		return nil, err
	}

	factors := make([]RiskFactor, 0, len(resp.Factors))
	for _, f := range resp.Factors {
		factors = append(factors, RiskFactor{Category: f.Category, Score: f.Score, Reason: f.Reason})
	}
	return factors, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteCall(endpoint, "transport_error", time.Since(start))
		return fmt.Errorf("scoring service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ObserveRemoteCall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
