package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/veilpool/compliance/internal/metrics"
	"github.com/veilpool/compliance/internal/traces"
)

// APIError is a non-2xx response from the monitoring service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("monitoring service returned %d: %s", e.Status, e.Body)
}

// Client calls the remote transaction-monitoring service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a monitoring service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UploadResult is the monitoring service's response to a batch submit.
type UploadResult struct {
	UploadID string   `json:"uploadId"`
	Alerts   []*Alert `json:"alerts,omitempty"`
}

// SubmitBatch uploads a batch of entries and returns the upload id plus
// any alerts the service raised.
func (c *Client) SubmitBatch(ctx context.Context, entries []*Entry) (*UploadResult, error) {
	ctx, span := traces.StartSpan(ctx, "monitoring.submit_batch", traces.BatchSize(len(entries)))
	defer span.End()

	var resp struct {
		UploadID string   `json:"upload_id"`
		Alerts   []*Alert `json:"alerts"`
	}
	body := map[string]any{"transactions": entries}
	if err := c.do(ctx, http.MethodPost, "batch_submit", "/v1/transactions/batch", body, &resp); err != nil {
		return nil, err
	}
	return &UploadResult{UploadID: resp.UploadID, Alerts: resp.Alerts}, nil
}

// QueryAlerts fetches alerts matching the filter from the service.
func (c *Client) QueryAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error) {
	ctx, span := traces.StartSpan(ctx, "monitoring.query_alerts")
	defer span.End()

	q := url.Values{}
	if len(filter.Severities) > 0 {
		parts := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			parts[i] = string(s)
		}
		q.Set("severity", strings.Join(parts, ","))
	}
	if len(filter.Statuses) > 0 {
		parts := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	path := "/v1/alerts"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp struct {
		Alerts []*Alert `json:"alerts"`
	}
	if err := c.do(ctx, http.MethodGet, "alerts_query", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

// UpdateAlertStatus asks the service to change an alert's status.
func (c *Client) UpdateAlertStatus(ctx context.Context, id string, status AlertStatus, notes string) error {
	ctx, span := traces.StartSpan(ctx, "monitoring.update_alert_status")
	defer span.End()

	body := map[string]any{"status": status}
	if notes != "" {
		body["notes"] = notes
	}
	return c.do(ctx, http.MethodPost, "alert_status", "/v1/alerts/"+url.PathEscape(id)+"/status", body, nil)
}

// History fetches the service's transaction history for an address.
func (c *Client) History(ctx context.Context, address string, limit int) ([]*HistoryRecord, error) {
	ctx, span := traces.StartSpan(ctx, "monitoring.history", traces.Entity(address))
	defer span.End()

	path := "/v1/addresses/" + url.PathEscape(address) + "/transactions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp struct {
		Transactions []*HistoryRecord `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "address_history", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteCall(endpoint, "transport_error", time.Since(start))
		return fmt.Errorf("monitoring service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ObserveRemoteCall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
