package monitoring

import (
	"context"
	"sort"

	"github.com/veilpool/compliance/internal/metrics"
)

// maxAlerts bounds the local alert cache: the 100 most recent by
// timestamp, sorted descending.
const maxAlerts = 100

// mergeAlertsLocked merges incoming alerts into the cache: replace in
// place when the id is known (the service is authoritative for
// content), insert otherwise. Returns the newly inserted alerts.
// Caller holds q.mu.
func (q *Queue) mergeAlertsLocked(incoming []*Alert) []*Alert {
	var fresh []*Alert
	for _, a := range incoming {
		if a == nil || a.ID == "" {
			continue
		}
		if a.Status == "" {
			a.Status = StatusOpen
		}
		replaced := false
		for i, existing := range q.alerts {
			if existing.ID == a.ID {
				q.alerts[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			q.alerts = append(q.alerts, a)
			fresh = append(fresh, a)
			metrics.AlertsIngestedTotal.WithLabelValues(string(a.Severity)).Inc()
		}
	}

	sort.SliceStable(q.alerts, func(i, j int) bool {
		return q.alerts[i].Timestamp.After(q.alerts[j].Timestamp)
	})
	if len(q.alerts) > maxAlerts {
		q.alerts = q.alerts[:maxAlerts]
	}
	return fresh
}

// GetAlerts returns alerts matching the filter. It asks the service
// first and merges the response into the local cache; on failure it
// serves the (possibly stale) cache with the same filter semantics, so
// callers observe a seamless result during an outage.
func (q *Queue) GetAlerts(ctx context.Context, filter AlertFilter) []*Alert {
	remote, err := q.client.QueryAlerts(ctx, filter)
	if err == nil {
		var fresh []*Alert
		q.mu.Lock()
		fresh = q.mergeAlertsLocked(remote)
		q.mu.Unlock()
		q.notify(fresh)
		return remote
	}

	q.logger.Warn("alert query failed, serving local cache", "error", err)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var matched []*Alert
	for _, a := range q.alerts { // already sorted descending
		if filter.Match(a) {
			matched = append(matched, a)
		}
	}
	if filter.Offset >= len(matched) {
		return nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*Alert, len(matched))
	copy(out, matched)
	return out
}

// UpdateAlertStatus asks the service to change an alert's status and,
// on success, updates only the status field of the cached copy. Returns
// false on any remote failure, leaving local state untouched.
func (q *Queue) UpdateAlertStatus(ctx context.Context, id string, status AlertStatus, notes string) bool {
	if !ValidStatus(status) {
		q.logger.Warn("rejecting unknown alert status", "alertId", id, "status", status)
		return false
	}
	if err := q.client.UpdateAlertStatus(ctx, id, status, notes); err != nil {
		q.logger.Warn("alert status update failed", "alertId", id, "error", err)
		return false
	}

	q.mu.Lock()
	for _, a := range q.alerts {
		if a.ID == id {
			a.Status = status
			break
		}
	}
	q.mu.Unlock()
	return true
}

// Alerts returns a snapshot of the local alert cache, most recent first.
func (q *Queue) Alerts() []*Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Alert, len(q.alerts))
	copy(out, q.alerts)
	return out
}
