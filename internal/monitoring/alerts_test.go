package monitoring

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertAt(id string, sev Severity, ts time.Time) *Alert {
	return &Alert{
		ID:        id,
		Severity:  sev,
		Title:     "t-" + id,
		Timestamp: ts,
		Status:    StatusOpen,
	}
}

func TestMergeAlerts_ReplacesById(t *testing.T) {
	f := newFakeMonitoringService(t)
	q := newTestQueue(t, f, nil)

	now := time.Now()
	q.mu.Lock()
	q.mergeAlertsLocked([]*Alert{alertAt("al-1", SeverityLow, now)})
	q.mergeAlertsLocked([]*Alert{{ID: "al-1", Severity: SeverityCritical, Title: "escalated", Timestamp: now, Status: StatusOpen}})
	q.mu.Unlock()

	alerts := q.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity, "service content replaces cached content")
	assert.Equal(t, "escalated", alerts[0].Title)
}

func TestMergeAlerts_BoundedAndSorted(t *testing.T) {
	f := newFakeMonitoringService(t)
	q := newTestQueue(t, f, nil)

	base := time.Now()
	var incoming []*Alert
	for i := 0; i < 150; i++ {
		incoming = append(incoming, alertAt(fmt.Sprintf("al-%03d", i), SeverityInfo, base.Add(time.Duration(i)*time.Second)))
	}

	q.mu.Lock()
	q.mergeAlertsLocked(incoming)
	q.mu.Unlock()

	alerts := q.Alerts()
	require.Len(t, alerts, maxAlerts, "cache never exceeds its bound")
	for i := 1; i < len(alerts); i++ {
		assert.False(t, alerts[i].Timestamp.After(alerts[i-1].Timestamp), "descending by timestamp")
	}
	// The most recent 100 survive: al-050 .. al-149.
	assert.Equal(t, "al-149", alerts[0].ID)
	assert.Equal(t, "al-050", alerts[len(alerts)-1].ID)
}

func TestMergeAlerts_SkipsEmptyIDs(t *testing.T) {
	f := newFakeMonitoringService(t)
	q := newTestQueue(t, f, nil)

	q.mu.Lock()
	fresh := q.mergeAlertsLocked([]*Alert{{ID: "", Severity: SeverityHigh, Timestamp: time.Now()}, nil})
	q.mu.Unlock()

	assert.Empty(t, fresh)
	assert.Empty(t, q.Alerts())
}

func TestGetAlerts_ServerFirst(t *testing.T) {
	f := newFakeMonitoringService(t)
	f.queryAlerts = []*Alert{
		alertAt("al-1", SeverityHigh, time.Now()),
		alertAt("al-2", SeverityLow, time.Now().Add(-time.Minute)),
	}
	q := newTestQueue(t, f, nil)

	got := q.GetAlerts(context.Background(), AlertFilter{})
	require.Len(t, got, 2)
	assert.Len(t, q.Alerts(), 2, "server response merged into local cache")
}

func TestGetAlerts_FallsBackToCacheOnOutage(t *testing.T) {
	f := newFakeMonitoringService(t)
	f.queryAlerts = []*Alert{
		alertAt("al-1", SeverityHigh, time.Now()),
		alertAt("al-2", SeverityLow, time.Now().Add(-time.Minute)),
		alertAt("al-3", SeverityHigh, time.Now().Add(-2*time.Minute)),
	}
	q := newTestQueue(t, f, nil)

	// Warm the cache, then take the service down.
	q.GetAlerts(context.Background(), AlertFilter{})
	f.failQueries.Store(true)

	got := q.GetAlerts(context.Background(), AlertFilter{Severities: []Severity{SeverityHigh}})
	require.Len(t, got, 2)
	assert.Equal(t, "al-1", got[0].ID)
	assert.Equal(t, "al-3", got[1].ID)
}

func TestGetAlerts_CacheFallbackPagination(t *testing.T) {
	f := newFakeMonitoringService(t)
	base := time.Now()
	for i := 0; i < 10; i++ {
		f.queryAlerts = append(f.queryAlerts, alertAt(fmt.Sprintf("al-%02d", i), SeverityInfo, base.Add(-time.Duration(i)*time.Minute)))
	}
	q := newTestQueue(t, f, nil)
	q.GetAlerts(context.Background(), AlertFilter{})
	f.failQueries.Store(true)

	page := q.GetAlerts(context.Background(), AlertFilter{Limit: 3, Offset: 2})
	require.Len(t, page, 3)
	assert.Equal(t, "al-02", page[0].ID)
	assert.Equal(t, "al-04", page[2].ID)

	assert.Empty(t, q.GetAlerts(context.Background(), AlertFilter{Offset: 50}))
}

func TestGetAlerts_StatusFilter(t *testing.T) {
	f := newFakeMonitoringService(t)
	a1 := alertAt("al-1", SeverityHigh, time.Now())
	a2 := alertAt("al-2", SeverityHigh, time.Now().Add(-time.Minute))
	a2.Status = StatusResolved
	f.queryAlerts = []*Alert{a1, a2}

	q := newTestQueue(t, f, nil)
	q.GetAlerts(context.Background(), AlertFilter{})
	f.failQueries.Store(true)

	open := q.GetAlerts(context.Background(), AlertFilter{Statuses: []AlertStatus{StatusOpen}})
	require.Len(t, open, 1)
	assert.Equal(t, "al-1", open[0].ID)
}

func TestUpdateAlertStatus_Success(t *testing.T) {
	f := newFakeMonitoringService(t)
	f.queryAlerts = []*Alert{alertAt("al-1", SeverityHigh, time.Now())}
	q := newTestQueue(t, f, nil)
	q.GetAlerts(context.Background(), AlertFilter{})

	ok := q.UpdateAlertStatus(context.Background(), "al-1", StatusAcknowledged, "reviewed by ops")
	assert.True(t, ok)

	alerts := q.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, StatusAcknowledged, alerts[0].Status)
	assert.Equal(t, SeverityHigh, alerts[0].Severity, "only the status field changes")
}

func TestUpdateAlertStatus_RemoteFailureLeavesCacheUntouched(t *testing.T) {
	f := newFakeMonitoringService(t)
	f.queryAlerts = []*Alert{alertAt("al-1", SeverityHigh, time.Now())}
	q := newTestQueue(t, f, nil)
	q.GetAlerts(context.Background(), AlertFilter{})
	before := *q.Alerts()[0]

	f.failStatus.Store(true)
	ok := q.UpdateAlertStatus(context.Background(), "al-1", StatusResolved, "")
	assert.False(t, ok)

	after := *q.Alerts()[0]
	assert.Equal(t, before, after, "local state unchanged on remote failure")
}

func TestUpdateAlertStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFakeMonitoringService(t)
	q := newTestQueue(t, f, nil)

	assert.False(t, q.UpdateAlertStatus(context.Background(), "al-1", AlertStatus("bogus"), ""))
	assert.EqualValues(t, 0, len(f.statusUpdates), "no remote call for an invalid status")
}

func TestSeverityRank_Ordering(t *testing.T) {
	assert.Less(t, SeverityInfo.Rank(), SeverityLow.Rank())
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
	assert.Equal(t, 0, Severity("weird").Rank())
}

// notifyRecorder captures alerts pushed to the live feed.
type notifyRecorder struct {
	mu     sync.Mutex
	alerts []*Alert
}

func (n *notifyRecorder) NotifyAlert(a *Alert) {
	n.mu.Lock()
	n.alerts = append(n.alerts, a)
	n.mu.Unlock()
}

func TestNotifier_ReceivesOnlyFreshAlerts(t *testing.T) {
	f := newFakeMonitoringService(t)
	f.uploadAlerts = []*Alert{alertAt("al-1", SeverityCritical, time.Now())}
	rec := &notifyRecorder{}
	q := newTestQueue(t, f, func(c *Config) {
		c.FlushDelay = time.Hour
		c.Notifier = rec
	})

	q.Record(entry("tx-1", "SOL", "1"))
	require.NoError(t, q.Flush(context.Background()))

	// Same alert again on the next upload: replaced, not re-notified.
	q.Record(entry("tx-2", "SOL", "1"))
	require.NoError(t, q.Flush(context.Background()))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "al-1", rec.alerts[0].ID)
}
