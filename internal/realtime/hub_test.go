package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/veilpool/compliance/internal/monitoring"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// wants tests
// ---------------------------------------------------------------------------

func TestWants_EmptySubscription(t *testing.T) {
	client := &Client{sub: Subscription{}}

	alert := &monitoring.Alert{ID: "al-1", Severity: monitoring.SeverityInfo, Timestamp: time.Now()}
	if !client.wants(alert) {
		t.Error("Empty subscription should receive all alerts")
	}
}

func TestWants_MinSeverity(t *testing.T) {
	client := &Client{sub: Subscription{MinSeverity: monitoring.SeverityHigh}}

	high := &monitoring.Alert{ID: "al-1", Severity: monitoring.SeverityHigh}
	critical := &monitoring.Alert{ID: "al-2", Severity: monitoring.SeverityCritical}
	low := &monitoring.Alert{ID: "al-3", Severity: monitoring.SeverityLow}

	if !client.wants(high) {
		t.Error("Should receive alerts at the minimum severity")
	}
	if !client.wants(critical) {
		t.Error("Should receive alerts above the minimum severity")
	}
	if client.wants(low) {
		t.Error("Should NOT receive alerts below the minimum severity")
	}
}

func TestWants_EntityFilter(t *testing.T) {
	client := &Client{sub: Subscription{Entities: []string{"addr-1"}}}

	matching := &monitoring.Alert{ID: "al-1", Entities: []string{"addr-2", "addr-1"}}
	notMatching := &monitoring.Alert{ID: "al-2", Entities: []string{"addr-3"}}
	noEntities := &monitoring.Alert{ID: "al-3"}

	if !client.wants(matching) {
		t.Error("Should match a watched entity")
	}
	if client.wants(notMatching) {
		t.Error("Should NOT match unrelated entities")
	}
	if client.wants(noEntities) {
		t.Error("Alert without entities should not match an entity filter")
	}
}

func TestWants_CombinedFilters(t *testing.T) {
	client := &Client{sub: Subscription{
		MinSeverity: monitoring.SeverityMedium,
		Entities:    []string{"addr-1"},
	}}

	match := &monitoring.Alert{ID: "al-1", Severity: monitoring.SeverityHigh, Entities: []string{"addr-1"}}
	wrongSev := &monitoring.Alert{ID: "al-2", Severity: monitoring.SeverityLow, Entities: []string{"addr-1"}}

	if !client.wants(match) {
		t.Error("Should match when both filters pass")
	}
	if client.wants(wrongSev) {
		t.Error("Should NOT match when severity is below the minimum")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalAlerts"].(int64) != 0 {
		t.Errorf("Expected 0 total alerts, got %v", stats["totalAlerts"])
	}
}

func TestHub_NotifyAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.NotifyAlert(&monitoring.Alert{ID: "al-1", Severity: monitoring.SeverityHigh, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalAlerts"].(int64) != 1 {
		t.Errorf("Expected 1 total alert, got %v", stats["totalAlerts"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_NotifyReachesClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.NotifyAlert(&monitoring.Alert{
		ID:        "al-1",
		Severity:  monitoring.SeverityCritical,
		Title:     "structured transfers detected",
		Timestamp: time.Now(),
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for alert")
	}
}

func TestHub_FilteredNotify(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants critical alerts
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{MinSeverity: monitoring.SeverityCritical},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// A low alert should be filtered out
	h.NotifyAlert(&monitoring.Alert{ID: "al-1", Severity: monitoring.SeverityLow, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive a low severity alert")
	default:
		// Good - filtered out
	}

	// A critical alert should be received
	h.NotifyAlert(&monitoring.Alert{ID: "al-2", Severity: monitoring.SeverityCritical, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive a critical alert")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}
