package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veilpool/compliance/internal/health"
	"github.com/veilpool/compliance/internal/logging"
	"github.com/veilpool/compliance/internal/metrics"
)

// DefaultFlushDelay is the fixed cadence between flush attempts. Failed
// uploads retry on the same cadence rather than exponential backoff; a
// deliberate simplicity/latency trade-off for a client-side reporter.
const DefaultFlushDelay = 30 * time.Second

// Config configures a Queue. Immutable after NewQueue.
type Config struct {
	BaseURL    string
	APIKey     string
	FlushDelay time.Duration
	Thresholds Thresholds
	Logger     *slog.Logger   // optional
	Store      Store          // optional upload audit trail
	Notifier   AlertNotifier  // optional live alert feed
	Health     *health.Signal // optional flush health signal
}

// Queue buffers monitoring entries and uploads them in batches.
//
// A queue is always in one of three states: idle (no timer armed),
// armed (flush scheduled), or flushing (upload in flight). Entries
// recorded during a flush start the next batch. Safe for concurrent use.
type Queue struct {
	client     *Client
	logger     *slog.Logger
	store      Store
	notifier   AlertNotifier
	signal     *health.Signal
	flushDelay time.Duration
	thresholds Thresholds

	mu       sync.Mutex
	pending  []*Entry
	armed    bool
	flushing bool
	timer    *time.Timer
	alerts   []*Alert // sorted descending by timestamp, capped at maxAlerts

	nowFn func() time.Time
}

// NewQueue creates a monitoring queue. BaseURL and APIKey are required.
func NewQueue(cfg Config) (*Queue, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("monitoring: API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("monitoring: base URL is required")
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultFlushDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Queue{
		client:     NewClient(cfg.BaseURL, cfg.APIKey),
		logger:     logger,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		signal:     cfg.Health,
		flushDelay: cfg.FlushDelay,
		thresholds: cfg.Thresholds,
		nowFn:      time.Now,
	}, nil
}

// Record appends an entry to the pending buffer and schedules a flush.
// High-value entries (per-asset threshold) flush immediately instead of
// waiting out the timer. Record never fails: upload errors surface on
// the logging side-channel and the entry stays buffered.
func (q *Queue) Record(entry *Entry) {
	q.mu.Lock()
	q.pending = append(q.pending, entry)
	metrics.PendingEntries.Set(float64(len(q.pending)))

	if q.thresholds.HighValue(entry.Asset, entry.Amount) {
		q.mu.Unlock()
		q.logger.Info("high-value entry recorded, flushing immediately",
			"txId", entry.TxID, "asset", entry.Asset, "amount", entry.Amount)
		go q.flush(context.Background())
		return
	}

	if !q.armed && !q.flushing {
		q.armed = true
		q.timer = time.AfterFunc(q.flushDelay, func() {
			q.flush(context.Background())
		})
	}
	q.mu.Unlock()
}

// Flush uploads the current buffer synchronously. Used for shutdown and
// tests; the timer path ignores the returned error (it is already
// logged and the entries are re-queued).
func (q *Queue) Flush(ctx context.Context) error {
	return q.flush(ctx)
}

func (q *Queue) flush(ctx context.Context) error {
	q.mu.Lock()
	if q.flushing {
		// An upload is in flight; entries recorded since its snapshot
		// belong to the next batch, which re-arms when it lands.
		q.mu.Unlock()
		return nil
	}
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.armed = false
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	snapshot := q.pending
	q.pending = nil
	q.flushing = true
	q.mu.Unlock()

	metrics.FlushBatchSize.Observe(float64(len(snapshot)))
	result, err := q.client.SubmitBatch(ctx, snapshot)

	var fresh []*Alert
	q.mu.Lock()
	q.flushing = false
	if err != nil {
		metrics.FlushesTotal.WithLabelValues("failure").Inc()
		// Snapshot goes back on the front so re-queued entries precede
		// anything recorded during the failed upload.
		q.pending = append(append(make([]*Entry, 0, len(snapshot)+len(q.pending)), snapshot...), q.pending...)
		if q.signal != nil {
			q.signal.Failed(err)
		}
		q.logger.Warn("monitoring upload failed, entries re-queued",
			"entries", len(snapshot), "error", err)
	} else {
		metrics.FlushesTotal.WithLabelValues("success").Inc()
		if q.signal != nil {
			q.signal.Succeeded()
		}
		fresh = q.mergeAlertsLocked(result.Alerts)
		q.logger.Debug("monitoring batch uploaded",
			"entries", len(snapshot), "uploadId", result.UploadID, "alerts", len(result.Alerts))
	}
	rearm := len(q.pending) > 0 && !q.armed
	if rearm {
		q.armed = true
		q.timer = time.AfterFunc(q.flushDelay, func() {
			q.flush(context.Background())
		})
	}
	metrics.PendingEntries.Set(float64(len(q.pending)))
	q.mu.Unlock()

	if err == nil && q.store != nil {
		// Best-effort audit trail.
		go func(uploadID string, entries []*Entry) {
			if err := q.store.RecordUpload(context.Background(), uploadID, entries); err != nil {
				q.logger.Warn("failed to record upload", "uploadId", uploadID, "error", err)
			}
		}(result.UploadID, snapshot)
	}
	q.notify(fresh)
	return err
}

func (q *Queue) notify(alerts []*Alert) {
	if q.notifier == nil {
		return
	}
	for _, a := range alerts {
		q.notifier.NotifyAlert(a)
	}
}

// History fetches the remote transaction history for an address.
func (q *Queue) History(ctx context.Context, address string, limit int) ([]*HistoryRecord, error) {
	return q.client.History(ctx, address, limit)
}

// PendingCount returns the current depth of the pending buffer.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Armed reports whether a flush timer is currently scheduled.
func (q *Queue) Armed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.armed
}
