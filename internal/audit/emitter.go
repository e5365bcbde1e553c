package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/hms-access/pkg/config"
	"github.com/medicore/hms-access/pkg/logger"
)

// Actions emitted by the access-control core.
const (
	ActionOverrideActivated   = "OVERRIDE_ACTIVATED"
	ActionOverrideDeactivated = "OVERRIDE_DEACTIVATED"
	ActionOverrideExpired     = "OVERRIDE_EXPIRED"
	ActionAccessDenied        = "ACCESS_DENIED"
	ActionSessionEnded        = "SESSION_ENDED"
)

// Entry is an immutable audit record. Entries are write-once: the core
// constructs and emits them but never reads them back.
type Entry struct {
	ID         string                 `json:"id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Actor      string                 `json:"actor"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Emitter is the write-only sink for compliance-relevant events. Emit
// must never block the caller and must never fail the access decision
// that produced the entry.
type Emitter interface {
	Emit(ctx context.Context, entry Entry)
}

// HTTPEmitter delivers entries to the audit backend over HTTP through a
// buffered queue and a single background worker. Delivery failures are
// retried with backoff; an entry that still cannot be delivered is
// surfaced as a local compliance-gap warning.
type HTTPEmitter struct {
	url        string
	client     *http.Client
	queue      chan Entry
	maxRetries int
	backoff    time.Duration
	logger     *logger.Logger
	metrics    *Metrics

	wg       sync.WaitGroup
	closeMu  sync.Mutex
	closed   bool
}

// NewHTTPEmitter creates an emitter and starts its delivery worker.
func NewHTTPEmitter(cfg *config.AuditConfig, log *logger.Logger, metrics *Metrics) *HTTPEmitter {
	e := &HTTPEmitter{
		url:        cfg.BaseURL + "/audit-logs",
		client:     &http.Client{Timeout: cfg.Timeout()},
		queue:      make(chan Entry, cfg.QueueSize),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff(),
		logger:     log,
		metrics:    metrics,
	}

	e.wg.Add(1)
	go e.run()

	return e
}

// Emit enqueues an entry for delivery. A full queue drops the entry with
// a compliance-gap warning rather than blocking the access decision.
func (e *HTTPEmitter) Emit(_ context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		e.logger.ComplianceGap(entry.Action, entry.Actor, fmt.Errorf("emitter closed"))
		return
	}

	select {
	case e.queue <- entry:
	default:
		if e.metrics != nil {
			e.metrics.Dropped.Inc()
		}
		e.logger.ComplianceGap(entry.Action, entry.Actor, fmt.Errorf("audit queue full"))
	}
}

// Close stops accepting entries and drains the queue.
func (e *HTTPEmitter) Close() {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.closeMu.Unlock()

	e.wg.Wait()
}

func (e *HTTPEmitter) run() {
	defer e.wg.Done()
	for entry := range e.queue {
		e.deliver(entry)
	}
}

func (e *HTTPEmitter) deliver(entry Entry) {
	body, err := json.Marshal(entry)
	if err != nil {
		e.logger.ComplianceGap(entry.Action, entry.Actor, err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(e.backoff * time.Duration(attempt))
		}

		lastErr = e.post(body)
		if lastErr == nil {
			if e.metrics != nil {
				e.metrics.Emitted.Inc()
			}
			return
		}
	}

	if e.metrics != nil {
		e.metrics.Failed.Inc()
	}
	e.logger.ComplianceGap(entry.Action, entry.Actor, lastErr)
}

func (e *HTTPEmitter) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit backend returned status %d", resp.StatusCode)
	}
	return nil
}
