// Package notify forwards history changes to external sinks without
// blocking the appending caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/exechistory/internal/engine"
	"github.com/efreitasn/exechistory/internal/metrics"
)

// Event is the wire form of an engine.Change. Sequence and the report
// fields describe the row as it stands in the view after the change;
// TriggerSequence is the appended message that caused it.
type Event struct {
	SessionID          string `json:"session_id"`
	View               string `json:"view"`
	Kind               string `json:"kind"`
	Position           int    `json:"position"`
	Previous           int    `json:"previous"`
	Sequence           uint64 `json:"sequence"`
	TriggerSequence    uint64 `json:"trigger_sequence"`
	Direction          string `json:"direction"`
	ReportKind         string `json:"report_kind"`
	ClientOrderID      string `json:"client_order_id,omitempty"`
	BrokerOrderID      string `json:"broker_order_id,omitempty"`
	OrderStatus        string `json:"order_status,omitempty"`
	Side               string `json:"side,omitempty"`
	CumulativeQuantity string `json:"cumulative_quantity,omitempty"`
	AveragePrice       string `json:"average_price,omitempty"`
	FillCount          int    `json:"fill_count,omitempty"`
	Timestamp          string `json:"timestamp"`
}

// Type is the event type, e.g. "latest_reports.update".
func (e Event) Type() string {
	return e.View + "." + e.Kind
}

// NewEvent converts a change into its wire form.
func NewEvent(sessionID string, c engine.Change) Event {
	seq, dir, r := c.Record.Sequence, c.Record.Direction, c.Record.Report
	if c.Resolved != nil {
		seq, dir, r = c.Resolved.Sequence, c.Resolved.Direction, c.Resolved.Report
	}
	e := Event{
		SessionID:       sessionID,
		View:            string(c.View),
		Kind:            c.Kind.String(),
		Position:        c.Position,
		Previous:        c.Previous,
		Sequence:        seq,
		TriggerSequence: c.Record.Sequence,
		Direction:       string(dir),
		ReportKind:      string(r.Kind),
		ClientOrderID:   r.ClientOrderID,
		BrokerOrderID:   r.BrokerOrderID,
		OrderStatus:     string(r.OrderStatus),
		Timestamp:       c.Record.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	if p := c.AveragePrice; p != nil {
		e.ClientOrderID = p.ClientOrderID
		e.Side = string(p.Side)
		e.CumulativeQuantity = p.CumulativeQuantity.String()
		e.AveragePrice = p.AveragePrice.String()
		e.FillCount = p.FillCount
	}
	return e
}

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

type worker struct {
	sink  Sink
	queue chan Event
}

// Fanout is an engine.Listener that hands every change to each sink through
// its own bounded queue. One goroutine per sink keeps per-sink order. When
// a queue is full the event is dropped for that sink and counted.
type Fanout struct {
	sessionID string
	workers   []*worker
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex // guards closed against concurrent OnAppend
	closed bool
	wg     sync.WaitGroup
}

// NewFanout creates a Fanout with a queue of size buffer per sink.
func NewFanout(sessionID string, buffer int, logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Fanout {
	if buffer <= 0 {
		buffer = 1
	}
	f := &Fanout{
		sessionID: sessionID,
		logger:    logger,
		metrics:   m,
	}
	for _, s := range sinks {
		f.workers = append(f.workers, &worker{sink: s, queue: make(chan Event, buffer)})
	}
	return f
}

// Start launches one delivery goroutine per sink. Workers drain their queue
// until Close is called; ctx bounds each delivery.
func (f *Fanout) Start(ctx context.Context) {
	for _, w := range f.workers {
		f.wg.Add(1)
		go func(w *worker) {
			defer f.wg.Done()
			for e := range w.queue {
				if err := w.sink.Deliver(ctx, e); err != nil {
					f.logger.Warn("notification delivery failed",
						"sink", w.sink.Name(),
						"event", e.Type(),
						"sequence", e.Sequence,
						"error", err,
					)
				}
			}
		}(w)
	}
}

// OnAppend implements engine.Listener. It never blocks.
func (f *Fanout) OnAppend(c engine.Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}

	e := NewEvent(f.sessionID, c)
	for _, w := range f.workers {
		select {
		case w.queue <- e:
		default:
			f.metrics.Dropped(w.sink.Name())
			f.logger.Warn("notification dropped, queue full",
				"sink", w.sink.Name(),
				"event", e.Type(),
				"sequence", e.Sequence,
			)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, w := range f.workers {
		close(w.queue)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
