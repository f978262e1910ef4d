package engine

import (
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/efreitasn/exechistory/internal/metrics"
	"github.com/efreitasn/exechistory/internal/store"
	"github.com/google/uuid"
)

// Option configures a History.
type Option func(*History)

// WithClassifier sets the terminal status predicate used by OpenOrders.
func WithClassifier(c domain.StatusClassifier) Option {
	return func(h *History) { h.isTerminal = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *History) { h.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *History) { h.metrics = m }
}

// WithClock overrides the clock stamping ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

type subscriber struct {
	id       uint64
	listener Listener
}

// History is the live message store of one session. It owns the message
// log and keeps the latest-report, average-price and open-order views in
// step with it.
//
// appendMu serializes append, derive and notify. mu guards the views and is
// only held for writing while an append mutates them, so listeners and
// other readers can read while notifications are delivered.
type History struct {
	appendMu sync.Mutex
	mu       sync.RWMutex

	sessionID string
	log       *store.MessageLog
	index     *store.CorrelationIndex
	prices    *store.AveragePriceLedger
	open      int // resolved orders whose status is not terminal

	subsMu    sync.Mutex
	subs      []subscriber
	nextSubID uint64

	isTerminal domain.StatusClassifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewHistory creates an empty History for a new session.
func NewHistory(opts ...Option) *History {
	log := store.NewMessageLog()
	h := &History{
		sessionID:  uuid.NewString(),
		log:        log,
		index:      store.NewCorrelationIndex(log),
		prices:     store.NewAveragePriceLedger(),
		isTerminal: domain.IsTerminal,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("session_id", h.sessionID)
	return h
}

// SessionID identifies this history instance.
func (h *History) SessionID() string {
	return h.sessionID
}

// AppendIncoming records a report received from the venue.
func (h *History) AppendIncoming(r domain.Report) (domain.MessageRecord, error) {
	return h.append(domain.DirectionIncoming, r)
}

// AppendOutgoing records a message sent to the venue.
func (h *History) AppendOutgoing(r domain.Report) (domain.MessageRecord, error) {
	return h.append(domain.DirectionOutgoing, r)
}

func (h *History) append(dir domain.Direction, r domain.Report) (domain.MessageRecord, error) {
	if err := r.Validate(); err != nil {
		return domain.MessageRecord{}, err
	}

	h.appendMu.Lock()
	defer h.appendMu.Unlock()

	// Step 1: Log and derive under the view lock.
	h.mu.Lock()
	rec := h.log.Append(dir, r, h.now())
	changes := make([]Change, 0, 3)
	changes = append(changes, Change{
		View:     ViewMessages,
		Kind:     Insert,
		Position: h.log.Len() - 1,
		Previous: -1,
		Record:   rec,
	})
	if dir == domain.DirectionIncoming && r.Kind == domain.KindExecutionReport {
		changes = h.derive(rec, changes)
	}
	open := h.open
	h.mu.Unlock()

	h.metrics.Appended(string(dir))
	h.metrics.SetOpenOrders(open)

	// Step 2: Notify with the views already consistent.
	h.notify(changes)
	return rec, nil
}

// derive updates the correlation index and the average price ledger for an
// incoming execution report. Callers hold h.mu for writing.
func (h *History) derive(rec domain.MessageRecord, changes []Change) []Change {
	r := &rec.Report
	if r.ClientOrderID == "" {
		h.malformed(rec, "missing_client_order_id")
		return changes
	}

	before, seen := h.index.Resolve(r.ClientOrderID)
	pos, inserted, changed := h.index.Apply(rec)
	if changed {
		after := h.index.At(pos)
		if seen && !h.isTerminal(before.Report.OrderStatus) {
			h.open--
		}
		if !h.isTerminal(after.Report.OrderStatus) {
			h.open++
		}

		kind := Update
		if inserted {
			kind = Insert
		}
		changes = append(changes, Change{
			View:     ViewLatestReports,
			Kind:     kind,
			Position: pos,
			Previous: -1,
			Record:   rec,
			Resolved: &after,
		})
	}

	qty, px, ok, err := r.Fill()
	if errors.Is(err, domain.ErrMalformedReport) {
		h.malformed(rec, "missing_side")
		return changes
	}
	if !ok {
		return changes
	}
	prev, applied := h.prices.Update(store.Fill{
		ClientOrderID: r.ClientOrderID,
		Side:          r.Side,
		Symbol:        r.Symbol,
		ExecutionID:   r.ExecutionID,
		Quantity:      qty,
		Price:         px,
		Sequence:      rec.Sequence,
	})
	if !applied {
		h.logger.Debug("duplicate fill ignored",
			"client_order_id", r.ClientOrderID,
			"execution_id", r.ExecutionID,
			"sequence", rec.Sequence,
		)
		return changes
	}
	entry, _ := h.prices.Get(domain.AveragePriceKey{ClientOrderID: r.ClientOrderID, Side: r.Side})
	kind := Update
	if prev < 0 {
		kind = Insert
	}
	changes = append(changes, Change{
		View:         ViewAveragePrices,
		Kind:         kind,
		Position:     0,
		Previous:     prev,
		Record:       rec,
		AveragePrice: &entry,
	})
	return changes
}

func (h *History) malformed(rec domain.MessageRecord, reason string) {
	h.logger.Debug("malformed report",
		"client_order_id", rec.Report.ClientOrderID,
		"sequence", rec.Sequence,
		"reason", reason,
	)
	h.metrics.Malformed(reason)
}

// Subscribe registers l for every subsequent append.
func (h *History) Subscribe(l Listener) *Subscription {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	h.nextSubID++
	h.subs = append(h.subs, subscriber{id: h.nextSubID, listener: l})
	return &Subscription{h: h, id: h.nextSubID}
}

func (h *History) unsubscribe(id uint64) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (h *History) ListenerCount() int {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	return len(h.subs)
}

func (h *History) notify(changes []Change) {
	h.subsMu.Lock()
	subs := h.subs
	h.subsMu.Unlock()

	for _, s := range subs {
		for _, c := range changes {
			h.deliver(s.listener, c)
		}
	}
}

func (h *History) deliver(l Listener, c Change) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("listener panicked",
				"view", string(c.View),
				"sequence", c.Record.Sequence,
				"panic", p,
			)
		}
	}()
	l.OnAppend(c)
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	h    *History
	id   uint64
	once sync.Once
}

// Unsubscribe removes the listener. Appends that already started may still
// deliver to it. Calling Unsubscribe more than once is safe.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.h.unsubscribe(s.id) })
}

// MessageCount returns the number of messages appended so far.
func (h *History) MessageCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.log.Len()
}

// Messages returns every message record in sequence order.
func (h *History) Messages() []domain.MessageRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.log.Snapshot()
}

// AllMessages iterates over the message log. The iteration is live: records
// appended while it runs are yielded too.
func (h *History) AllMessages() iter.Seq[domain.MessageRecord] {
	return func(yield func(domain.MessageRecord) bool) {
		for i := 0; ; i++ {
			h.mu.RLock()
			if i >= h.log.Len() {
				h.mu.RUnlock()
				return
			}
			rec := h.log.At(i)
			h.mu.RUnlock()
			if !yield(rec) {
				return
			}
		}
	}
}

// LatestReportFor returns the resolved latest report of an order.
func (h *History) LatestReportFor(clientOrderID string) (domain.ResolvedReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index.Resolve(clientOrderID)
}

// LatestReports returns the resolved report of every order in order of
// first appearance.
func (h *History) LatestReports() []domain.ResolvedReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index.All()
}

// AveragePrices returns every average price entry, most recently updated
// first.
func (h *History) AveragePrices() []domain.AveragePriceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.prices.Entries()
}

// OpenOrders returns the resolved reports whose status is not terminal.
func (h *History) OpenOrders() []domain.ResolvedReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index.Open(h.isTerminal)
}

// OpenOrderCount returns len(OpenOrders()) without building the slice.
func (h *History) OpenOrderCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.open
}
