package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/efreitasn/exechistory/internal/engine"
	"github.com/efreitasn/exechistory/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memorySink records delivered events. If gate is set, each delivery waits
// for a value on it.
type memorySink struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{}
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Deliver(_ context.Context, e Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func newOrder(id string) domain.Report {
	return domain.Report{Kind: domain.KindNewOrder, ClientOrderID: id, Side: domain.SideBuy}
}

func TestFanout_PreservesOrderPerSink(t *testing.T) {
	h := engine.NewHistory()
	a, b := &memorySink{}, &memorySink{}
	f := NewFanout(h.SessionID(), 64, discardLogger(), nil, a, b)
	f.Start(context.Background())
	h.Subscribe(f)

	for i := 0; i < 20; i++ {
		if _, err := h.AppendOutgoing(newOrder("1")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	f.Close()

	for _, s := range []*memorySink{a, b} {
		events := s.snapshot()
		if len(events) != 20 {
			t.Fatalf("expected 20 events, got %d", len(events))
		}
		for i, e := range events {
			if e.Sequence != uint64(i+1) {
				t.Fatalf("event %d has sequence %d", i, e.Sequence)
			}
			if e.SessionID != h.SessionID() || e.Type() != "messages.insert" {
				t.Fatalf("unexpected event %+v", e)
			}
		}
	}
}

func TestFanout_DropsWhenFull(t *testing.T) {
	m := metrics.New()
	slow := &memorySink{gate: make(chan struct{})}
	f := NewFanout("s", 1, discardLogger(), m, slow)
	f.Start(context.Background())

	rec := domain.MessageRecord{Sequence: 1, Direction: domain.DirectionOutgoing, Report: newOrder("1")}
	change := engine.Change{View: engine.ViewMessages, Kind: engine.Insert, Previous: -1, Record: rec}

	// The worker takes the first event and blocks on the gate, the second
	// fills the queue, the rest are dropped.
	f.OnAppend(change)
	deadline := time.Now().Add(time.Second)
	for len(f.workers[0].queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	f.OnAppend(change)
	f.OnAppend(change)
	f.OnAppend(change)

	if got := testutil.ToFloat64(m.NotifyDropped.WithLabelValues("memory")); got != 2 {
		t.Fatalf("dropped = %v, want 2", got)
	}

	close(slow.gate)
	f.Close()
	if n := len(slow.snapshot()); n != 2 {
		t.Fatalf("expected 2 delivered events, got %d", n)
	}
}

func TestFanout_IgnoresEventsAfterClose(t *testing.T) {
	s := &memorySink{}
	f := NewFanout("s", 4, discardLogger(), nil, s)
	f.Start(context.Background())
	f.Close()
	f.Close()

	f.OnAppend(engine.Change{View: engine.ViewMessages, Record: domain.MessageRecord{Sequence: 1}})
	if n := len(s.snapshot()); n != 0 {
		t.Fatalf("expected no events after close, got %d", n)
	}
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := engine.Change{
		View:     engine.ViewAveragePrices,
		Kind:     engine.Update,
		Position: 0,
		Previous: 3,
		Record: domain.MessageRecord{
			Sequence:   9,
			Direction:  domain.DirectionIncoming,
			ReceivedAt: at,
			Report: domain.Report{
				Kind:          domain.KindExecutionReport,
				ClientOrderID: "A",
				BrokerOrderID: "B",
				OrderStatus:   domain.OrderStatusPartiallyFilled,
			},
		},
		AveragePrice: &domain.AveragePriceEntry{
			ClientOrderID:      "A",
			Side:               domain.SideBuy,
			CumulativeQuantity: decimal.NewFromInt(30),
			AveragePrice:       decimal.RequireFromString("10.5"),
			FillCount:          2,
		},
	}

	e := NewEvent("sess", c)
	if e.Type() != "average_prices.update" || e.Previous != 3 || e.Sequence != 9 {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Timestamp != "2025-01-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", e.Timestamp)
	}
	if e.Side != string(domain.SideBuy) || e.CumulativeQuantity != "30" || e.AveragePrice != "10.5" || e.FillCount != 2 {
		t.Fatalf("event does not carry the updated entry: %+v", e)
	}
}

func TestNewEvent_DescribesResolvedRow(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := engine.Change{
		View:     engine.ViewLatestReports,
		Kind:     engine.Update,
		Previous: -1,
		Record: domain.MessageRecord{
			Sequence:   2,
			Direction:  domain.DirectionIncoming,
			ReceivedAt: at,
			Report: domain.Report{
				Kind:          domain.KindExecutionReport,
				ClientOrderID: "A",
				BrokerOrderID: "X",
				OrderStatus:   domain.OrderStatusNew,
			},
		},
		Resolved: &domain.ResolvedReport{
			Sequence:  1,
			Direction: domain.DirectionIncoming,
			Report: domain.Report{
				Kind:          domain.KindExecutionReport,
				ClientOrderID: "A",
				BrokerOrderID: "X",
				OrderStatus:   domain.OrderStatusFilled,
			},
		},
	}

	e := NewEvent("sess", c)
	if e.Sequence != 1 || e.TriggerSequence != 2 {
		t.Fatalf("sequence = %d trigger = %d, want 1 and 2", e.Sequence, e.TriggerSequence)
	}
	if e.OrderStatus != string(domain.OrderStatusFilled) || e.BrokerOrderID != "X" {
		t.Fatalf("event should describe the resolved row, got %+v", e)
	}
}

func TestWebhookSink_Deliver(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
		body    Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		headers = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL, 5*time.Second)
	e := Event{SessionID: "sess", View: "latest_reports", Kind: "insert", Sequence: 4, ClientOrderID: "A"}
	if err := s.Deliver(context.Background(), e); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if headers.Get("X-Delivery-Id") == "" {
		t.Error("missing X-Delivery-Id header")
	}
	if headers.Get("X-Event-Type") != "latest_reports.insert" {
		t.Errorf("got X-Event-Type %q", headers.Get("X-Event-Type"))
	}
	if headers.Get("X-Session-Id") != "sess" {
		t.Errorf("got X-Session-Id %q", headers.Get("X-Session-Id"))
	}
	if headers.Get("Content-Type") != "application/json" {
		t.Errorf("got Content-Type %q", headers.Get("Content-Type"))
	}
	if body.Sequence != 4 || body.ClientOrderID != "A" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL, 5*time.Second)
	if err := s.Deliver(context.Background(), Event{}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Deliver(t *testing.T) {
	w := &fakeWriter{}
	s := NewKafkaSink(w)

	if err := s.Deliver(context.Background(), Event{SessionID: "sess", View: "messages", Kind: "insert", ClientOrderID: "A"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := s.Deliver(context.Background(), Event{SessionID: "sess", View: "messages", Kind: "insert"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "A" || string(w.msgs[1].Key) != "sess" {
		t.Fatalf("unexpected keys %q, %q", w.msgs[0].Key, w.msgs[1].Key)
	}
	if string(w.msgs[0].Headers[0].Value) != "messages.insert" {
		t.Fatalf("unexpected event_type header %q", w.msgs[0].Headers[0].Value)
	}
	var e Event
	if err := json.Unmarshal(w.msgs[0].Value, &e); err != nil || e.ClientOrderID != "A" {
		t.Fatalf("unexpected payload %s (%v)", w.msgs[0].Value, err)
	}

	if err := s.Close(); err != nil || !w.closed {
		t.Fatal("expected writer to be closed")
	}
}

func TestKafkaSink_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	s := NewKafkaSink(&fakeWriter{err: boom})

	if err := s.Deliver(context.Background(), Event{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}
