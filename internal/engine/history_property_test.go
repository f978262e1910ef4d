package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"pgregory.net/rapid"
)

// Feature: exechistory, Property: resolution is order independent
// For any set of reports of one order with distinct sending times, the
// resolved report is the one with the latest sending time whatever the
// arrival order.
func TestProperty_ResolutionOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "numReports")
		offsets := rapid.SliceOfNDistinct(rapid.IntRange(0, 1000), n, n, rapid.ID[int]).Draw(t, "offsets")

		reports := make([]domain.Report, n)
		latest := 0
		for i, off := range offsets {
			reports[i] = domain.Report{
				Kind:          domain.KindExecutionReport,
				ClientOrderID: "A",
				ExecutionID:   fmt.Sprintf("E%d", i),
				Side:          domain.SideBuy,
				SendingTime:   baseTime.Add(time.Duration(off) * time.Millisecond),
			}
			if off > offsets[latest] {
				latest = i
			}
		}
		perm := rapid.Permutation(reports).Draw(t, "arrival")

		h := NewHistory()
		for _, r := range perm {
			if _, err := h.AppendIncoming(r); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		got, ok := h.LatestReportFor("A")
		if !ok {
			t.Fatal("order not resolved")
		}
		if got.Report.ExecutionID != reports[latest].ExecutionID {
			t.Fatalf("resolved %s, want %s", got.Report.ExecutionID, reports[latest].ExecutionID)
		}
	})
}

// Feature: exechistory, Property: broker id never regresses
// Once any report of an order carried a broker order id, the resolved view
// of that order carries one too.
func TestProperty_BrokerIDNeverRegresses(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := NewHistory()
		seenBroker := false
		n := rapid.IntRange(1, 30).Draw(t, "numReports")
		for i := 0; i < n; i++ {
			r := domain.Report{
				Kind:          domain.KindExecutionReport,
				ClientOrderID: "A",
				Side:          domain.SideBuy,
				SendingTime:   baseTime.Add(time.Duration(rapid.IntRange(0, 5).Draw(t, fmt.Sprintf("sec-%d", i))) * time.Second),
			}
			if rapid.Bool().Draw(t, fmt.Sprintf("broker-%d", i)) {
				r.BrokerOrderID = "B"
				seenBroker = true
			}
			h.AppendIncoming(r)

			got, _ := h.LatestReportFor("A")
			if seenBroker && got.Report.BrokerOrderID == "" {
				t.Fatalf("broker id regressed after report %d", i)
			}
		}
	})
}

// Feature: exechistory, Property: every message is logged once
// The message view has one record per append in sequence order, whatever
// mix of directions and kinds is appended.
func TestProperty_EveryMessageLogged(t *testing.T) {
	kinds := []domain.ReportKind{
		domain.KindExecutionReport, domain.KindCancelReject, domain.KindNewOrder,
		domain.KindCancelRequest, domain.KindOther,
	}
	rapid.Check(t, func(t *rapid.T) {
		h := NewHistory()
		rec := &recorder{}
		h.Subscribe(rec)

		n := rapid.IntRange(0, 40).Draw(t, "numMessages")
		for i := 0; i < n; i++ {
			r := domain.Report{
				Kind:          rapid.SampledFrom(kinds).Draw(t, fmt.Sprintf("kind-%d", i)),
				ClientOrderID: rapid.SampledFrom([]string{"", "1", "2", "3"}).Draw(t, fmt.Sprintf("id-%d", i)),
			}
			if rapid.Bool().Draw(t, fmt.Sprintf("incoming-%d", i)) {
				h.AppendIncoming(r)
			} else {
				h.AppendOutgoing(r)
			}
		}

		msgs := h.Messages()
		if len(msgs) != n {
			t.Fatalf("got %d messages, want %d", len(msgs), n)
		}
		if len(rec.byView(ViewMessages)) != n {
			t.Fatalf("got %d message notifications, want %d", len(rec.byView(ViewMessages)), n)
		}
		for i, m := range msgs {
			if m.Sequence != uint64(i+1) {
				t.Fatalf("sequence %d at position %d", m.Sequence, i)
			}
		}
	})
}

// Feature: exechistory, Property: open order count matches the view
// After any sequence of execution reports across several orders, the
// maintained open order count equals the size of the open orders view.
func TestProperty_OpenOrderCountMatchesView(t *testing.T) {
	statuses := []domain.OrderStatus{
		domain.OrderStatusPendingNew, domain.OrderStatusNew, domain.OrderStatusPartiallyFilled,
		domain.OrderStatusFilled, domain.OrderStatusCanceled, domain.OrderStatusPendingCancel,
	}
	rapid.Check(t, func(t *rapid.T) {
		h := NewHistory()
		n := rapid.IntRange(1, 40).Draw(t, "numReports")
		for i := 0; i < n; i++ {
			r := domain.Report{
				Kind:          domain.KindExecutionReport,
				ClientOrderID: rapid.SampledFrom([]string{"1", "2", "3", "4"}).Draw(t, fmt.Sprintf("id-%d", i)),
				Side:          domain.SideBuy,
				OrderStatus:   rapid.SampledFrom(statuses).Draw(t, fmt.Sprintf("status-%d", i)),
				SendingTime:   baseTime.Add(time.Duration(rapid.IntRange(0, 5).Draw(t, fmt.Sprintf("sec-%d", i))) * time.Second),
			}
			if rapid.Bool().Draw(t, fmt.Sprintf("broker-%d", i)) {
				r.BrokerOrderID = "B" + r.ClientOrderID
			}
			h.AppendIncoming(r)

			if got, want := h.OpenOrderCount(), len(h.OpenOrders()); got != want {
				t.Fatalf("after report %d: OpenOrderCount = %d, OpenOrders has %d", i, got, want)
			}
		}
	})
}
