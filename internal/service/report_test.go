package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/efreitasn/exechistory/internal/engine"
	"github.com/efreitasn/exechistory/internal/store"
)

func newTestReportService(persist bool) (*ReportService, *LedgerService) {
	ledger := newTestLedger()
	h := engine.NewHistory(engine.WithLogger(discardLogger()))
	return NewReportService(h, ledger, persist, discardLogger()), ledger
}

func countLedger(t *testing.T, ledger *LedgerService) int64 {
	t.Helper()
	n, err := ledger.Query(store.ReportQuery{}).Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestIngest_AppendsToHistory(t *testing.T) {
	svc, ledger := newTestReportService(false)

	rec, err := svc.Ingest(context.Background(), domain.DirectionIncoming, *newTestReport(domain.KindExecutionReport, "1", baseTime))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rec.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", rec.Sequence)
	}
	if _, err := svc.LatestReport("1"); err != nil {
		t.Fatalf("latest report: %v", err)
	}
	if countLedger(t, ledger) != 0 {
		t.Fatal("nothing should be persisted when persistence is off")
	}
}

func TestIngest_PersistsIncomingReports(t *testing.T) {
	svc, ledger := newTestReportService(true)
	ctx := context.Background()

	svc.Ingest(ctx, domain.DirectionOutgoing, *newTestReport(domain.KindNewOrder, "1", baseTime))
	svc.Ingest(ctx, domain.DirectionIncoming, *newTestReport(domain.KindExecutionReport, "1", baseTime))
	svc.Ingest(ctx, domain.DirectionIncoming, *newTestReport(domain.KindCancelReject, "2", baseTime))
	svc.Ingest(ctx, domain.DirectionIncoming, *newTestReport(domain.KindOther, "", baseTime))

	if n := countLedger(t, ledger); n != 2 {
		t.Fatalf("expected 2 persisted reports, got %d", n)
	}
	// The live history keeps its own copy without a ledger id.
	for _, m := range svc.Messages() {
		if m.Report.ReportID != 0 {
			t.Fatalf("history record %d carries ledger id %d", m.Sequence, m.Report.ReportID)
		}
	}
}

func TestIngest_LedgerFailureDoesNotFailIngest(t *testing.T) {
	svc, ledger := newTestReportService(true)

	noDest := newTestReport(domain.KindExecutionReport, "1", baseTime)
	noDest.DestinationID = ""
	if _, err := svc.Ingest(context.Background(), domain.DirectionIncoming, *noDest); err != nil {
		t.Fatalf("ingest should not fail on ledger constraint: %v", err)
	}

	h := engine.NewHistory(engine.WithLogger(discardLogger()))
	broken := NewReportService(h, NewLedgerService(unavailableStore{}, discardLogger(), nil), true, discardLogger())
	if _, err := broken.Ingest(context.Background(), domain.DirectionIncoming, *newTestReport(domain.KindExecutionReport, "1", time.Now())); err != nil {
		t.Fatalf("ingest should not fail when storage is down: %v", err)
	}
	if len(broken.Messages()) != 1 {
		t.Fatal("history should keep working when storage is down")
	}
	if countLedger(t, ledger) != 0 {
		t.Fatal("constraint violation must not persist anything")
	}
}

func TestIngest_Rejects(t *testing.T) {
	svc, _ := newTestReportService(false)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "sideways", *newTestReport(domain.KindExecutionReport, "1", baseTime))
	if !errors.Is(err, domain.ErrInvalidReport) {
		t.Fatalf("expected ErrInvalidReport for bad direction, got %v", err)
	}

	withID := newTestReport(domain.KindExecutionReport, "1", baseTime)
	withID.ReportID = 7
	_, err = svc.Ingest(ctx, domain.DirectionIncoming, *withID)
	if !errors.Is(err, domain.ErrInvalidReport) {
		t.Fatalf("expected ErrInvalidReport for preset id, got %v", err)
	}

	if len(svc.Messages()) != 0 {
		t.Fatal("rejected reports must not be logged")
	}
}

func TestLatestReport_NotFound(t *testing.T) {
	svc, _ := newTestReportService(false)
	if _, err := svc.LatestReport("nope"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestReportService_Views(t *testing.T) {
	svc, _ := newTestReportService(false)
	ctx := context.Background()

	fill := newTestReport(domain.KindExecutionReport, "1", baseTime)
	fill.OrderStatus = domain.OrderStatusPartiallyFilled
	fill.LastQuantity = fill.OrderQuantity
	fill.LastPrice = fill.OrderQuantity
	svc.Ingest(ctx, domain.DirectionIncoming, *fill)

	if n := len(svc.LatestReports()); n != 1 {
		t.Fatalf("expected 1 latest report, got %d", n)
	}
	if n := len(svc.OpenOrders()); n != 1 {
		t.Fatalf("expected 1 open order, got %d", n)
	}
	if n := len(svc.AveragePrices()); n != 1 {
		t.Fatalf("expected 1 average price entry, got %d", n)
	}
	if svc.SessionID() == "" {
		t.Fatal("expected a session id")
	}
}
