package service

import (
	"context"
	"log/slog"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/efreitasn/exechistory/internal/engine"
)

// ReportService is the ingest path: it appends reports to the live history
// and, when enabled, also persists incoming execution reports and cancel
// rejects to the ledger.
type ReportService struct {
	history         *engine.History
	ledger          *LedgerService
	persistIncoming bool
	logger          *slog.Logger
}

// NewReportService creates a new ReportService. ledger may be nil when
// persistIncoming is false.
func NewReportService(history *engine.History, ledger *LedgerService, persistIncoming bool, logger *slog.Logger) *ReportService {
	return &ReportService{
		history:         history,
		ledger:          ledger,
		persistIncoming: persistIncoming && ledger != nil,
		logger:          logger,
	}
}

// Ingest appends r to the history in the given direction. Ledger failures
// are logged and never fail the ingest.
func (s *ReportService) Ingest(ctx context.Context, dir domain.Direction, r domain.Report) (domain.MessageRecord, error) {
	if r.ReportID != 0 {
		return domain.MessageRecord{}, &domain.ValidationError{Message: "report_id must not be set on ingest"}
	}

	var (
		rec domain.MessageRecord
		err error
	)
	switch dir {
	case domain.DirectionIncoming:
		rec, err = s.history.AppendIncoming(r)
	case domain.DirectionOutgoing:
		rec, err = s.history.AppendOutgoing(r)
	default:
		return domain.MessageRecord{}, &domain.ValidationError{Message: "unknown direction: " + string(dir)}
	}
	if err != nil {
		return domain.MessageRecord{}, err
	}

	if s.shouldPersist(dir, &r) {
		if _, err := s.ledger.Save(ctx, &r); err != nil {
			s.logger.Warn("incoming report not persisted",
				"sequence", rec.Sequence,
				"client_order_id", r.ClientOrderID,
				"error", err,
			)
		}
	}
	return rec, nil
}

func (s *ReportService) shouldPersist(dir domain.Direction, r *domain.Report) bool {
	if !s.persistIncoming || dir != domain.DirectionIncoming {
		return false
	}
	return r.Kind == domain.KindExecutionReport || r.Kind == domain.KindCancelReject
}

// SessionID returns the live history's session id.
func (s *ReportService) SessionID() string {
	return s.history.SessionID()
}

// Messages returns every message of the session in sequence order.
func (s *ReportService) Messages() []domain.MessageRecord {
	return s.history.Messages()
}

// LatestReport returns the resolved report of an order, or
// domain.ErrOrderNotFound.
func (s *ReportService) LatestReport(clientOrderID string) (domain.ResolvedReport, error) {
	r, ok := s.history.LatestReportFor(clientOrderID)
	if !ok {
		return domain.ResolvedReport{}, domain.ErrOrderNotFound
	}
	return r, nil
}

// LatestReports returns the resolved report of every order.
func (s *ReportService) LatestReports() []domain.ResolvedReport {
	return s.history.LatestReports()
}

// AveragePrices returns the average price entries, most recent first.
func (s *ReportService) AveragePrices() []domain.AveragePriceEntry {
	return s.history.AveragePrices()
}

// OpenOrders returns the orders whose resolved status is not terminal.
func (s *ReportService) OpenOrders() []domain.ResolvedReport {
	return s.history.OpenOrders()
}
