package service

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/efreitasn/exechistory/internal/metrics"
	"github.com/efreitasn/exechistory/internal/store"
)

// LedgerService saves reports to the durable ledger and queries it.
type LedgerService struct {
	store   store.ReportStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLedgerService creates a new LedgerService with the given dependencies.
func NewLedgerService(st store.ReportStore, logger *slog.Logger, m *metrics.Metrics) *LedgerService {
	return &LedgerService{
		store:   st,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Save validates r, assigns it the next report id and commits it. On
// success r.ReportID holds the new id. Reports missing a destination or a
// sending time fail with *domain.ConstraintViolation before any id is
// allocated; a report that already has an id fails with
// domain.ErrReportIDAssigned.
func (s *LedgerService) Save(ctx context.Context, r *domain.Report) (uint64, error) {
	if r.ReportID != 0 {
		s.metrics.LedgerSave("id_assigned")
		return 0, domain.ErrReportIDAssigned
	}
	if err := r.Validate(); err != nil {
		s.metrics.LedgerSave("invalid")
		return 0, err
	}
	if err := checkConstraints(r); err != nil {
		s.logger.Warn("report rejected by ledger",
			"client_order_id", r.ClientOrderID,
			"error", err,
		)
		s.metrics.LedgerSave("constraint_violation")
		return 0, err
	}

	var id uint64
	err := s.store.WithTx(ctx, func(tx store.ReportTx) error {
		var err error
		id, err = tx.AllocateNextID(ctx)
		if err != nil {
			return err
		}
		payload := *r
		payload.ReportID = id
		return tx.Commit(ctx, &domain.PersistentReport{
			ReportID:      id,
			Kind:          r.Kind,
			DestinationID: r.DestinationID,
			SendingTime:   r.SendingTime,
			ClientOrderID: r.ClientOrderID,
			BrokerOrderID: r.BrokerOrderID,
			Report:        payload,
			CreatedAt:     s.now().UTC(),
		})
	})
	if err != nil {
		s.logger.Error("ledger save failed",
			"client_order_id", r.ClientOrderID,
			"error", err,
		)
		s.metrics.LedgerSave("error")
		return 0, err
	}

	r.ReportID = id
	s.metrics.LedgerSave("ok")
	return id, nil
}

func checkConstraints(r *domain.Report) error {
	if r.DestinationID == "" {
		return &domain.ConstraintViolation{Field: "destination_id"}
	}
	if !r.HasSendingTime() {
		return &domain.ConstraintViolation{Field: "sending_time"}
	}
	return nil
}

// Query prepares a ledger query. Nothing is read until Count, Fetch or
// Pages is called, and each call reads the ledger afresh.
func (s *LedgerService) Query(q store.ReportQuery) *ReportQuery {
	return &ReportQuery{store: s.store, q: q}
}

// Get returns a committed report by id.
func (s *LedgerService) Get(ctx context.Context, id uint64) (domain.PersistentReport, error) {
	return s.store.Get(ctx, id)
}

// Delete removes a committed report. It exists for administrative cleanup
// and is not part of normal operation.
func (s *LedgerService) Delete(ctx context.Context, id uint64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("ledger report deleted", "report_id", id)
	return nil
}

// ReportQuery is a prepared ledger query.
type ReportQuery struct {
	store store.ReportStore
	q     store.ReportQuery
}

// Count returns the number of matching reports, ignoring pagination.
func (rq *ReportQuery) Count(ctx context.Context) (int64, error) {
	return rq.store.Count(ctx, rq.q)
}

// Fetch returns the matching reports, paginated.
func (rq *ReportQuery) Fetch(ctx context.Context) ([]domain.PersistentReport, error) {
	return rq.store.Fetch(ctx, rq.q)
}

// Pages yields the matching reports pageSize at a time, honouring
// FirstResult and MaxResult. Each page is fetched only when the previous
// one has been consumed; breaking out of the loop stops fetching. Pages are
// always read in report id order, whatever the query's Order, so offsets
// stay stable between fetches.
func (rq *ReportQuery) Pages(ctx context.Context, pageSize int) iter.Seq2[[]domain.PersistentReport, error] {
	return func(yield func([]domain.PersistentReport, error) bool) {
		if pageSize <= 0 {
			yield(nil, errors.New("page size must be positive"))
			return
		}
		offset := max(rq.q.FirstResult, 0)
		remaining := rq.q.MaxResult // <= 0 means unlimited
		for {
			size := pageSize
			if remaining > 0 && remaining < size {
				size = remaining
			}
			page := rq.q
			page.Order = store.OrderByID
			page.FirstResult = offset
			page.MaxResult = size

			reports, err := rq.store.Fetch(ctx, page)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(reports) == 0 {
				return
			}
			if !yield(reports, nil) {
				return
			}
			if len(reports) < size {
				return
			}
			offset += len(reports)
			if remaining > 0 {
				remaining -= len(reports)
				if remaining == 0 {
					return
				}
			}
		}
	}
}
