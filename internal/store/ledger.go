package store

import (
	"context"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
)

// ReportOrder selects the ordering of ledger query results.
type ReportOrder string

const (
	// OrderByID sorts by report id ascending, the ledger's commit order.
	// It is the default.
	OrderByID ReportOrder = "id"
	// OrderNone leaves the order to the backend.
	OrderNone ReportOrder = "none"
)

// NoLimit disables FirstResult or MaxResult.
const NoLimit = -1

// ReportQuery filters ledger reads. The zero value matches every report in
// id order without pagination.
type ReportQuery struct {
	// SendingTimeAfter is an exclusive lower bound; nil means unbounded.
	SendingTimeAfter *time.Time
	Order            ReportOrder
	// FirstResult skips that many reports; values <= 0 start at the first.
	FirstResult int
	// MaxResult caps the page size; values <= 0 mean no limit.
	MaxResult int
}

func (q ReportQuery) matches(r *domain.PersistentReport) bool {
	return q.SendingTimeAfter == nil || r.SendingTime.After(*q.SendingTimeAfter)
}

// ReportTx is the persistence boundary used inside a ledger transaction.
// An id returned by AllocateNextID is only consumed if the transaction
// commits.
type ReportTx interface {
	AllocateNextID(ctx context.Context) (uint64, error)
	Commit(ctx context.Context, r *domain.PersistentReport) error
}

// ReportStore is a durable ledger backend.
type ReportStore interface {
	// WithTx runs fn in a transaction. If fn returns an error nothing it
	// did is kept, allocated ids included, and the error is returned as is.
	WithTx(ctx context.Context, fn func(tx ReportTx) error) error
	Count(ctx context.Context, q ReportQuery) (int64, error)
	Fetch(ctx context.Context, q ReportQuery) ([]domain.PersistentReport, error)
	Get(ctx context.Context, id uint64) (domain.PersistentReport, error)
	Delete(ctx context.Context, id uint64) error
}
