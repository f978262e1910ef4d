package store

import (
	"context"
	"sync"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/google/btree"
)

func reportLess(a, b domain.PersistentReport) bool {
	return a.ReportID < b.ReportID
}

// MemoryReportStore is an in-process ReportStore backed by a B-tree ordered
// by report id. Transactions are serialized by the write lock; queries take
// the read lock only for the duration of the scan.
type MemoryReportStore struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[domain.PersistentReport]
	nextID uint64
}

// NewMemoryReportStore creates an empty store whose first id is 1.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{
		tree:   btree.NewG[domain.PersistentReport](32, reportLess),
		nextID: 1,
	}
}

type memoryTx struct {
	nextID uint64
	staged []domain.PersistentReport
}

func (tx *memoryTx) AllocateNextID(context.Context) (uint64, error) {
	id := tx.nextID
	tx.nextID++
	return id, nil
}

func (tx *memoryTx) Commit(_ context.Context, r *domain.PersistentReport) error {
	tx.staged = append(tx.staged, *r)
	return nil
}

// WithTx implements ReportStore.
func (s *MemoryReportStore) WithTx(ctx context.Context, fn func(tx ReportTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{nextID: s.nextID}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range tx.staged {
		s.tree.ReplaceOrInsert(r)
	}
	s.nextID = tx.nextID
	return nil
}

// Count implements ReportStore.
func (s *MemoryReportStore) Count(_ context.Context, q ReportQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	s.tree.Ascend(func(r domain.PersistentReport) bool {
		if q.matches(&r) {
			n++
		}
		return true
	})
	return n, nil
}

// Fetch implements ReportStore. Both orderings yield id order.
func (s *MemoryReportStore) Fetch(ctx context.Context, q ReportQuery) ([]domain.PersistentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PersistentReport, 0)
	skip := q.FirstResult
	s.tree.Ascend(func(r domain.PersistentReport) bool {
		if !q.matches(&r) {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, r)
		return q.MaxResult <= 0 || len(out) < q.MaxResult
	})
	return out, ctx.Err()
}

// Get implements ReportStore.
func (s *MemoryReportStore) Get(_ context.Context, id uint64) (domain.PersistentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.tree.Get(domain.PersistentReport{ReportID: id})
	if !ok {
		return domain.PersistentReport{}, domain.ErrReportNotFound
	}
	return r, nil
}

// Delete implements ReportStore. The id is never handed out again.
func (s *MemoryReportStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tree.Delete(domain.PersistentReport{ReportID: id}); !ok {
		return domain.ErrReportNotFound
	}
	return nil
}
