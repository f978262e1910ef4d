package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const reportSequenceName = "persistent_reports"

// reportRow is the table layout of a committed report. The id column is
// assigned from idAllocatorRow, never by the database.
type reportRow struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement:false"`
	Kind          string        `gorm:"size:32;not null"`
	DestinationID string        `gorm:"size:64;not null"`
	SendingTime   time.Time     `gorm:"not null;index"`
	ClientOrderID string        `gorm:"size:64;index"`
	BrokerOrderID string        `gorm:"size:64"`
	Payload       domain.Report `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt     time.Time
}

func (reportRow) TableName() string { return "persistent_reports" }

type idAllocatorRow struct {
	Name   string `gorm:"primaryKey;size:64"`
	NextID uint64 `gorm:"not null"`
}

func (idAllocatorRow) TableName() string { return "report_id_allocators" }

func toRow(r *domain.PersistentReport) reportRow {
	return reportRow{
		ID:            r.ReportID,
		Kind:          string(r.Kind),
		DestinationID: r.DestinationID,
		SendingTime:   r.SendingTime,
		ClientOrderID: r.ClientOrderID,
		BrokerOrderID: r.BrokerOrderID,
		Payload:       r.Report,
		CreatedAt:     r.CreatedAt,
	}
}

func (row *reportRow) toDomain() domain.PersistentReport {
	payload := row.Payload
	payload.ReportID = row.ID
	return domain.PersistentReport{
		ReportID:      row.ID,
		Kind:          domain.ReportKind(row.Kind),
		DestinationID: row.DestinationID,
		SendingTime:   row.SendingTime,
		ClientOrderID: row.ClientOrderID,
		BrokerOrderID: row.BrokerOrderID,
		Report:        payload,
		CreatedAt:     row.CreatedAt,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}

// GormReportStore is a ReportStore on top of a SQL database. Id allocation
// locks a single allocator row for the duration of the save transaction, so
// concurrent saves are serialized and a rolled back save releases its id.
type GormReportStore struct {
	db *gorm.DB
}

// OpenGormReportStore connects to the postgres database at dsn and
// migrates the ledger tables.
func OpenGormReportStore(dsn string, cfg *gorm.Config) (*GormReportStore, error) {
	if cfg == nil {
		cfg = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, unavailable("open", err)
	}
	return NewGormReportStore(db)
}

// NewGormReportStore migrates the ledger tables on db and seeds the id
// allocator.
func NewGormReportStore(db *gorm.DB) (*GormReportStore, error) {
	if err := db.AutoMigrate(&reportRow{}, &idAllocatorRow{}); err != nil {
		return nil, unavailable("migrate", err)
	}
	seed := idAllocatorRow{Name: reportSequenceName, NextID: 1}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, unavailable("seed allocator", err)
	}
	return &GormReportStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *GormReportStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) AllocateNextID(ctx context.Context) (uint64, error) {
	var alloc idAllocatorRow
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", reportSequenceName).
		First(&alloc).Error
	if err != nil {
		return 0, unavailable("allocate id", err)
	}
	err = t.tx.WithContext(ctx).
		Model(&idAllocatorRow{}).
		Where("name = ?", reportSequenceName).
		Update("next_id", alloc.NextID+1).Error
	if err != nil {
		return 0, unavailable("allocate id", err)
	}
	return alloc.NextID, nil
}

func (t *gormTx) Commit(ctx context.Context, r *domain.PersistentReport) error {
	row := toRow(r)
	if err := t.tx.WithContext(ctx).Create(&row).Error; err != nil {
		return unavailable("insert report", err)
	}
	return nil
}

// WithTx implements ReportStore.
func (s *GormReportStore) WithTx(ctx context.Context, fn func(tx ReportTx) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&gormTx{tx: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *GormReportStore) scoped(ctx context.Context, q ReportQuery) *gorm.DB {
	db := s.db.WithContext(ctx).Model(&reportRow{})
	if q.SendingTimeAfter != nil {
		db = db.Where("sending_time > ?", *q.SendingTimeAfter)
	}
	return db
}

// Count implements ReportStore.
func (s *GormReportStore) Count(ctx context.Context, q ReportQuery) (int64, error) {
	var n int64
	if err := s.scoped(ctx, q).Count(&n).Error; err != nil {
		return 0, unavailable("count reports", err)
	}
	return n, nil
}

// Fetch implements ReportStore.
func (s *GormReportStore) Fetch(ctx context.Context, q ReportQuery) ([]domain.PersistentReport, error) {
	db := s.scoped(ctx, q)
	if q.Order != OrderNone {
		db = db.Order("id ASC")
	}
	if q.FirstResult > 0 {
		db = db.Offset(q.FirstResult)
	}
	if q.MaxResult > 0 {
		db = db.Limit(q.MaxResult)
	}

	var rows []reportRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, unavailable("fetch reports", err)
	}
	out := make([]domain.PersistentReport, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// Get implements ReportStore.
func (s *GormReportStore) Get(ctx context.Context, id uint64) (domain.PersistentReport, error) {
	var row reportRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PersistentReport{}, domain.ErrReportNotFound
	}
	if err != nil {
		return domain.PersistentReport{}, unavailable("get report", err)
	}
	return row.toDomain(), nil
}

// Delete implements ReportStore.
func (s *GormReportStore) Delete(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&reportRow{}, id)
	if res.Error != nil {
		return unavailable("delete report", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}
