package store

import (
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
)

// MessageLog is the append-only session log. It is not safe for concurrent
// use; the owning history serializes access.
type MessageLog struct {
	records []domain.MessageRecord
}

// NewMessageLog creates an empty MessageLog.
func NewMessageLog() *MessageLog {
	return &MessageLog{records: make([]domain.MessageRecord, 0, 64)}
}

// Append stores a new record and returns it. Sequences start at 1 and the
// record's position in the log is always Sequence-1.
func (l *MessageLog) Append(dir domain.Direction, r domain.Report, at time.Time) domain.MessageRecord {
	rec := domain.MessageRecord{
		Sequence:   uint64(len(l.records)) + 1,
		Direction:  dir,
		Report:     r,
		ReceivedAt: at,
	}
	l.records = append(l.records, rec)
	return rec
}

// Len returns the number of records in the log.
func (l *MessageLog) Len() int {
	return len(l.records)
}

// At returns the record at position i.
func (l *MessageLog) At(i int) domain.MessageRecord {
	return l.records[i]
}

// Get returns the record with the given sequence.
func (l *MessageLog) Get(seq uint64) (domain.MessageRecord, bool) {
	if seq == 0 || seq > uint64(len(l.records)) {
		return domain.MessageRecord{}, false
	}
	return l.records[seq-1], true
}

// Snapshot returns a copy of every record in sequence order.
func (l *MessageLog) Snapshot() []domain.MessageRecord {
	out := make([]domain.MessageRecord, len(l.records))
	copy(out, l.records)
	return out
}
