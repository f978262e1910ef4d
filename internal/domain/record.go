package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageRecord is an immutable entry of the session message log.
type MessageRecord struct {
	Sequence   uint64
	Direction  Direction
	Report     Report
	ReceivedAt time.Time
}

// ResolvedReport is the report currently considered authoritative for an
// order. Report.BrokerOrderID holds the last known broker id even when the
// winning report arrived without one.
type ResolvedReport struct {
	Sequence  uint64
	Direction Direction
	Report    Report
}

// AveragePriceKey identifies one side of one order.
type AveragePriceKey struct {
	ClientOrderID string
	Side          OrderSide
}

// AveragePriceEntry is the running weighted-average fill state for one
// (order, side) pair.
type AveragePriceEntry struct {
	ClientOrderID      string
	Side               OrderSide
	Symbol             string
	CumulativeQuantity decimal.Decimal
	AveragePrice       decimal.Decimal
	FillCount          int
	LastSequence       uint64
}

// Key returns the entry's (order, side) key.
func (e AveragePriceEntry) Key() AveragePriceKey {
	return AveragePriceKey{ClientOrderID: e.ClientOrderID, Side: e.Side}
}

// PersistentReport is a report committed to the durable ledger.
type PersistentReport struct {
	ReportID      uint64
	Kind          ReportKind
	DestinationID string
	SendingTime   time.Time
	ClientOrderID string
	BrokerOrderID string
	Report        Report
	CreatedAt     time.Time
}
