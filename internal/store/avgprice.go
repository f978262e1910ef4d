package store

import (
	"container/list"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/shopspring/decimal"
)

// AveragePriceScale is the number of decimal places kept by the running
// average. Division rounds half away from zero.
const AveragePriceScale = 16

type fillKey struct {
	key         domain.AveragePriceKey
	executionID string
}

// Fill is a single contribution to an average price entry.
type Fill struct {
	ClientOrderID string
	Side          domain.OrderSide
	Symbol        string
	ExecutionID   string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Sequence      uint64
}

// AveragePriceLedger keeps a running weighted-average entry per
// (order, side) in most-recently-updated order. Not safe for concurrent use.
type AveragePriceLedger struct {
	mru   *list.List // *domain.AveragePriceEntry, front is most recent
	index map[domain.AveragePriceKey]*list.Element
	seen  map[fillKey]struct{}
}

// NewAveragePriceLedger creates an empty ledger.
func NewAveragePriceLedger() *AveragePriceLedger {
	return &AveragePriceLedger{
		mru:   list.New(),
		index: make(map[domain.AveragePriceKey]*list.Element),
		seen:  make(map[fillKey]struct{}),
	}
}

// Update folds f into its entry and moves the entry to the front. It
// returns the entry's previous position (-1 for a new entry) and whether
// anything changed. Zero-quantity fills and repeated execution ids are
// ignored.
func (l *AveragePriceLedger) Update(f Fill) (previous int, applied bool) {
	if f.Quantity.IsZero() {
		return -1, false
	}
	key := domain.AveragePriceKey{ClientOrderID: f.ClientOrderID, Side: f.Side}
	if f.ExecutionID != "" {
		fk := fillKey{key: key, executionID: f.ExecutionID}
		if _, dup := l.seen[fk]; dup {
			return -1, false
		}
		l.seen[fk] = struct{}{}
	}

	el, ok := l.index[key]
	if !ok {
		entry := &domain.AveragePriceEntry{
			ClientOrderID:      f.ClientOrderID,
			Side:               f.Side,
			Symbol:             f.Symbol,
			CumulativeQuantity: f.Quantity,
			AveragePrice:       f.Price,
			FillCount:          1,
			LastSequence:       f.Sequence,
		}
		l.index[key] = l.mru.PushFront(entry)
		return -1, true
	}

	previous = l.position(el)
	entry := el.Value.(*domain.AveragePriceEntry)
	newCum := entry.CumulativeQuantity.Add(f.Quantity)
	notional := entry.AveragePrice.Mul(entry.CumulativeQuantity).Add(f.Quantity.Mul(f.Price))
	entry.AveragePrice = notional.DivRound(newCum, AveragePriceScale)
	entry.CumulativeQuantity = newCum
	entry.FillCount++
	entry.LastSequence = f.Sequence
	if entry.Symbol == "" {
		entry.Symbol = f.Symbol
	}
	l.mru.MoveToFront(el)
	return previous, true
}

// Get returns a copy of the entry for key.
func (l *AveragePriceLedger) Get(key domain.AveragePriceKey) (domain.AveragePriceEntry, bool) {
	el, ok := l.index[key]
	if !ok {
		return domain.AveragePriceEntry{}, false
	}
	return *el.Value.(*domain.AveragePriceEntry), true
}

// Len returns the number of distinct (order, side) pairs.
func (l *AveragePriceLedger) Len() int {
	return l.mru.Len()
}

// Entries returns copies of every entry, most recently updated first.
func (l *AveragePriceLedger) Entries() []domain.AveragePriceEntry {
	out := make([]domain.AveragePriceEntry, 0, l.mru.Len())
	for el := l.mru.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*domain.AveragePriceEntry))
	}
	return out
}

func (l *AveragePriceLedger) position(target *list.Element) int {
	i := 0
	for el := l.mru.Front(); el != nil; el = el.Next() {
		if el == target {
			return i
		}
		i++
	}
	return -1
}
