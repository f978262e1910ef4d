package store

import (
	"github.com/efreitasn/exechistory/internal/domain"
)

// correlationEntry points at the winning record in the log. The index never
// owns reports; it keeps the sequence and the last broker order id seen.
type correlationEntry struct {
	sequence      uint64
	brokerOrderID string
	position      int
}

// CorrelationIndex maps client order ids to their resolved latest report.
// Orders are listed in order of first appearance. Not safe for concurrent
// use.
type CorrelationIndex struct {
	log     *MessageLog
	entries map[string]*correlationEntry
	order   []string
}

// NewCorrelationIndex creates an index resolving against log.
func NewCorrelationIndex(log *MessageLog) *CorrelationIndex {
	return &CorrelationIndex{
		log:     log,
		entries: make(map[string]*correlationEntry),
	}
}

// Supersedes reports whether r replaces c as the resolved report of an
// order, r having arrived after c. The later sending time wins; a missing
// sending time sorts before any stamped one. On equal times a report
// without a broker order id never displaces one that has it, otherwise the
// later arrival wins.
func Supersedes(r, c *domain.Report) bool {
	if r.SendingTime.After(c.SendingTime) {
		return true
	}
	if r.SendingTime.Before(c.SendingTime) {
		return false
	}
	return r.HasBrokerOrderID() || !c.HasBrokerOrderID()
}

// Apply runs the resolution rule for rec, which must already be in the log
// and carry a client order id. It returns the order's position in the
// first-appearance list, whether the order was seen for the first time and
// whether its resolved view changed.
func (c *CorrelationIndex) Apply(rec domain.MessageRecord) (position int, inserted, changed bool) {
	id := rec.Report.ClientOrderID
	e, ok := c.entries[id]
	if !ok {
		e = &correlationEntry{
			sequence:      rec.Sequence,
			brokerOrderID: rec.Report.BrokerOrderID,
			position:      len(c.order),
		}
		c.entries[id] = e
		c.order = append(c.order, id)
		return e.position, true, true
	}

	current, _ := c.log.Get(e.sequence)
	if Supersedes(&rec.Report, &current.Report) {
		e.sequence = rec.Sequence
		changed = true
	}
	// The broker id is learned from any report and never regresses.
	if rec.Report.HasBrokerOrderID() && (changed || e.brokerOrderID == "") {
		if e.brokerOrderID != rec.Report.BrokerOrderID {
			e.brokerOrderID = rec.Report.BrokerOrderID
			changed = true
		}
	}
	return e.position, false, changed
}

// Resolve returns the resolved latest report for a client order id.
func (c *CorrelationIndex) Resolve(clientOrderID string) (domain.ResolvedReport, bool) {
	e, ok := c.entries[clientOrderID]
	if !ok {
		return domain.ResolvedReport{}, false
	}
	return c.resolved(e), true
}

// Len returns the number of distinct orders seen.
func (c *CorrelationIndex) Len() int {
	return len(c.order)
}

// At returns the resolved report of the order at position i.
func (c *CorrelationIndex) At(i int) domain.ResolvedReport {
	return c.resolved(c.entries[c.order[i]])
}

// All returns every resolved report in first-appearance order.
func (c *CorrelationIndex) All() []domain.ResolvedReport {
	out := make([]domain.ResolvedReport, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.resolved(c.entries[id]))
	}
	return out
}

// Open returns the resolved reports whose status is not terminal according
// to isTerminal, in first-appearance order.
func (c *CorrelationIndex) Open(isTerminal domain.StatusClassifier) []domain.ResolvedReport {
	out := make([]domain.ResolvedReport, 0)
	for _, id := range c.order {
		r := c.resolved(c.entries[id])
		if isTerminal(r.Report.OrderStatus) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (c *CorrelationIndex) resolved(e *correlationEntry) domain.ResolvedReport {
	rec, _ := c.log.Get(e.sequence)
	r := rec.Report
	if r.BrokerOrderID == "" {
		r.BrokerOrderID = e.brokerOrderID
	}
	return domain.ResolvedReport{
		Sequence:  rec.Sequence,
		Direction: rec.Direction,
		Report:    r,
	}
}
