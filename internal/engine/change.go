package engine

import "github.com/efreitasn/exechistory/internal/domain"

// View names a derived list a Change applies to.
type View string

const (
	ViewMessages      View = "messages"
	ViewLatestReports View = "latest_reports"
	ViewAveragePrices View = "average_prices"
)

// ChangeKind tells whether a row was added to a view or changed in place.
type ChangeKind int

const (
	Insert ChangeKind = iota
	Update
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// Change describes what one append did to one view. Position is the row's
// index after the append. Previous is the row's index before the append
// when it moved (average price entries move to the front), otherwise -1.
//
// Record is the appended message that caused the change. The row as it
// now stands in the view is in Resolved for latest_reports and in
// AveragePrice for average_prices; the two can differ from Record when an
// out-of-order report loses resolution but still teaches the broker id.
type Change struct {
	View     View
	Kind     ChangeKind
	Position int
	Previous int
	Record   domain.MessageRecord

	Resolved     *domain.ResolvedReport
	AveragePrice *domain.AveragePriceEntry
}

// Listener observes appends. OnAppend runs on the appending goroutine after
// every view reflects the append, and before the append returns. Listeners
// may read the history but must not append to it.
type Listener interface {
	OnAppend(Change)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Change)

// OnAppend calls f(c).
func (f ListenerFunc) OnAppend(c Change) { f(c) }
