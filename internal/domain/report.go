package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether a message was received from or sent to the venue.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// ReportKind classifies a trade-lifecycle message.
type ReportKind string

const (
	KindExecutionReport ReportKind = "execution_report"
	KindCancelReject    ReportKind = "cancel_reject"
	KindNewOrder        ReportKind = "new_order"
	KindCancelRequest   ReportKind = "cancel_request"
	KindOther           ReportKind = "other" // heartbeats, session-level messages
)

// ValidReportKinds lists every kind the history accepts.
var ValidReportKinds = map[ReportKind]bool{
	KindExecutionReport: true,
	KindCancelReject:    true,
	KindNewOrder:        true,
	KindCancelRequest:   true,
	KindOther:           true,
}

// OrderSide indicates the side of an order or fill.
type OrderSide string

const (
	SideBuy             OrderSide = "buy"
	SideSell            OrderSide = "sell"
	SideSellShort       OrderSide = "sell_short"
	SideSellShortExempt OrderSide = "sell_short_exempt"
)

// OrderStatus is the order status carried by a report.
type OrderStatus string

const (
	OrderStatusPendingNew      OrderStatus = "pending_new"
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusDoneForDay      OrderStatus = "done_for_day"
	OrderStatusPendingCancel   OrderStatus = "pending_cancel"
	OrderStatusPendingReplace  OrderStatus = "pending_replace"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusReplaced        OrderStatus = "replaced"
	OrderStatusStopped         OrderStatus = "stopped"
	OrderStatusSuspended       OrderStatus = "suspended"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusCalculated      OrderStatus = "calculated"
	OrderStatusExpired         OrderStatus = "expired"
)

// Report is an already-decoded trade-lifecycle message. Empty strings and
// zero times mean the field was absent on the wire.
type Report struct {
	// ReportID is assigned by the persistent ledger on save; zero until then.
	ReportID uint64

	Kind              ReportKind
	ClientOrderID     string
	OrigClientOrderID string
	BrokerOrderID     string
	ExecutionID       string
	DestinationID     string
	Account           string
	Symbol            string
	Side              OrderSide
	OrderStatus       OrderStatus
	ExecutionType     string
	Text              string

	OrderQuantity      decimal.Decimal
	Price              decimal.Decimal
	LastQuantity       decimal.Decimal
	LastPrice          decimal.Decimal
	CumulativeQuantity decimal.Decimal
	LeavesQuantity     decimal.Decimal
	AveragePrice       decimal.Decimal

	SendingTime  time.Time
	TransactTime time.Time
}

// HasBrokerOrderID reports whether the venue has assigned its own order id.
func (r *Report) HasBrokerOrderID() bool {
	return r.BrokerOrderID != ""
}

// HasSendingTime reports whether the producer stamped the report.
func (r *Report) HasSendingTime() bool {
	return !r.SendingTime.IsZero()
}

// Validate checks the structural validity of the report. Only an unknown
// kind or a negative fill is rejected; missing identifiers are tolerated
// and handled downstream as malformed reports.
func (r *Report) Validate() error {
	if !ValidReportKinds[r.Kind] {
		return &ValidationError{Message: "unknown report kind: " + string(r.Kind)}
	}
	if r.LastQuantity.IsNegative() {
		return &ValidationError{Message: "last_quantity must not be negative"}
	}
	if r.LastPrice.IsNegative() {
		return &ValidationError{Message: "last_price must not be negative"}
	}
	return nil
}

// Fill extracts the fill carried by an execution report. It returns
// ErrMalformedReport when the report lacks the fields an average price
// update needs, and ok=false when the report carries no fill at all.
func (r *Report) Fill() (qty, px decimal.Decimal, ok bool, err error) {
	if r.LastQuantity.IsZero() {
		return decimal.Zero, decimal.Zero, false, nil
	}
	if r.ClientOrderID == "" || r.Side == "" {
		return decimal.Zero, decimal.Zero, false, ErrMalformedReport
	}
	return r.LastQuantity, r.LastPrice, true, nil
}
