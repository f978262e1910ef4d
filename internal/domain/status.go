package domain

// StatusClassifier tells whether an order status is terminal. It is
// supplied by the protocol layer.
type StatusClassifier func(OrderStatus) bool

var terminalStatuses = map[OrderStatus]bool{
	OrderStatusFilled:     true,
	OrderStatusCanceled:   true,
	OrderStatusRejected:   true,
	OrderStatusDoneForDay: true,
	OrderStatusExpired:    true,
}

// IsTerminal is the default classifier: filled, canceled, rejected,
// done for day and expired orders are closed.
func IsTerminal(s OrderStatus) bool {
	return terminalStatuses[s]
}
