package handler

import (
	"time"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/shopspring/decimal"
)

// reportBody is the JSON form of a report, used both for requests and
// inside responses. Decimals are encoded as strings; absent times as null.
type reportBody struct {
	ReportID           *uint64          `json:"report_id,omitempty"`
	Kind               string           `json:"kind"`
	ClientOrderID      string           `json:"client_order_id,omitempty"`
	OrigClientOrderID  string           `json:"orig_client_order_id,omitempty"`
	BrokerOrderID      string           `json:"broker_order_id,omitempty"`
	ExecutionID        string           `json:"execution_id,omitempty"`
	DestinationID      string           `json:"destination_id,omitempty"`
	Account            string           `json:"account,omitempty"`
	Symbol             string           `json:"symbol,omitempty"`
	Side               string           `json:"side,omitempty"`
	OrderStatus        string           `json:"order_status,omitempty"`
	ExecutionType      string           `json:"execution_type,omitempty"`
	Text               string           `json:"text,omitempty"`
	OrderQuantity      *decimal.Decimal `json:"order_quantity,omitempty"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	LastQuantity       *decimal.Decimal `json:"last_quantity,omitempty"`
	LastPrice          *decimal.Decimal `json:"last_price,omitempty"`
	CumulativeQuantity *decimal.Decimal `json:"cumulative_quantity,omitempty"`
	LeavesQuantity     *decimal.Decimal `json:"leaves_quantity,omitempty"`
	AveragePrice       *decimal.Decimal `json:"average_price,omitempty"`
	SendingTime        *string          `json:"sending_time"`
	TransactTime       *string          `json:"transact_time,omitempty"`
}

func decOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func decOrNil(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}

func parseOptionalTime(field string, s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Message: field + " must be a valid RFC 3339 timestamp"}
	}
	return t, nil
}

func formatOptionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// toDomain converts the request body into a report. The report id is
// copied so that the services can reject preset ids.
func (b *reportBody) toDomain() (domain.Report, error) {
	sendingTime, err := parseOptionalTime("sending_time", b.SendingTime)
	if err != nil {
		return domain.Report{}, err
	}
	transactTime, err := parseOptionalTime("transact_time", b.TransactTime)
	if err != nil {
		return domain.Report{}, err
	}
	r := domain.Report{
		Kind:               domain.ReportKind(b.Kind),
		ClientOrderID:      b.ClientOrderID,
		OrigClientOrderID:  b.OrigClientOrderID,
		BrokerOrderID:      b.BrokerOrderID,
		ExecutionID:        b.ExecutionID,
		DestinationID:      b.DestinationID,
		Account:            b.Account,
		Symbol:             b.Symbol,
		Side:               domain.OrderSide(b.Side),
		OrderStatus:        domain.OrderStatus(b.OrderStatus),
		ExecutionType:      b.ExecutionType,
		Text:               b.Text,
		OrderQuantity:      decOrZero(b.OrderQuantity),
		Price:              decOrZero(b.Price),
		LastQuantity:       decOrZero(b.LastQuantity),
		LastPrice:          decOrZero(b.LastPrice),
		CumulativeQuantity: decOrZero(b.CumulativeQuantity),
		LeavesQuantity:     decOrZero(b.LeavesQuantity),
		AveragePrice:       decOrZero(b.AveragePrice),
		SendingTime:        sendingTime,
		TransactTime:       transactTime,
	}
	if b.ReportID != nil {
		r.ReportID = *b.ReportID
	}
	return r, nil
}

func buildReportBody(r domain.Report) reportBody {
	b := reportBody{
		Kind:               string(r.Kind),
		ClientOrderID:      r.ClientOrderID,
		OrigClientOrderID:  r.OrigClientOrderID,
		BrokerOrderID:      r.BrokerOrderID,
		ExecutionID:        r.ExecutionID,
		DestinationID:      r.DestinationID,
		Account:            r.Account,
		Symbol:             r.Symbol,
		Side:               string(r.Side),
		OrderStatus:        string(r.OrderStatus),
		ExecutionType:      r.ExecutionType,
		Text:               r.Text,
		OrderQuantity:      decOrNil(r.OrderQuantity),
		Price:              decOrNil(r.Price),
		LastQuantity:       decOrNil(r.LastQuantity),
		LastPrice:          decOrNil(r.LastPrice),
		CumulativeQuantity: decOrNil(r.CumulativeQuantity),
		LeavesQuantity:     decOrNil(r.LeavesQuantity),
		AveragePrice:       decOrNil(r.AveragePrice),
		SendingTime:        formatOptionalTime(r.SendingTime),
		TransactTime:       formatOptionalTime(r.TransactTime),
	}
	if r.ReportID != 0 {
		id := r.ReportID
		b.ReportID = &id
	}
	return b
}

// messageResponse is a message record in the session log.
type messageResponse struct {
	Sequence   uint64     `json:"sequence"`
	Direction  string     `json:"direction"`
	ReceivedAt string     `json:"received_at"`
	Report     reportBody `json:"report"`
}

func buildMessageResponse(m domain.MessageRecord) messageResponse {
	return messageResponse{
		Sequence:   m.Sequence,
		Direction:  string(m.Direction),
		ReceivedAt: m.ReceivedAt.UTC().Format(time.RFC3339Nano),
		Report:     buildReportBody(m.Report),
	}
}

// resolvedResponse is the resolved latest report of an order.
type resolvedResponse struct {
	Sequence  uint64     `json:"sequence"`
	Direction string     `json:"direction"`
	Report    reportBody `json:"report"`
}

func buildResolvedResponse(r domain.ResolvedReport) resolvedResponse {
	return resolvedResponse{
		Sequence:  r.Sequence,
		Direction: string(r.Direction),
		Report:    buildReportBody(r.Report),
	}
}

func buildResolvedList(rs []domain.ResolvedReport) []resolvedResponse {
	out := make([]resolvedResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, buildResolvedResponse(r))
	}
	return out
}

// averagePriceResponse is one running average price entry.
type averagePriceResponse struct {
	ClientOrderID      string          `json:"client_order_id"`
	Side               string          `json:"side"`
	Symbol             string          `json:"symbol"`
	CumulativeQuantity decimal.Decimal `json:"cumulative_quantity"`
	AveragePrice       decimal.Decimal `json:"average_price"`
	FillCount          int             `json:"fill_count"`
	LastSequence       uint64          `json:"last_sequence"`
}

func buildAveragePriceResponse(e domain.AveragePriceEntry) averagePriceResponse {
	return averagePriceResponse{
		ClientOrderID:      e.ClientOrderID,
		Side:               string(e.Side),
		Symbol:             e.Symbol,
		CumulativeQuantity: e.CumulativeQuantity,
		AveragePrice:       e.AveragePrice,
		FillCount:          e.FillCount,
		LastSequence:       e.LastSequence,
	}
}

// persistentReportResponse is a committed ledger entry.
type persistentReportResponse struct {
	ReportID      uint64     `json:"report_id"`
	Kind          string     `json:"kind"`
	DestinationID string     `json:"destination_id"`
	SendingTime   string     `json:"sending_time"`
	CreatedAt     string     `json:"created_at"`
	Report        reportBody `json:"report"`
}

func buildPersistentReportResponse(p domain.PersistentReport) persistentReportResponse {
	return persistentReportResponse{
		ReportID:      p.ReportID,
		Kind:          string(p.Kind),
		DestinationID: p.DestinationID,
		SendingTime:   p.SendingTime.UTC().Format(time.RFC3339Nano),
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339Nano),
		Report:        buildReportBody(p.Report),
	}
}
