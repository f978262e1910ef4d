package handler

import (
	"net/http"

	"github.com/efreitasn/exechistory/internal/domain"
	"github.com/efreitasn/exechistory/internal/service"
	"github.com/go-chi/chi/v5"
)

// MessageHandler handles HTTP requests for the live session history.
type MessageHandler struct {
	reportSvc *service.ReportService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(reportSvc *service.ReportService) *MessageHandler {
	return &MessageHandler{reportSvc: reportSvc}
}

// IngestIncoming handles POST /messages/incoming.
func (h *MessageHandler) IngestIncoming(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, domain.DirectionIncoming)
}

// IngestOutgoing handles POST /messages/outgoing.
func (h *MessageHandler) IngestOutgoing(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, domain.DirectionOutgoing)
}

func (h *MessageHandler) ingest(w http.ResponseWriter, r *http.Request, dir domain.Direction) {
	var req reportBody
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	report, err := req.toDomain()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.reportSvc.Ingest(r.Context(), dir, report)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildMessageResponse(rec))
}

// listMessagesResponse is the JSON response for GET /messages.
type listMessagesResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []messageResponse `json:"messages"`
}

// ListMessages handles GET /messages.
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs := h.reportSvc.Messages()
	resp := listMessagesResponse{
		SessionID: h.reportSvc.SessionID(),
		Messages:  make([]messageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, buildMessageResponse(m))
	}

	WriteJSON(w, http.StatusOK, resp)
}

// LatestReports handles GET /orders.
func (h *MessageHandler) LatestReports(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"orders": buildResolvedList(h.reportSvc.LatestReports()),
	})
}

// OpenOrders handles GET /orders/open.
func (h *MessageHandler) OpenOrders(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"orders": buildResolvedList(h.reportSvc.OpenOrders()),
	})
}

// LatestReport handles GET /orders/{client_order_id}/latest.
func (h *MessageHandler) LatestReport(w http.ResponseWriter, r *http.Request) {
	clientOrderID := chi.URLParam(r, "client_order_id")

	resolved, err := h.reportSvc.LatestReport(clientOrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildResolvedResponse(resolved))
}

// AveragePrices handles GET /average-prices. Entries are most recently
// updated first.
func (h *MessageHandler) AveragePrices(w http.ResponseWriter, r *http.Request) {
	entries := h.reportSvc.AveragePrices()
	out := make([]averagePriceResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, buildAveragePriceResponse(e))
	}

	WriteJSON(w, http.StatusOK, map[string]any{"average_prices": out})
}
