package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/efreitasn/exechistory/internal/service"
	"github.com/efreitasn/exechistory/internal/store"
	"github.com/go-chi/chi/v5"
)

// ReportHandler handles HTTP requests for the durable report ledger.
type ReportHandler struct {
	ledgerSvc *service.LedgerService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(ledgerSvc *service.LedgerService) *ReportHandler {
	return &ReportHandler{ledgerSvc: ledgerSvc}
}

// saveReportResponse is the JSON response for POST /reports.
type saveReportResponse struct {
	ReportID uint64 `json:"report_id"`
}

// queryReportsResponse is the JSON response for GET /reports. Count ignores
// pagination.
type queryReportsResponse struct {
	Count   int64                      `json:"count"`
	Reports []persistentReportResponse `json:"reports"`
}

// Save handles POST /reports.
func (h *ReportHandler) Save(w http.ResponseWriter, r *http.Request) {
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

	id, err := h.ledgerSvc.Save(r.Context(), &report)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, saveReportResponse{ReportID: id})
}

// Query handles GET /reports.
func (h *ReportHandler) Query(w http.ResponseWriter, r *http.Request) {
	var q store.ReportQuery

	params := r.URL.Query()
	if s := params.Get("sending_time_after"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "sending_time_after must be a valid RFC 3339 timestamp")
			return
		}
		q.SendingTimeAfter = &t
	}

	switch o := store.ReportOrder(params.Get("order")); o {
	case "", store.OrderByID, store.OrderNone:
		q.Order = o
	default:
		WriteError(w, http.StatusBadRequest, "validation_error", "order must be one of: id, none")
		return
	}

	var err error
	if q.FirstResult, err = intParam(params.Get("first_result")); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "first_result must be an integer")
		return
	}
	if q.MaxResult, err = intParam(params.Get("max_result")); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "max_result must be an integer")
		return
	}

	query := h.ledgerSvc.Query(q)
	count, err := query.Count(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reports, err := query.Fetch(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := queryReportsResponse{
		Count:   count,
		Reports: make([]persistentReportResponse, 0, len(reports)),
	}
	for _, p := range reports {
		resp.Reports = append(resp.Reports, buildPersistentReportResponse(p))
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /reports/{report_id}.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := reportIDParam(w, r)
	if !ok {
		return
	}

	p, err := h.ledgerSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildPersistentReportResponse(p))
}

func reportIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "report_id"), 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "report_id must be a positive integer")
		return 0, false
	}
	return id, true
}

// intParam parses an optional integer query parameter; empty means 0.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
