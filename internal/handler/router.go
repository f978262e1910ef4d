package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/exechistory/internal/metrics"
	"github.com/efreitasn/exechistory/internal/service"
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. m may be nil, in which case
// /metrics is not mounted.
func NewRouter(
	reportSvc *service.ReportService,
	ledgerSvc *service.LedgerService,
	m *metrics.Metrics,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger, m))
	r.Use(contentTypeJSON)

	messageH := NewMessageHandler(reportSvc)
	reportH := NewReportHandler(ledgerSvc)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// Session history routes.
	r.Post("/messages/incoming", messageH.IngestIncoming)
	r.Post("/messages/outgoing", messageH.IngestOutgoing)
	r.Get("/messages", messageH.ListMessages)
	r.Get("/orders", messageH.LatestReports)
	r.Get("/orders/open", messageH.OpenOrders)
	r.Get("/orders/{client_order_id}/latest", messageH.LatestReport)
	r.Get("/average-prices", messageH.AveragePrices)

	// Ledger routes.
	r.Post("/reports", reportH.Save)
	r.Get("/reports", reportH.Query)
	r.Get("/reports/{report_id}", reportH.Get)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog, and records the duration against
// the matched route pattern.
func requestLogging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(r.Method, route, strconv.Itoa(ww.status), elapsed.Seconds())

			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
