package httppresentation

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/application"
	appanalysis "github.com/Zhima-Mochi/supershop/internal/application/analysis"
	appinv "github.com/Zhima-Mochi/supershop/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/supershop/internal/application/order"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	"github.com/Zhima-Mochi/supershop/internal/observability/logctx"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type (
	OrderPlacer   = application.UseCase[apporder.PlaceOrderInput, *apporder.PlaceOrderResult]
	StockAdjuster = application.UseCase[appinv.AdjustStockInput, *appinv.AdjustStockResult]
)

// Analyzer is the read-only analytics surface.
type Analyzer interface {
	GlobalAssociations(ctx context.Context) (*appanalysis.GlobalAssociations, error)
	ProductAnalysis(ctx context.Context, productID int64) (*appanalysis.ProductAnalysis, error)
	SalesOverview(ctx context.Context) (*appanalysis.SalesOverview, error)
}

type Handler struct {
	orders   OrderPlacer
	stock    StockAdjuster
	analysis Analyzer
	metrics  http.Handler
	log      observability.Logger
	tel      observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"
	tracerName           = "supershop.http"
)

// NewHandler wires the HTTP surface. metrics serves /metrics and may be nil.
func NewHandler(
	orders OrderPlacer,
	stock StockAdjuster,
	analysis Analyzer,
	metrics http.Handler,
	logger observability.Logger,
	tel observability.Observability,
) *Handler {
	baseLogger := logger
	if baseLogger == nil {
		_, baseLogger, _ = observability.Resolve(tel)
	}
	return &Handler{
		orders:   orders,
		stock:    stock,
		analysis: analysis,
		metrics:  metrics,
		log:      baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	// Trace → ObservabilityMiddleware (request logger + HTTP metrics) → Access log → Handler
	r.Use(h.withRoute, h.withTrace,
		ObservabilityMiddleware(h.log, func(r *http.Request) string { return r.Header.Get(headerRequestID) }, h.tel),
		h.withAccessLog,
	)

	r.HandleFunc("/orders", h.handlePlaceOrder).Methods(http.MethodPost)
	r.HandleFunc("/analysis/purchase-associations", h.handleGlobalAssociations).Methods(http.MethodGet)
	r.HandleFunc("/analysis/product/{id}", h.handleProductAnalysis).Methods(http.MethodGet)
	r.HandleFunc("/admin/sales-analytics", h.handleSalesOverview).Methods(http.MethodGet)
	r.HandleFunc("/admin/products/{id}/stock", h.handleAdjustStock).Methods(http.MethodPut)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.orders.Execute(r.Context(), req.toInput(r.Header.Get(headerIdempotencyKey)))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	status, msg := http.StatusCreated, "Order placed successfully"
	if res.Replayed {
		status, msg = http.StatusOK, "Order already placed"
	}
	writeJSON(w, status, placeOrderResponse{
		Success: true,
		OrderID: res.OrderID,
		Total:   amount(res.Total),
		Message: msg,
	})
}

func (h *Handler) handleGlobalAssociations(w http.ResponseWriter, r *http.Request) {
	res, err := h.analysis.GlobalAssociations(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGlobalAssociationsResponse(res))
}

func (h *Handler) handleProductAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.analysis.ProductAnalysis(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductAnalysisResponse(res))
}

func (h *Handler) handleSalesOverview(w http.ResponseWriter, r *http.Request) {
	res, err := h.analysis.SalesOverview(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSalesOverviewResponse(res))
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.StockChange == nil {
		h.writeError(w, r, http.StatusBadRequest, "stock_change is required")
		return
	}

	res, err := h.stock.Execute(r.Context(), appinv.AdjustStockInput{ProductID: id, Delta: *req.StockChange})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adjustStockResponse{
		Success:  true,
		NewStock: res.NewStock,
		Message:  "Stock updated successfully",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

// withRoute stores the matched mux template so metrics and logs stay low-cardinality.
func (h *Handler) withRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		next.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer(tracerName)
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		ctxWithSpan, span := tracer.Start(parentCtx,
			r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type routeKey struct{}

func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
